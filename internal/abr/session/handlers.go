package session

import (
	"fmt"

	"github.com/mantonx/dashabr/internal/abr/events"
	"github.com/mantonx/dashabr/internal/abr/model"
	"github.com/mantonx/dashabr/internal/abr/pipeline"
	"github.com/mantonx/dashabr/internal/abr/quality"
	"github.com/mantonx/dashabr/internal/abr/stall"
)

// handle is the run loop's sole dispatcher. Every handler below runs to
// completion without itself suspending; the only way this package ever
// waits on something is a goroutine reporting back through Submit.
func (s *CoreSession) handle(m message) {
	switch m.Kind {
	case msgTick:
		s.handleTick(m)
	case msgStallTick:
		s.handleStallTick(m)
	case msgFetchCompleted:
		s.handleFetchCompleted(m)
	case msgFetchFailed:
		s.handleFetchFailed(m)
	case msgRepresentationsChanged:
		s.handleRepresentationsChanged(m)
	case msgSeekRequested:
		s.handleSeekRequested(m)
	case msgSeeked:
		s.handleSeeked(m)
	case msgForceVideoBitrateChange:
		s.handleForceVideoBitrateChange(m)
	case msgQualityChangeRequested:
		s.handleQualityChangeRequested(m)
	case msgEnableABR:
		s.video.selector.EnableABR()
	case msgDimensionsChanged:
		s.handleDimensionsChanged(m)
	case msgPlaybackStarted:
		s.handlePlaybackStarted(m)
	case msgPlaybackPaused:
		s.handlePlaybackPaused(m)
	case msgPlaybackEnded:
		s.handlePlaybackEnded(m)
	}
}

func (s *CoreSession) trackFor(kind model.TrackKind) *trackContext {
	if kind == model.TrackAudio {
		return s.audio
	}
	return s.video
}

// handleRepresentationsChanged installs a fresh representation set,
// (re)initializes BOLA and the selector, and opens the sink for whichever
// representation BOLA's STARTUP branch picks at buffer level zero.
func (s *CoreSession) handleRepresentationsChanged(m message) {
	nowMs := s.now()
	first := !s.sourceLoaded
	s.sourceLoaded = true

	if m.VideoReps != nil {
		s.installRepresentations(s.video, m.VideoReps, nowMs)
	}
	if m.AudioReps != nil {
		s.installRepresentations(s.audio, m.AudioReps, nowMs)
	}

	s.bus.Publish(events.Event{
		Kind: events.RepresentationsChanged,
		Payload: events.RepresentationsChangedPayload{
			VideoReps: s.video.pipe.Representations(),
			AudioReps: s.audio.pipe.Representations(),
		},
	})

	if first {
		s.sched.OnSourceChange()
		s.armTick(s.cfg.Scheduler.InitialDelayMs)
	}
}

func (s *CoreSession) installRepresentations(tc *trackContext, reps []*model.Representation, nowMs float64) {
	tc.rawRepresentations = reps
	filtered := tc.filteredRepresentations()
	if len(filtered) == 0 {
		return
	}

	tc.bolaCtl.Init(filtered)
	tc.selector.SetRepresentations(filtered)

	decision := tc.bolaCtl.Choose(0, tc.est.Estimate(), nowMs)
	tc.pipe.SetRepresentations(filtered, decision.Index)

	rep := tc.pipe.CurrentRepresentation()
	if rep != nil && !tc.initialized {
		if err := tc.sink.Open(rep.MimeType, rep.Codecs); err == nil {
			tc.initialized = true
			tc.mime, tc.codecs = rep.MimeType, rep.Codecs
		}
	}
	if rep != nil && rep.SegmentList != nil {
		if first := rep.SegmentList.First(); first != nil {
			tc.avgSegmentDurationS = first.Duration()
		}
	}
}

func (s *CoreSession) handlePlaybackStarted(m message) {
	nowMs := s.now()
	wasStreaming := s.streamingActive
	s.streamingActive = true
	s.sched.OnPlaybackStarted(nowMs)
	s.stallDet.SetContext(stall.ContextStartup, nowMs)

	for _, tc := range []*trackContext{s.video, s.audio} {
		tc.pipe.SetStreamingActive(true)
		tc.selector.OnPlaybackStarted(nowMs)
		s.loadNext(tc, nowMs)
	}

	if !wasStreaming {
		s.armStallTick()
	}
}

// handleStallTick is the fixed 10 Hz sample §4.6 specifies for the
// StallDetector/GapHandler, rearming itself until playback ends or the
// session shuts down.
func (s *CoreSession) handleStallTick(m message) {
	if m.Gen != s.stallGen || s.shuttingDown || !s.streamingActive {
		return
	}
	s.checkStallAndGap(s.now())
	s.armStallTick()
}

func (s *CoreSession) handlePlaybackPaused(m message) {
	s.sched.OnPause(s.video.pipe.BufferLevel(), s.cfg.Buffer.BufferingTarget)
}

func (s *CoreSession) handlePlaybackEnded(m message) {
	s.sched.OnEnd()
	s.streamingActive = false
	s.video.pipe.SetStreamingActive(false)
	s.audio.pipe.SetStreamingActive(false)
}

// handleSeekRequested commands the playback engine to the new position and
// tears both pipelines down for it, per §4.4.10.
func (s *CoreSession) handleSeekRequested(m message) {
	nowMs := s.now()
	if s.playback != nil {
		s.playback.SeekTo(m.SeekTo)
	}
	s.sched.OnSeek()
	s.gapHandler.OnSeek(nowMs)
	s.stallDet.SetContext(stall.ContextSeeking, nowMs)

	for _, tc := range []*trackContext{s.video, s.audio} {
		tc.bolaCtl.OnSeek()
		tc.selector.OnSeek(nowMs)
		tc.sink.Abort()
		tc.pipe.ResetForSeek(m.SeekTo)
		s.driveRemovalQueue(tc)
	}
}

// handleSeeked resumes loading once the engine confirms the seek landed.
func (s *CoreSession) handleSeeked(m message) {
	nowMs := s.now()
	s.stallDet.SetContext(stall.ContextNormal, nowMs)
	for _, tc := range []*trackContext{s.video, s.audio} {
		s.loadNext(tc, nowMs)
	}
}

func (s *CoreSession) handleForceVideoBitrateChange(m message) {
	if m.ForcedRep == nil {
		return
	}
	s.video.selector.DisableABR()
	idx := indexOfRepresentation(s.video.pipe.Representations(), m.ForcedRep.ID)
	if idx < 0 {
		return
	}
	s.applyRepresentationChange(s.video, idx, "Forced")
}

// handleQualityChangeRequested applies an explicit representation pick
// (e.g. the user chose a rung from a quality menu) without forcing ABR
// off, unlike handleForceVideoBitrateChange.
func (s *CoreSession) handleQualityChangeRequested(m message) {
	if m.ForcedRep == nil {
		return
	}
	idx := indexOfRepresentation(s.video.pipe.Representations(), m.ForcedRep.ID)
	if idx < 0 {
		return
	}
	reason := m.SwitchReason
	if reason == "" {
		reason = "ChosenByUser"
	}
	s.applyRepresentationChange(s.video, idx, reason)
}

func (s *CoreSession) handleDimensionsChanged(m message) {
	s.video.filterOpts = quality.FilterOptions{
		ScreenWidth:      m.ScreenWidth,
		ScreenHeight:     m.ScreenHeight,
		DevicePixelRatio: m.DevicePixelRatio,
		DisplayWidth:     m.DisplayWidth,
		DisplayHeight:    m.DisplayHeight,
	}
	filtered := s.video.filteredRepresentations()
	if len(filtered) == 0 {
		return
	}
	s.video.bolaCtl.Init(filtered)
	s.video.selector.SetRepresentations(filtered)
	s.bus.Publish(events.Event{
		Kind: events.RepresentationsChanged,
		Payload: events.RepresentationsChangedPayload{
			VideoReps: filtered,
			AudioReps: s.audio.pipe.Representations(),
		},
	})
}

func (s *CoreSession) handleFetchCompleted(m message) {
	tc := s.trackFor(m.Track)
	nowMs := s.now()
	ref := tc.pipe.SegmentRef(m.Task.SegmentNumber)

	if !m.FromCache {
		tc.est.Sample(m.DurationMs, m.Transferred)
	}
	if ref != nil {
		tc.bolaCtl.OnSegmentDownloadEnd(ref, m.Task.IsReplacement, nowMs)
	}

	result := tc.pipe.CompleteDownload(m.Task, pipeline.FetchResult{
		Bytes:            m.Bytes,
		HTTPStatus:       m.HTTPStatus,
		DurationMs:       m.DurationMs,
		FromCache:        m.FromCache,
		TransferredBytes: m.Transferred,
		ResourceBytes:    m.Resource,
	})

	status := "ok"
	if result.Discarded {
		status = "discarded"
	}
	s.bus.Publish(events.Event{Kind: events.FragmentLoadingCompleted, Payload: events.FragmentLoadingCompletedPayload{
		Track:            m.Track,
		Ref:              ref,
		Status:           status,
		DurationMs:       m.DurationMs,
		FromCache:        m.FromCache,
		TransferredBytes: m.Transferred,
		ResourceBytes:    m.Resource,
		IsReplacement:    m.Task.IsReplacement,
		Discarded:        result.Discarded,
		Reason:           result.Reason,
	}})

	s.driveAppendQueue(tc)
	s.driveReplacementQueue(tc)
	s.loadNext(tc, nowMs)
	s.maybeStartReplacements(tc, nowMs)
}

func (s *CoreSession) handleFetchFailed(m message) {
	tc := s.trackFor(m.Track)
	nowMs := s.now()
	err := tc.pipe.FailDownload(m.Task, m.HTTPStatus, m.DurationMs, fmt.Errorf("fetch failed with status %d", m.HTTPStatus))

	s.bus.Publish(events.Event{Kind: events.FragmentLoadingCompleted, Payload: events.FragmentLoadingCompletedPayload{
		Track:         m.Track,
		Status:        "failed",
		DurationMs:    m.DurationMs,
		IsReplacement: m.Task.IsReplacement,
		Reason:        err.Error(),
	}})

	s.driveAppendQueue(tc)
	s.loadNext(tc, nowMs)
}

func indexOfRepresentation(reps []*model.Representation, id string) int {
	for i, r := range reps {
		if r.ID == id {
			return i
		}
	}
	return -1
}
