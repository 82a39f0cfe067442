package session

import (
	"github.com/mantonx/dashabr/internal/abr/events"
	"github.com/mantonx/dashabr/internal/abr/model"
	"github.com/mantonx/dashabr/internal/abr/pipeline"
	"github.com/mantonx/dashabr/internal/abr/quality"
	"github.com/mantonx/dashabr/internal/abr/stall"
)

// handleTick is the scheduler's loop body: drive every queue, check
// quality if due, dispatch new downloads and fast-switch replacements,
// sample the stall detector, and rearm the next tick at the scheduler's
// adaptively computed interval.
func (s *CoreSession) handleTick(m message) {
	if m.Gen != s.gen || s.sched.Stopped() || s.shuttingDown {
		return
	}
	nowMs := s.now()

	tracks := []*trackContext{s.video, s.audio}
	playhead := s.playheadFn()

	for _, tc := range tracks {
		s.driveAppendQueue(tc)
		s.driveReplacementQueue(tc)
		s.advanceQuotaRecovery(tc, nowMs)
		tc.pipe.PruneIfDue(nowMs, playhead)
		s.driveRemovalQueue(tc)
	}

	if s.sched.ShouldCheckQuality(nowMs) {
		for _, tc := range tracks {
			s.checkQuality(tc, nowMs)
		}
	}

	for _, tc := range tracks {
		s.loadNext(tc, nowMs)
		s.maybeStartReplacements(tc, nowMs)
	}

	if s.sched.Preloading() && s.video.pipe.BufferLevel() >= s.cfg.Scheduler.PreloadTarget {
		s.sched.EndPreload()
	}

	interval := s.sched.NextIntervalMs(s.video.pipe.BufferLevel(), s.cfg.Buffer.BufferingTarget, s.video.avgSegmentDurationS)
	s.armTick(interval)
}

func (s *CoreSession) checkQuality(tc *trackContext, nowMs float64) {
	if !tc.initialized {
		return
	}
	var pq quality.PlaybackQuality
	if tc.kind == model.TrackVideo && s.playback != nil {
		pq.DroppedFrames, pq.TotalFrames = s.playback.VideoPlaybackQuality()
	}
	result := tc.selector.Check(nowMs, tc.pipe.BufferLevel(), tc.est.Estimate(), tc.pipe.CurrentIndex(), pq)
	if result.Changed {
		s.applyRepresentationChange(tc, result.Index, result.SwitchReason)
	}
}

func (s *CoreSession) applyRepresentationChange(tc *trackContext, idx int, reason string) {
	tc.pipe.ChangeRepresentation(idx)

	nowMs := s.now()
	s.qualitySwitchingUntilMs = nowMs + qualitySwitchingGraceMs
	s.stallDet.SetContext(stall.ContextQualitySwitching, nowMs)

	kind := events.VideoBitrateChanged
	if tc.kind == model.TrackAudio {
		kind = events.AudioBitrateChanged
	}
	s.bus.Publish(events.Event{Kind: kind, Payload: events.BitrateChangedPayload{
		Track:          tc.kind,
		Representation: tc.pipe.CurrentRepresentation(),
		SwitchReason:   reason,
	}})
}

// driveAppendQueue drains the append queue fully for one tick: the fake
// sink's append resolves synchronously, so there is no suspension point to
// wait on here, only the bookkeeping ProcessAppendQueue/OnAppendComplete
// already require.
func (s *CoreSession) driveAppendQueue(tc *trackContext) {
	for {
		action := tc.pipe.ProcessAppendQueue(s.shuttingDown, true)
		if action == nil {
			return
		}
		var start, end float64
		if ref := tc.pipe.SegmentRef(action.Segment.SegmentNumber); ref != nil {
			start, end = ref.StartTime, ref.EndTime
		}
		quotaExceeded := tc.sink.CompleteOperation(start, end)
		outcome := pipeline.AppendOK
		if quotaExceeded {
			outcome = pipeline.AppendQuotaExceeded
		}
		tc.pipe.OnAppendComplete(action, outcome)
		if quotaExceeded {
			continue
		}
		tc.pipe.SyncBufferedSegments()
		if tc.kind == model.TrackVideo {
			s.bus.Publish(events.Event{Kind: events.BufferLevelUpdated, Payload: events.BufferLevelUpdatedPayload{
				BufferLevel: tc.pipe.BufferLevel(),
			}})
		}
	}
}

// driveReplacementQueue drains the strictly-serial remove-then-append
// replacement sequence, same synchronous-sink reasoning as above.
func (s *CoreSession) driveReplacementQueue(tc *trackContext) {
	action := tc.pipe.ProcessReplacementQueue(true)
	for action != nil {
		if action.IsRemovePhase() {
			tc.sink.CompleteOperation(action.Task.Ref.StartTime, action.Task.Ref.EndTime)
			if next := tc.pipe.OnReplacementRemoveComplete(action, nil); next != nil {
				action = next
				continue
			}
			action = tc.pipe.ProcessReplacementQueue(true)
			continue
		}
		quotaExceeded := tc.sink.CompleteOperation(action.Task.Ref.StartTime, action.Task.Ref.EndTime)
		outcome := pipeline.AppendOK
		if quotaExceeded {
			outcome = pipeline.AppendQuotaExceeded
		}
		tc.pipe.OnReplacementAppendComplete(action, outcome)
		action = tc.pipe.ProcessReplacementQueue(true)
	}
}

// driveRemovalQueue drains ranges queued by quota recovery (§4.4.8),
// seek reset (§4.4.10), and background pruning (§4.4.9) against the sink,
// same synchronous-sink reasoning as driveAppendQueue/driveReplacementQueue.
func (s *CoreSession) driveRemovalQueue(tc *trackContext) {
	for {
		action := tc.pipe.ProcessPendingRemoval(true)
		if action == nil {
			return
		}
		tc.sink.CompleteOperation(action.Range.Start, action.Range.End)
		tc.pipe.OnPendingRemovalComplete(action)
		tc.pipe.SyncBufferedSegments()
	}
}

// loadNext dispatches new downloads until admission (ShouldStartNewDownload)
// says to stop or the representation's segments are exhausted. A
// blacklisted candidate does not stop it: BeginDownload enqueues a skip and
// returns nil, and the loop moves on to the next number.
func (s *CoreSession) loadNext(tc *trackContext, nowMs float64) {
	for tc.pipe.ShouldStartNewDownload() {
		n, ok := tc.pipe.NextSegmentNumber()
		if !ok {
			return
		}
		rep := tc.pipe.CurrentRepresentation()
		if rep == nil || rep.SegmentList == nil {
			return
		}
		ref := rep.SegmentList.ByNumber(n)
		if ref == nil {
			return
		}
		task := tc.pipe.BeginDownload(ref, nowMs, false, 0)
		if task == nil {
			continue
		}
		tc.bolaCtl.OnSegmentDownloadBegin(ref, nowMs)
		s.bus.Publish(events.Event{Kind: events.FragmentLoadingStarted, Payload: events.FragmentLoadingStartedPayload{
			Track: tc.kind,
			Ref:   ref,
		}})
	}
}

// maybeStartReplacements dispatches a fast-switch download for every
// currently eligible buffered segment; ReplacementCandidates/
// replacementsInProgress already prevent dispatching the same segment
// twice.
func (s *CoreSession) maybeStartReplacements(tc *trackContext, nowMs float64) {
	playhead := s.playheadFn()
	for _, c := range tc.pipe.ReplacementCandidates(playhead) {
		tc.pipe.BeginReplacementDownload(c, nowMs)
	}
}

// advanceQuotaRecovery drives the quota-exceeded recovery state machine
// (§4.4.8) one step per tick, including the 2-second quiescence window
// between reaching the critical floor and calling EndQuotaRecovery.
func (s *CoreSession) advanceQuotaRecovery(tc *trackContext, nowMs float64) {
	if !tc.pipe.InQuotaRecovery() {
		tc.quotaPendingEnd = false
		return
	}
	if tc.quotaPendingEnd {
		if nowMs >= tc.quotaReadyAtMs {
			tc.pipe.EndQuotaRecovery(tc.pipe.BufferLevel())
			tc.quotaPendingEnd = false
		}
		return
	}
	newTarget, ready := tc.pipe.AdvanceQuotaRecovery(true, s.playheadFn(), tc.pipe.BufferLevel())
	if ready {
		s.bus.Publish(events.Event{Kind: events.BufferTargetChanged, Payload: events.BufferTargetChangedPayload{NewBufferTarget: newTarget}})
		tc.quotaPendingEnd = true
		tc.quotaReadyAtMs = nowMs + quotaQuiescenceMs
	}
}

// checkStallAndGap samples the StallDetector and, on confirmation, asks the
// GapHandler whether a jump is warranted, issuing it directly against the
// playback engine.
func (s *CoreSession) checkStallAndGap(nowMs float64) {
	if s.playback == nil {
		return
	}
	playhead := s.playback.Playhead()
	paused := s.playback.IsPaused()
	seeking := s.playback.IsSeeking()
	suppressed := s.video.pipe.HasInFlightDownload() || s.audio.pipe.HasInFlightDownload()

	confirmed := s.stallDet.Sample(nowMs, playhead, paused, seeking, false, suppressed)

	qualitySwitching := nowMs < s.qualitySwitchingUntilMs
	ranges := stallRangesFrom(s.video.sink.Buffered())
	duration := s.playback.Duration()

	if seekTo, ok := s.gapHandler.Check(nowMs, playhead, s.gapHandlingActive, seeking, paused, qualitySwitching, confirmed, ranges, duration); ok {
		s.playback.SeekTo(seekTo)
	}
}

func stallRangesFrom(ranges []pipeline.Range) []stall.Range {
	out := make([]stall.Range, len(ranges))
	for i, r := range ranges {
		out[i] = stall.Range{Start: r.Start, End: r.End}
	}
	return out
}
