package pipeline

import (
	"sort"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/dashabr/internal/abr/errors"
	"github.com/mantonx/dashabr/internal/abr/model"
)

// quotaPhase models the quota-exceeded recovery state machine mandated in
// place of try/catch control flow: NORMAL, DRAINING_FOR_QUOTA, CRITICAL.
type quotaPhase int

const (
	quotaNormal quotaPhase = iota
	quotaDraining
	quotaCritical
)

// TrackPipeline is the SegmentPipeline for one track (video or audio). The
// SegmentPipeline as named in the design is realized as one TrackPipeline
// per TrackKind, sharing nothing but the Scheduler and StallDetector.
type TrackPipeline struct {
	log hclog.Logger

	track model.TrackKind
	cfg   Config
	kind  sinkKind

	sink    SinkOperator
	starter FetchStarter

	representations []*model.Representation
	currentRepIdx   int

	downloadPipeline []*model.DownloadTask
	appendQueue      []*model.QueuedSegment
	appending        bool

	replacementQueue       []*model.ReplacementTask
	replacementsInProgress map[int64]bool
	replacementProcessing  bool
	replacementPriorInfo   *model.BufferedSegmentInfo

	bufferedSegments map[int64]*model.BufferedSegmentInfo

	blacklistedURLs     map[string]bool
	blacklistedSegments map[int64]bool

	pendingRemovals   []Range
	removalProcessing bool

	nextSegmentToDownload *int64
	nextSegmentToAppend   *int64

	quota            quotaPhase
	criticalLevel    float64
	quotaIdleRetries int

	streamingActive bool

	playheadFn func() float64
	avgSegmentDuration float64
	lastPruneMs        float64
}

// New constructs a TrackPipeline. sink and starter are supplied by the
// session; playheadFn reads the playback engine's current position.
func New(logger hclog.Logger, track model.TrackKind, cfg Config, sink SinkOperator, starter FetchStarter, playheadFn func() float64) *TrackPipeline {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	k := sinkStandard
	if cfg.ManagedSink {
		k = sinkManaged
	}
	return &TrackPipeline{
		log:                    logger.Named(string(track)),
		track:                  track,
		cfg:                    cfg,
		kind:                   k,
		sink:                   sink,
		starter:                starter,
		replacementsInProgress: make(map[int64]bool),
		bufferedSegments:       make(map[int64]*model.BufferedSegmentInfo),
		blacklistedURLs:        make(map[string]bool),
		blacklistedSegments:    make(map[int64]bool),
		playheadFn:             playheadFn,
		avgSegmentDuration:     4,
	}
}

// SetRepresentations installs a new representation set and selects idx as
// current, without itself performing the sink teardown/init-segment dance;
// callers (CoreSession) open the sink themselves and use
// ChangeRepresentation for later switches, so the pipeline stays a pure
// state machine here. The first call that finds no download pointer anchors
// both pointers at the segment covering the current playhead.
func (p *TrackPipeline) SetRepresentations(reps []*model.Representation, idx int) {
	p.representations = model.SortRepresentationsByBitrate(reps)
	p.currentRepIdx = idx
	if p.nextSegmentToDownload == nil && p.playheadFn != nil {
		p.resetDownloadPointersAfterPrune(p.playheadFn(), 0)
	}
}

// ChangeRepresentation switches the active representation by index, for a
// quality-selector-driven switch (§4.4.2). DASH representations within one
// adaptation set share a segment-number timeline, so the download/append
// pointers need no recomputation: only the bitrate/codecs association for
// segments not yet dispatched changes.
func (p *TrackPipeline) ChangeRepresentation(idx int) {
	p.currentRepIdx = idx
}

// CurrentIndex returns the active representation's index, or -1 if none is
// selected.
func (p *TrackPipeline) CurrentIndex() int {
	if p.currentRepIdx < 0 || p.currentRepIdx >= len(p.representations) {
		return -1
	}
	return p.currentRepIdx
}

// Representations returns the installed representation set, ascending by
// bitrate.
func (p *TrackPipeline) Representations() []*model.Representation {
	return p.representations
}

// HasInFlightDownload reports whether any non-replacement download is
// currently in flight, used by the StallDetector's "suppressed" input: a
// zero buffer with an active download in flight is an ordinary rebuffer,
// not a stall.
func (p *TrackPipeline) HasInFlightDownload() bool {
	for _, d := range p.downloadPipeline {
		if !d.IsReplacement {
			return true
		}
	}
	return false
}

// SegmentRef exposes the current representation's reference for segment n,
// for callers driving the append/replacement queues that need the
// segment's time bounds to report back to the sink.
func (p *TrackPipeline) SegmentRef(n int64) *model.SegmentReference {
	return p.segmentRef(n)
}

// CurrentRepresentation returns the active representation, or nil.
func (p *TrackPipeline) CurrentRepresentation() *model.Representation {
	if p.currentRepIdx < 0 || p.currentRepIdx >= len(p.representations) {
		return nil
	}
	return p.representations[p.currentRepIdx]
}

// SetStreamingActive toggles whether new downloads may be dispatched.
func (p *TrackPipeline) SetStreamingActive(active bool) {
	p.streamingActive = active
}

// BufferLevel computes the effective buffer level per §4.4.11: future
// ranges from the playhead, bridging jumpable gaps, clamped to 1.5x target.
func (p *TrackPipeline) BufferLevel() float64 {
	playhead := 0.0
	if p.playheadFn != nil {
		playhead = p.playheadFn()
	}
	ranges := p.sink.Buffered()
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

	total := 0.0
	covered := false
	var lastEnd float64
	for _, r := range ranges {
		if r.End <= playhead {
			continue
		}
		start := r.Start
		if !covered {
			if start > playhead {
				// Not yet inside a buffered range at the playhead; no
				// current-position coverage to bridge from.
				if start-playhead >= jumpableGapSeconds && start-playhead >= p.cfg.BufferingTarget {
					break
				}
			}
			covered = true
			lastEnd = playhead
		}
		gap := start - lastEnd
		if gap > 0 {
			if gap < jumpableGapSeconds || gap < p.cfg.BufferingTarget {
				total += gap // bridge it
			} else {
				break
			}
		}
		total += r.End - start
		lastEnd = r.End
	}

	clampTo := p.cfg.BufferingTarget * 1.5
	if total > clampTo {
		total = clampTo
	}
	return total
}

// ShouldStartNewDownload implements §4.4.3's admission check.
func (p *TrackPipeline) ShouldStartNewDownload() bool {
	if !p.streamingActive || p.quota != quotaNormal {
		return false
	}
	if p.kind == sinkManaged {
		return len(p.downloadPipeline) == 0
	}
	if len(p.downloadPipeline) >= p.cfg.MaxConcurrentDownloads {
		return false
	}
	remaining := p.cfg.BufferingTarget - p.BufferLevel()
	if remaining <= 0 {
		return false
	}
	committed := p.committedDuration()
	return committed+safetyMarginSeconds <= remaining
}

func (p *TrackPipeline) committedDuration() float64 {
	total := 0.0
	for _, q := range p.appendQueue {
		total += q.Duration
	}
	for _, d := range p.downloadPipeline {
		if d.IsReplacement {
			continue
		}
		if ref := p.segmentRef(d.SegmentNumber); ref != nil {
			total += ref.Duration()
		}
	}
	return total
}

func (p *TrackPipeline) segmentRef(n int64) *model.SegmentReference {
	rep := p.CurrentRepresentation()
	if rep == nil || rep.SegmentList == nil {
		return nil
	}
	return rep.SegmentList.ByNumber(n)
}

// NextSegmentNumber returns the next segment to dispatch, advancing past
// numbers already in flight or queued for append, and false if the
// representation's segments are exhausted.
func (p *TrackPipeline) NextSegmentNumber() (int64, bool) {
	if p.nextSegmentToDownload == nil {
		return 0, false
	}
	rep := p.CurrentRepresentation()
	if rep == nil || rep.SegmentList == nil {
		return 0, false
	}
	last := rep.SegmentList.Last()
	if last == nil {
		return 0, false
	}
	n := *p.nextSegmentToDownload
	for p.inFlight(n) {
		n++
	}
	if n > last.SegmentNumber {
		return 0, false
	}
	return n, true
}

func (p *TrackPipeline) inFlight(n int64) bool {
	for _, d := range p.downloadPipeline {
		if d.SegmentNumber == n && !d.IsReplacement {
			return true
		}
	}
	for _, q := range p.appendQueue {
		if q.SegmentNumber == n {
			return true
		}
	}
	return p.blacklistedSegments[n]
}

// BeginDownload registers a DownloadTask and asks the FetchStarter to
// launch it; the caller's StartFetch implementation runs the suspension
// point (network I/O) and later reports completion via CompleteDownload
// or FailDownload.
func (p *TrackPipeline) BeginDownload(ref *model.SegmentReference, nowMs float64, isReplacement bool, replacing int64) *model.DownloadTask {
	url := model.URI(ref)
	if p.blacklistedURLs[url] {
		p.enqueueSkip(ref.SegmentNumber)
		return nil
	}
	task := &model.DownloadTask{
		SegmentNumber:    ref.SegmentNumber,
		URL:              url,
		RepresentationID: ref.RepresentationID,
		StartedAtMs:      nowMs,
		IsReplacement:    isReplacement,
		ReplacingSegment: replacing,
	}
	p.downloadPipeline = append(p.downloadPipeline, task)
	if isReplacement {
		p.replacementsInProgress[replacing] = true
	}
	p.starter.StartFetch(task)
	return task
}

func (p *TrackPipeline) enqueueSkip(n int64) {
	p.appendQueue = append(p.appendQueue, &model.QueuedSegment{SegmentNumber: n})
	p.sortAppendQueue()
}

func (p *TrackPipeline) sortAppendQueue() {
	sort.SliceStable(p.appendQueue, func(i, j int) bool {
		return p.appendQueue[i].SegmentNumber < p.appendQueue[j].SegmentNumber
	})
}

func (p *TrackPipeline) removeDownloadTask(task *model.DownloadTask) {
	for i, d := range p.downloadPipeline {
		if d == task {
			p.downloadPipeline = append(p.downloadPipeline[:i], p.downloadPipeline[i+1:]...)
			return
		}
	}
}

// CompleteResult reports what CompleteDownload did with a finished,
// non-replacement fetch: Discarded is set when the download overran
// maxAllowedOverrun (§4.4.3/§6) and was dropped rather than queued for
// append.
type CompleteResult struct {
	Discarded bool
	Reason    string
}

// CompleteDownload handles a successful fetch completion: regular
// downloads enter the append queue (unless they overran the buffer's
// allowed overrun ceiling, in which case they are discarded); replacement
// downloads enter the replacement queue.
func (p *TrackPipeline) CompleteDownload(task *model.DownloadTask, res FetchResult) CompleteResult {
	p.removeDownloadTask(task)
	if task.IsReplacement {
		ref := p.segmentRef(task.ReplacingSegment)
		rep := p.CurrentRepresentation()
		var bitrate int64
		if rep != nil {
			bitrate = rep.Bitrate
		}
		p.replacementQueue = append(p.replacementQueue, &model.ReplacementTask{
			SegmentNumber:    task.ReplacingSegment,
			RepresentationID: task.RepresentationID,
			Bitrate:          bitrate,
			Data:             res.Bytes,
			Ref:              ref,
		})
		return CompleteResult{}
	}
	rep := p.CurrentRepresentation()
	var bitrate int64
	if rep != nil {
		bitrate = rep.Bitrate
	}
	ref := p.segmentRef(task.SegmentNumber)
	duration := 0.0
	if ref != nil {
		duration = ref.Duration()
	}

	if p.BufferLevel() > p.cfg.BufferingTarget+p.cfg.MaxAllowedOverrun {
		p.enqueueSkip(task.SegmentNumber)
		if p.nextSegmentToDownload != nil && task.SegmentNumber >= *p.nextSegmentToDownload {
			next := task.SegmentNumber + 1
			p.nextSegmentToDownload = &next
		}
		return CompleteResult{Discarded: true, Reason: "exceeded maxAllowedOverrun"}
	}

	p.appendQueue = append(p.appendQueue, &model.QueuedSegment{
		SegmentNumber:    task.SegmentNumber,
		RepresentationID: task.RepresentationID,
		Data:             res.Bytes,
		Duration:         duration,
		Bitrate:          bitrate,
		Size:             len(res.Bytes),
	})
	p.sortAppendQueue()
	if p.nextSegmentToDownload != nil && task.SegmentNumber >= *p.nextSegmentToDownload {
		next := task.SegmentNumber + 1
		p.nextSegmentToDownload = &next
	}
	return CompleteResult{}
}

// FailDownload classifies a fetch failure per §7/§4.4.3: 404s blacklist the
// URL; near-timeout failures blacklist the segment number. Either way the
// segment is enqueued as a zero-byte skip marker so the append pointer can
// advance past it.
func (p *TrackPipeline) FailDownload(task *model.DownloadTask, httpStatus int, elapsedMs float64, err error) error {
	p.removeDownloadTask(task)
	if task.IsReplacement {
		delete(p.replacementsInProgress, task.ReplacingSegment)
		return errors.NetworkError("fetch", err).WithTrack(string(p.track))
	}

	if httpStatus == 404 {
		p.blacklistedURLs[task.URL] = true
		p.enqueueSkip(task.SegmentNumber)
		return errors.PermanentError("fetch", err).WithTrack(string(p.track))
	}
	if elapsedMs >= 0.8*p.cfg.SegmentTimeoutMs {
		p.blacklistedSegments[task.SegmentNumber] = true
		p.enqueueSkip(task.SegmentNumber)
		return errors.New(errors.ErrorTypeNetwork, "fetch", errors.ErrSegmentTimeout).WithTrack(string(p.track))
	}
	return errors.NetworkError("fetch", err).WithTrack(string(p.track))
}
