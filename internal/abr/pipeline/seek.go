package pipeline

import "github.com/mantonx/dashabr/internal/abr/model"

// ResetForSeek tears the pipeline down to a clean slate anchored at seekTo,
// the counterpart of the quota-recovery teardown in quota.go for the
// "seeking" playback-engine event: every in-flight download is cancelled,
// the append and replacement queues are discarded, buffered segments
// outside the retained window are evicted, and the download/append
// pointers are recomputed from the new playhead.
func (p *TrackPipeline) ResetForSeek(seekTo float64) {
	for _, d := range p.downloadPipeline {
		if d.Cancel != nil {
			d.Cancel()
		}
	}
	p.downloadPipeline = nil
	p.appendQueue = nil
	p.appending = false
	p.replacementQueue = nil
	p.replacementsInProgress = make(map[int64]bool)
	p.replacementProcessing = false
	p.replacementPriorInfo = nil

	windowStart := seekTo - p.cfg.BufferBehind
	windowEnd := seekTo + p.cfg.BufferingTarget
	p.queuePendingRemovals(rangesOutsideWindow(p.sink.Buffered(), windowStart, windowEnd))
	p.pruneRetainedWindow(windowStart, windowEnd)

	p.resetDownloadPointersAfterPrune(seekTo, seekTo)
}

// pruneRetainedWindow evicts BufferedSegmentInfo entries that fall
// entirely outside [start, end), enumerating the six ways one interval can
// relate to another rather than a single inequality, to keep the retention
// rule legible when BufferBehind/BufferingTarget are retuned.
func (p *TrackPipeline) pruneRetainedWindow(start, end float64) {
	for n, info := range p.bufferedSegments {
		switch {
		case info.EndTime <= start:
			// entirely before the window
			delete(p.bufferedSegments, n)
		case info.StartTime >= end:
			// entirely after the window
			delete(p.bufferedSegments, n)
		case info.StartTime >= start && info.EndTime <= end:
			// entirely inside: keep
		case info.StartTime < start && info.EndTime > end:
			// spans the whole window: keep
		case info.StartTime < start:
			// overlaps only the window's leading edge: keep
		case info.EndTime > end:
			// overlaps only the window's trailing edge: keep
		}
	}
}

// SegmentAt exposes the current representation's segment reference
// covering time, used by the caller to recompute a fetch target right
// after a seek without reaching into the representation list directly.
func (p *TrackPipeline) SegmentAt(time float64) *model.SegmentReference {
	rep := p.CurrentRepresentation()
	if rep == nil || rep.SegmentList == nil {
		return nil
	}
	return rep.SegmentList.At(time)
}
