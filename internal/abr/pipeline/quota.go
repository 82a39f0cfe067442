package pipeline

import "math"

const (
	quotaIdleWaitRetries   = 10
	quotaIdleWaitStepMs    = 100
	quotaRecoveryFloorSecs = 10
	quotaQuiescenceMs      = 2000
)

// beginQuotaRecovery is the reentrancy-guarded entry point (§4.4.8 step 0):
// a second call while recovery is already underway is a no-op, making the
// whole procedure idempotent.
func (p *TrackPipeline) beginQuotaRecovery() {
	if p.quota != quotaNormal {
		return
	}
	p.quota = quotaDraining
	p.quotaIdleRetries = 0
}

// InQuotaRecovery reports whether the pipeline is currently draining for a
// quota-exceeded event.
func (p *TrackPipeline) InQuotaRecovery() bool {
	return p.quota != quotaNormal
}

// AdvanceQuotaRecovery drives steps 1-7 of §4.4.8. Call once per tick while
// InQuotaRecovery() is true. It returns (newBufferTarget, ready) where
// ready is true once the recovery has completed this call and
// newBufferTarget should be published as BUFFER_TARGET_CHANGED.
func (p *TrackPipeline) AdvanceQuotaRecovery(sinkIdle bool, playhead, currentBufferLevel float64) (float64, bool) {
	if p.quota != quotaDraining {
		return 0, false
	}
	if !sinkIdle {
		p.quotaIdleRetries++
		if p.quotaIdleRetries < quotaIdleWaitRetries {
			return 0, false
		}
	}

	p.sink.Abort()

	base := p.criticalLevel
	if base == 0 {
		base = currentBufferLevel
	}
	newTarget := math.Max(quotaRecoveryFloorSecs, base*p.cfg.QuotaExceededCorrection)
	p.criticalLevel = newTarget

	for _, d := range p.downloadPipeline {
		if d.Cancel != nil {
			d.Cancel()
		}
	}
	p.downloadPipeline = nil
	p.appendQueue = nil
	p.replacementQueue = nil
	p.replacementsInProgress = make(map[int64]bool)

	keepBehind := math.Min(p.cfg.BufferBehind, 2)
	keepStart := playhead - keepBehind
	keepEnd := playhead + newTarget
	p.queuePendingRemovals(rangesOutsideWindow(p.sink.Buffered(), keepStart, keepEnd))
	p.pruneBufferedSegmentsOutside(keepStart, keepEnd)

	p.resetDownloadPointersAfterPrune(playhead, keepEnd)

	p.quota = quotaCritical
	return newTarget, true
}

// EndQuotaRecovery is called after the 2-second quiescence window (§4.4.8
// step 8); reschedule reports whether the scheduler should be nudged
// because the buffer is still below the critical floor.
func (p *TrackPipeline) EndQuotaRecovery(bufferLevel float64) (reschedule bool) {
	if p.quota != quotaCritical {
		return false
	}
	p.quota = quotaNormal
	return bufferLevel < quotaRecoveryFloorSecs
}

func (p *TrackPipeline) pruneBufferedSegmentsOutside(start, end float64) {
	for n, info := range p.bufferedSegments {
		if info.EndTime <= start || info.StartTime >= end {
			delete(p.bufferedSegments, n)
		}
	}
}

func (p *TrackPipeline) resetDownloadPointersAfterPrune(playhead, bufferEnd float64) {
	rep := p.CurrentRepresentation()
	if rep == nil || rep.SegmentList == nil {
		p.nextSegmentToDownload = nil
		p.nextSegmentToAppend = nil
		return
	}
	anchor := bufferEnd
	if len(p.bufferedSegments) == 0 {
		anchor = playhead
	}
	ref := rep.SegmentList.At(anchor)
	if ref == nil {
		p.nextSegmentToDownload = nil
		p.nextSegmentToAppend = nil
		return
	}
	n := ref.SegmentNumber
	p.nextSegmentToDownload = &n
	next := n
	p.nextSegmentToAppend = &next
}
