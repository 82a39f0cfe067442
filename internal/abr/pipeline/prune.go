package pipeline

import "sort"

// RemovalAction is returned by ProcessPendingRemoval when the caller must
// issue a sink removal and later report completion via
// OnPendingRemovalComplete, mirroring the replacement queue's remove half
// but with no accompanying append.
type RemovalAction struct {
	Range Range
}

func (p *TrackPipeline) queuePendingRemovals(ranges []Range) {
	p.pendingRemovals = append(p.pendingRemovals, ranges...)
}

// ProcessPendingRemoval drains ranges queued by quota recovery (§4.4.8 step
// 5), seek reset (§4.4.10), and background pruning (§4.4.9) strictly
// serially against the sink.
func (p *TrackPipeline) ProcessPendingRemoval(sinkIdle bool) *RemovalAction {
	if p.removalProcessing || !sinkIdle || len(p.pendingRemovals) == 0 {
		return nil
	}
	r := p.pendingRemovals[0]
	p.removalProcessing = true
	p.sink.StartRemove(r.Start, r.End)
	return &RemovalAction{Range: r}
}

// OnPendingRemovalComplete reports the most recently issued removal's
// completion and advances to the next queued range regardless of outcome.
func (p *TrackPipeline) OnPendingRemovalComplete(action *RemovalAction) {
	if len(p.pendingRemovals) > 0 {
		p.pendingRemovals = p.pendingRemovals[1:]
	}
	p.removalProcessing = false
}

// rangesOutsideWindow computes the portions of ranges that fall outside
// [keepStart, keepEnd), covering the remove-before/remove-after/split cases
// §4.4.8 and §4.4.10 enumerate: a range straddling a window edge yields the
// sliver beyond that edge; a range entirely outside the window yields
// itself unchanged.
func rangesOutsideWindow(ranges []Range, keepStart, keepEnd float64) []Range {
	var out []Range
	for _, r := range ranges {
		if r.Start < keepStart {
			end := r.End
			if end > keepStart {
				end = keepStart
			}
			if end > r.Start {
				out = append(out, Range{Start: r.Start, End: end})
			}
		}
		if r.End > keepEnd {
			start := r.Start
			if start < keepEnd {
				start = keepEnd
			}
			if r.End > start {
				out = append(out, Range{Start: start, End: r.End})
			}
		}
	}
	return out
}

// PruneIfDue implements §4.4.9's background pruning: every
// cfg.PruningIntervalMs, if the earliest buffered range starts more than
// bufferBehind seconds before playhead, queue removal of [0, playhead -
// bufferBehind]. Called once per scheduler tick; no-ops until the interval
// has elapsed since the last prune.
func (p *TrackPipeline) PruneIfDue(nowMs, playhead float64) {
	if nowMs-p.lastPruneMs < p.cfg.PruningIntervalMs {
		return
	}
	p.lastPruneMs = nowMs

	ranges := p.sink.Buffered()
	if len(ranges) == 0 {
		return
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	if playhead-ranges[0].Start <= p.cfg.BufferBehind {
		return
	}
	cutoff := playhead - p.cfg.BufferBehind
	if cutoff <= 0 {
		return
	}
	p.queuePendingRemovals([]Range{{Start: 0, End: cutoff}})
}
