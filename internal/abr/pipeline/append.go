package pipeline

import "github.com/mantonx/dashabr/internal/abr/model"

const appendQueueLostThreshold = 3

// AppendAction is what the caller must do after ProcessAppendQueue returns
// non-nil: start an async append of Data on the sink.
type AppendAction struct {
	Segment *model.QueuedSegment
}

// ProcessAppendQueue drives the append queue per §4.4.6. It returns a
// non-nil AppendAction when the caller should call sink.StartAppend and
// later report completion via OnAppendComplete; it returns nil when there
// is nothing to do right now (queue empty, already appending, sink not
// idle/open, or quota recovery in progress).
func (p *TrackPipeline) ProcessAppendQueue(shuttingDown, sinkIdle bool) *AppendAction {
	if shuttingDown || !sinkIdle || p.appending || p.quota != quotaNormal {
		return nil
	}
	if p.sink.State() != SinkStateOpen {
		return nil
	}
	if len(p.appendQueue) == 0 {
		return nil
	}
	if p.nextSegmentToAppend == nil {
		return nil
	}

	expected := *p.nextSegmentToAppend
	entry, idx := p.findAppendEntry(expected)
	if entry == nil {
		if p.allQueuedGreaterThan(expected) && len(p.appendQueue) > appendQueueLostThreshold {
			p.log.Warn("expected segment lost from append queue, resetting", "expected", expected)
			p.appendQueue = nil
			if p.nextSegmentToDownload != nil {
				next := *p.nextSegmentToDownload
				p.nextSegmentToAppend = &next
			}
		}
		return nil
	}

	if entry.Skipped() {
		p.appendQueue = append(p.appendQueue[:idx], p.appendQueue[idx+1:]...)
		next := expected + 1
		p.nextSegmentToAppend = &next
		return p.ProcessAppendQueue(shuttingDown, sinkIdle)
	}

	p.appending = true
	p.sink.StartAppend(entry.Data)
	return &AppendAction{Segment: entry}
}

func (p *TrackPipeline) findAppendEntry(n int64) (*model.QueuedSegment, int) {
	for i, q := range p.appendQueue {
		if q.SegmentNumber == n {
			return q, i
		}
	}
	return nil, -1
}

func (p *TrackPipeline) allQueuedGreaterThan(n int64) bool {
	for _, q := range p.appendQueue {
		if q.SegmentNumber <= n {
			return false
		}
	}
	return true
}

// AppendOutcome classifies the result reported to OnAppendComplete.
type AppendOutcome int

const (
	AppendOK AppendOutcome = iota
	AppendQuotaExceeded
	AppendOtherError
)

// OnAppendComplete reports the async append's outcome for action.Segment.
func (p *TrackPipeline) OnAppendComplete(action *AppendAction, outcome AppendOutcome) {
	p.appending = false
	seg := action.Segment

	switch outcome {
	case AppendQuotaExceeded:
		p.appendQueue = append([]*model.QueuedSegment{seg}, p.removeFromAppendQueueByValue(seg)...)
		p.beginQuotaRecovery()
	case AppendOtherError:
		p.removeFromAppendQueueByValue(seg)
		if p.nextSegmentToAppend != nil {
			next := *p.nextSegmentToAppend + 1
			p.nextSegmentToAppend = &next
		}
	default:
		p.removeFromAppendQueueByValue(seg)
		if p.nextSegmentToAppend != nil {
			next := *p.nextSegmentToAppend + 1
			p.nextSegmentToAppend = &next
		}
		rep := p.CurrentRepresentation()
		var repID string
		if rep != nil {
			repID = rep.ID
		}
		ref := p.segmentRef(seg.SegmentNumber)
		if ref != nil {
			p.bufferedSegments[seg.SegmentNumber] = &model.BufferedSegmentInfo{
				SegmentNumber:    seg.SegmentNumber,
				StartTime:        ref.StartTime,
				EndTime:          ref.EndTime,
				RepresentationID: repID,
				Bitrate:          seg.Bitrate,
				Size:             seg.Size,
			}
		}
		if p.nextSegmentToDownload != nil && *p.nextSegmentToDownload < seg.SegmentNumber+1 {
			next := seg.SegmentNumber + 1
			p.nextSegmentToDownload = &next
		}
	}
}

func (p *TrackPipeline) removeFromAppendQueueByValue(seg *model.QueuedSegment) []*model.QueuedSegment {
	out := p.appendQueue[:0]
	for _, q := range p.appendQueue {
		if q != seg {
			out = append(out, q)
		}
	}
	p.appendQueue = out
	return out
}

// SyncBufferedSegments reconciles the BufferedSegmentInfo map against the
// sink's actually-reported buffered ranges, invoked on every updateend
// (§4.4.7).
func (p *TrackPipeline) SyncBufferedSegments() {
	ranges := p.sink.Buffered()
	for n, info := range p.bufferedSegments {
		if !anyOverlap(ranges, info) {
			delete(p.bufferedSegments, n)
		}
	}
}

func anyOverlap(ranges []Range, info *model.BufferedSegmentInfo) bool {
	for _, r := range ranges {
		if info.Overlaps(r.Start, r.End) {
			return true
		}
	}
	return false
}
