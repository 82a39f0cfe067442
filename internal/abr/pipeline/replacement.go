package pipeline

import (
	"sort"

	"github.com/mantonx/dashabr/internal/abr/model"
)

// ReplacementCandidates returns buffered segments eligible for fast-switch
// replacement (§4.4.5), earliest-deadline first: end after playhead, start
// at least replacementSafetyFactor segment-durations ahead of playhead,
// strictly lower bitrate than the current representation, and not already
// being replaced.
func (p *TrackPipeline) ReplacementCandidates(playhead float64) []*model.BufferedSegmentInfo {
	if !p.cfg.FastSwitchingEnabled {
		return nil
	}
	rep := p.CurrentRepresentation()
	if rep == nil {
		return nil
	}
	threshold := playhead + p.avgSegmentDuration*p.cfg.ReplacementSafetyFactor

	var out []*model.BufferedSegmentInfo
	for _, info := range p.bufferedSegments {
		if info.EndTime <= playhead {
			continue
		}
		if info.StartTime < threshold {
			continue
		}
		if info.Bitrate >= rep.Bitrate {
			continue
		}
		if p.replacementsInProgress[info.SegmentNumber] {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

// BeginReplacementDownload dispatches a replacement fetch for the target
// buffered segment, bypassing the committed-duration admission check.
func (p *TrackPipeline) BeginReplacementDownload(target *model.BufferedSegmentInfo, nowMs float64) *model.DownloadTask {
	ref := p.segmentRef(target.SegmentNumber)
	if ref == nil {
		return nil
	}
	return p.BeginDownload(ref, nowMs, true, target.SegmentNumber)
}

// replacementPhase tracks where one in-flight replacement task is in its
// remove-then-append sequence.
type replacementPhase int

const (
	replacementRemoving replacementPhase = iota
	replacementAppending
)

// ReplacementAction is returned by ProcessReplacementQueue when the caller
// must perform a sink operation.
type ReplacementAction struct {
	Task  *model.ReplacementTask
	Phase replacementPhase
}

// IsRemovePhase reports whether this action is the remove half of the
// replacement's remove-then-append sequence, since replacementPhase itself
// is unexported.
func (a *ReplacementAction) IsRemovePhase() bool {
	return a.Phase == replacementRemoving
}

// ProcessReplacementQueue drives the replacement queue strictly serially
// (§4.4.5): each task waits for sink idle, removes the old byte range, then
// appends the replacement bytes.
func (p *TrackPipeline) ProcessReplacementQueue(sinkIdle bool) *ReplacementAction {
	if p.replacementProcessing || !sinkIdle || len(p.replacementQueue) == 0 {
		return nil
	}
	task := p.replacementQueue[0]
	if task.Ref == nil {
		p.popReplacementHead()
		return p.ProcessReplacementQueue(sinkIdle)
	}
	p.replacementProcessing = true
	if prior, ok := p.bufferedSegments[task.SegmentNumber]; ok {
		snap := *prior
		p.replacementPriorInfo = &snap
	} else {
		p.replacementPriorInfo = nil
	}
	p.sink.StartRemove(task.Ref.StartTime, task.Ref.EndTime)
	return &ReplacementAction{Task: task, Phase: replacementRemoving}
}

// OnReplacementRemoveComplete reports the remove half of one replacement
// task. On success it starts the append half; on failure it restores the
// prior BufferedSegmentInfo and moves on to the next task.
func (p *TrackPipeline) OnReplacementRemoveComplete(action *ReplacementAction, err error) *ReplacementAction {
	if err != nil {
		p.restoreAndAdvanceReplacement(action.Task)
		return nil
	}
	p.sink.StartAppend(action.Task.Data)
	return &ReplacementAction{Task: action.Task, Phase: replacementAppending}
}

// OnReplacementAppendComplete reports the append half. Success updates
// BufferedSegmentInfo to the replacement's bitrate/size; any failure
// restores the pre-replacement info. The queue continues processing
// afterward regardless of outcome.
func (p *TrackPipeline) OnReplacementAppendComplete(action *ReplacementAction, outcome AppendOutcome) {
	task := action.Task
	if outcome == AppendOK {
		p.bufferedSegments[task.SegmentNumber] = &model.BufferedSegmentInfo{
			SegmentNumber:    task.SegmentNumber,
			StartTime:        task.Ref.StartTime,
			EndTime:          task.Ref.EndTime,
			RepresentationID: task.RepresentationID,
			Bitrate:          task.Bitrate,
			Size:             len(task.Data),
		}
		p.popReplacementHead()
		delete(p.replacementsInProgress, task.SegmentNumber)
		p.replacementProcessing = false
		return
	}
	if outcome == AppendQuotaExceeded {
		p.restoreAndAdvanceReplacement(task)
		p.beginQuotaRecovery()
		return
	}
	p.restoreAndAdvanceReplacement(task)
}

func (p *TrackPipeline) restoreAndAdvanceReplacement(task *model.ReplacementTask) {
	if p.replacementPriorInfo != nil {
		p.bufferedSegments[task.SegmentNumber] = p.replacementPriorInfo
	}
	p.popReplacementHead()
	delete(p.replacementsInProgress, task.SegmentNumber)
	p.replacementProcessing = false
}

func (p *TrackPipeline) popReplacementHead() {
	if len(p.replacementQueue) > 0 {
		p.replacementQueue = p.replacementQueue[1:]
	}
}
