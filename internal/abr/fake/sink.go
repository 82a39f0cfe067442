// Package fake provides in-memory stand-ins for the media sink and fetch
// transport collaborators that §1 places out of scope: a MediaSink that
// accumulates buffered byte ranges without touching real media, and a
// FetchTransport that serves segments from an in-memory map with
// configurable latency/failure injection. Both exist so the demo host
// binary and the session package's tests can drive the core end to end
// without a browser or a network.
package fake

import (
	"errors"
	"sort"
	"sync"

	"github.com/mantonx/dashabr/internal/abr/pipeline"
)

var errSinkNotOpen = errors.New("fake: sink not open")

// MediaSink is a minimal in-memory SourceBuffer analogue implementing
// pipeline.SinkOperator. It has no async callbacks of its own; callers
// that need updateend semantics drive completion explicitly via
// CompleteOperation, mirroring how a real MSE SourceBuffer's updateend
// fires after the underlying append/remove resolves.
type MediaSink struct {
	mu sync.Mutex

	mime   string
	codecs string
	state  pipeline.SinkState

	ranges []pipeline.Range

	pending *pendingOp

	quotaBytesRemaining int64 // <=0 means unlimited
}

// NewMediaSink constructs a closed sink; call Open to activate it.
func NewMediaSink() *MediaSink {
	return &MediaSink{state: pipeline.SinkStateClosed}
}

// SetQuota bounds the total bytes the sink will accept before every further
// StartAppend fails with quota-exceeded, for exercising §4.4.8.
func (s *MediaSink) SetQuota(bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotaBytesRemaining = bytes
}

func (s *MediaSink) Open(mime, codecs string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mime, s.codecs, s.state = mime, codecs, pipeline.SinkStateOpen
	return nil
}

func (s *MediaSink) ChangeType(mime, codecs string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != pipeline.SinkStateOpen {
		return errSinkNotOpen
	}
	s.mime, s.codecs = mime, codecs
	return nil
}

func (s *MediaSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = pipeline.SinkStateClosed
}

func (s *MediaSink) Abort() {
	// A no-op: a recorded StartAppend/StartRemove stays pending and is
	// still resolved by the next CompleteOperation.
}

func (s *MediaSink) State() pipeline.SinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *MediaSink) Buffered() []pipeline.Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pipeline.Range, len(s.ranges))
	copy(out, s.ranges)
	return out
}

// pendingOp is the last StartAppend/StartRemove call awaiting a
// CompleteOperation, modeling the sink's single in-flight async operation.
type pendingOp struct {
	isRemove   bool
	start, end float64
	dataLen    int
}

// StartAppend records bytes as a buffered range request; call
// CompleteOperation(rangeStart, rangeEnd) to resolve it (mirrors the async updateend
// notification a real SourceBuffer fires).
func (s *MediaSink) StartAppend(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &pendingOp{dataLen: len(data)}
}

func (s *MediaSink) StartRemove(start, end float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &pendingOp{isRemove: true, start: start, end: end}
}

// CompleteOperation resolves the most recent StartAppend/StartRemove call.
// For an append it returns quotaExceeded=true, leaving the buffered ranges
// unchanged, when a quota is set and the append is larger than what
// remains; otherwise it records [rangeStart, rangeEnd] as buffered.
func (s *MediaSink) CompleteOperation(rangeStart, rangeEnd float64) (quotaExceeded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.pending
	s.pending = nil
	if op == nil {
		return false
	}
	if op.isRemove {
		s.removeRange(op.start, op.end)
		return false
	}
	if s.quotaBytesRemaining > 0 && int64(op.dataLen) > s.quotaBytesRemaining {
		return true
	}
	if s.quotaBytesRemaining > 0 {
		s.quotaBytesRemaining -= int64(op.dataLen)
	}
	s.addRange(rangeStart, rangeEnd)
	return false
}

func (s *MediaSink) addRange(start, end float64) {
	s.ranges = append(s.ranges, pipeline.Range{Start: start, End: end})
	sort.Slice(s.ranges, func(i, j int) bool { return s.ranges[i].Start < s.ranges[j].Start })
	merged := s.ranges[:0]
	for _, r := range s.ranges {
		if len(merged) > 0 && r.Start <= merged[len(merged)-1].End {
			if r.End > merged[len(merged)-1].End {
				merged[len(merged)-1].End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	s.ranges = merged
}

func (s *MediaSink) removeRange(start, end float64) {
	var out []pipeline.Range
	for _, r := range s.ranges {
		switch {
		case r.End <= start || r.Start >= end:
			out = append(out, r)
		case r.Start < start && r.End > end:
			out = append(out, pipeline.Range{Start: r.Start, End: start})
			out = append(out, pipeline.Range{Start: end, End: r.End})
		case r.Start < start:
			out = append(out, pipeline.Range{Start: r.Start, End: start})
		case r.End > end:
			out = append(out, pipeline.Range{Start: end, End: r.End})
		}
	}
	s.ranges = out
}

// RemoveRange directly evicts a byte range, for exercising buffer pruning
// and seek retention (§4.4.9/§4.4.10) without going through the async
// StartRemove/CompleteOperation pair.
func (s *MediaSink) RemoveRange(start, end float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeRange(start, end)
}
