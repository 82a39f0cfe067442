package model

import "sort"

// URLFunc produces a fetch URL for a SegmentReference. It must be a pure
// function of the reference's own fields only — no closure over a
// representation id or segment number kept outside the struct — so
// SegmentReference values stay trivially comparable and serializable.
type URLFunc func(ref *SegmentReference) string

// SegmentReference identifies one addressable media segment within a
// representation's timeline.
type SegmentReference struct {
	SegmentNumber int64
	StartTime     float64 // seconds, monotonic within one representation
	EndTime       float64 // seconds, exclusive
	RepresentationID string
	urlFn         URLFunc
}

// NewSegmentReference constructs a reference carrying its own URL function.
func NewSegmentReference(segmentNumber int64, start, end float64, repID string, urlFn URLFunc) *SegmentReference {
	return &SegmentReference{
		SegmentNumber:    segmentNumber,
		StartTime:        start,
		EndTime:          end,
		RepresentationID: repID,
		urlFn:            urlFn,
	}
}

// Duration returns end - start.
func (r *SegmentReference) Duration() float64 {
	return r.EndTime - r.StartTime
}

// SegmentIndex is an ordered, addressable sequence of SegmentReferences for
// one representation.
type SegmentIndex struct {
	refs []*SegmentReference
}

// NewSegmentIndex builds an index from references already sorted ascending
// by SegmentNumber and StartTime.
func NewSegmentIndex(refs []*SegmentReference) *SegmentIndex {
	out := make([]*SegmentReference, len(refs))
	copy(out, refs)
	sort.Slice(out, func(i, j int) bool { return out[i].SegmentNumber < out[j].SegmentNumber })
	return &SegmentIndex{refs: out}
}

// At returns the segment reference whose interval contains time, via binary
// search. A time before the first segment returns the first segment; a
// time at or after the last segment's end returns nil.
func (idx *SegmentIndex) At(time float64) *SegmentReference {
	if len(idx.refs) == 0 {
		return nil
	}
	i := sort.Search(len(idx.refs), func(i int) bool { return idx.refs[i].EndTime > time })
	if i >= len(idx.refs) {
		return nil
	}
	if idx.refs[i].StartTime > time && i == 0 {
		return idx.refs[0]
	}
	return idx.refs[i]
}

// ByNumber returns the reference with the given segment number, trying a
// direct index first (fast path when the index is dense and zero-based)
// before falling back to a linear search.
func (idx *SegmentIndex) ByNumber(n int64) *SegmentReference {
	if len(idx.refs) == 0 {
		return nil
	}
	if n >= 0 && int(n) < len(idx.refs) && idx.refs[n].SegmentNumber == n {
		return idx.refs[n]
	}
	for _, r := range idx.refs {
		if r.SegmentNumber == n {
			return r
		}
	}
	return nil
}

// Next returns the reference immediately following ref, or nil at the end.
func (idx *SegmentIndex) Next(ref *SegmentReference) *SegmentReference {
	for i, r := range idx.refs {
		if r.SegmentNumber == ref.SegmentNumber {
			if i+1 < len(idx.refs) {
				return idx.refs[i+1]
			}
			return nil
		}
	}
	return nil
}

// First returns the earliest reference, or nil if the index is empty.
func (idx *SegmentIndex) First() *SegmentReference {
	if len(idx.refs) == 0 {
		return nil
	}
	return idx.refs[0]
}

// Last returns the latest reference, or nil if the index is empty.
func (idx *SegmentIndex) Last() *SegmentReference {
	if len(idx.refs) == 0 {
		return nil
	}
	return idx.refs[len(idx.refs)-1]
}

// Len reports the number of segments in the index.
func (idx *SegmentIndex) Len() int {
	return len(idx.refs)
}
