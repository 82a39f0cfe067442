// Package model holds the shared, mostly-immutable data types that the
// ABR components read and write: representations, segment references and
// indexes, BOLA state, and the pipeline's task/queue bookkeeping types.
package model

import "sort"

// TrackKind distinguishes the two independent pipelines the core drives.
type TrackKind string

const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// Representation is a selectable rendition. Representations are immutable
// once published; the set for a track is replaced wholesale on
// representations_changed, never mutated in place.
type Representation struct {
	ID          string
	Bitrate     int64 // bits/s, strictly positive
	Codecs      string
	MimeType    string
	Width       int // 0 for audio
	Height      int // 0 for audio
	FrameRate   float64
	SegmentList *SegmentIndex
}

// SortRepresentationsByBitrate returns a new slice sorted ascending by bitrate.
// BOLA and the quality selector both require this ordering; sorting once at
// the boundary keeps every downstream index comparison a plain integer
// comparison.
func SortRepresentationsByBitrate(reps []*Representation) []*Representation {
	out := make([]*Representation, len(reps))
	copy(out, reps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Bitrate < out[j].Bitrate })
	return out
}

// URI is the pure function mandated in place of closures that capture a
// representation id and segment number: given a SegmentReference it returns
// the fetch URL deterministically, with no hidden state.
func URI(ref *SegmentReference) string {
	return ref.urlFn(ref)
}
