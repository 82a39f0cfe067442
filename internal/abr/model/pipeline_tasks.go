package model

import "context"

// DownloadTask tracks one in-flight segment fetch. Created on dispatch,
// removed on completion, failure, or cancellation.
type DownloadTask struct {
	SegmentNumber      int64
	URL                string
	RepresentationID   string
	StartedAtMs        float64
	Cancel             context.CancelFunc
	IsReplacement      bool
	ReplacingSegment   int64 // only meaningful if IsReplacement
}

// QueuedSegment is a completed download awaiting append, stored in the
// append queue sorted ascending by SegmentNumber. Data is nil for a
// zero-byte "skipped" marker (blacklisted or timed-out segment).
type QueuedSegment struct {
	SegmentNumber    int64
	RepresentationID string
	Data             []byte
	Duration         float64
	Bitrate          int64
	Size             int
}

// Skipped reports whether this entry is a zero-byte skip marker.
func (q *QueuedSegment) Skipped() bool {
	return len(q.Data) == 0
}

// ReplacementTask carries downloaded bytes intended to overwrite a buffered
// lower-quality segment, identified by the target SegmentNumber.
type ReplacementTask struct {
	SegmentNumber    int64
	RepresentationID string
	Bitrate          int64
	Data             []byte
	Ref              *SegmentReference
}

// BufferedSegmentInfo is the persistent record kept for each segment
// successfully appended, reconciled against the sink's reported buffered
// ranges on every updateend (§4.4.7 of the source design).
type BufferedSegmentInfo struct {
	SegmentNumber    int64
	StartTime        float64
	EndTime          float64
	RepresentationID string
	Bitrate          int64
	Size             int
}

// Overlaps reports whether [start, end) intersects this segment's interval.
func (b *BufferedSegmentInfo) Overlaps(start, end float64) bool {
	return b.StartTime < end && start < b.EndTime
}

// NetworkHint is the externally-supplied bandwidth/carrier hint blended
// into the BandwidthEstimator. The core never computes this itself (out of
// scope); the host observes the platform's Network Information API
// equivalent and supplies it.
type NetworkHint struct {
	DownlinkKbps float64
	RTTMillis    float64
	CarrierClass string
}
