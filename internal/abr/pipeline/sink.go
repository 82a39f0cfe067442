// Package pipeline implements the SegmentPipeline: download dispatch, the
// append queue, representation-change handling, fast-switch replacement,
// quota-exceeded recovery, buffer pruning, and seek handling.
package pipeline

import "github.com/mantonx/dashabr/internal/abr/model"

// SinkState mirrors the media sink's lifecycle state.
type SinkState string

const (
	SinkStateOpen   SinkState = "open"
	SinkStateClosed SinkState = "closed"
	SinkStateEnded  SinkState = "ended"
)

// Range is a buffered interval [Start, End) as reported by the sink.
type Range struct {
	Start float64
	End   float64
}

// SinkOperator is the pipeline's view of the media sink (§6). Append and
// Remove are suspension points: they signal intent and return immediately;
// completion is reported later by the caller invoking OnAppendComplete,
// OnReplacementRemoveComplete or OnPendingRemovalComplete on the owning
// TrackPipeline, mirroring the sink's
// asynchronous "updateend" notification. Only the SegmentPipeline may
// mutate the sink.
type SinkOperator interface {
	Open(mime, codecs string) error
	StartAppend(data []byte)
	StartRemove(start, end float64)
	Buffered() []Range
	Abort()
	ChangeType(mime, codecs string) error
	Close()
	State() SinkState
}

// FetchStarter launches an asynchronous fetch for a dispatched DownloadTask.
// Completion is reported later via TrackPipeline.CompleteDownload or
// FailDownload, mirroring the fetch contract's future<FetchResult>.
type FetchStarter interface {
	StartFetch(task *model.DownloadTask)
}

// FetchResult is the fetch contract's completion payload (§4.4.4).
type FetchResult struct {
	Bytes            []byte
	HTTPStatus       int
	DurationMs       float64
	FromCache        bool
	TransferredBytes int64
	ResourceBytes    int64
}
