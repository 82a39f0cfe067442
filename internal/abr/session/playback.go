// Package session wires the six components of §2 into one CoreSession:
// the single-threaded, message-driven run loop mandated by §5/§9's
// "channel+dispatcher" redesign note. Fetches and timers are modeled as
// goroutines whose only job is to send one message back into the session's
// channel; sink append/remove are resolved within the handler that started
// them, through DrivableSink.CompleteOperation. Every handler in this
// package runs to completion without itself suspending.
package session

import "github.com/mantonx/dashabr/internal/abr/pipeline"

// PlaybackEngine is the core's read-only view of the playback engine and
// its one command, per §6.
type PlaybackEngine interface {
	Playhead() float64
	Duration() float64
	IsPaused() bool
	IsSeeking() bool
	PlaybackRate() float64
	VideoPlaybackQuality() (droppedFrames, totalFrames int)
	SeekTo(t float64)
}

// FetchTransport performs the suspension point of §4.4.4. CoreSession
// always calls it from a dedicated goroutine, never from the run loop
// itself, so implementations are free to block.
type FetchTransport interface {
	Fetch(url string) pipeline.FetchResult
}

// DrivableSink is the session's view of the media sink: the §6 contract
// plus a same-call completion hook. The reference host uses
// internal/abr/fake.MediaSink, whose StartAppend/StartRemove only record
// the operation, which the session then resolves in the same handler by
// calling CompleteOperation rather than through a real asynchronous
// updateend callback; a production host backed by a real MSE bridge would
// instead report completion by constructing the corresponding message and
// submitting it directly, never implementing this extra method.
type DrivableSink interface {
	pipeline.SinkOperator
	// CompleteOperation resolves the most recently started append/remove.
	// For an append it reports whether the operation failed with
	// quota-exceeded.
	CompleteOperation(rangeStart, rangeEnd float64) (quotaExceeded bool)
}
