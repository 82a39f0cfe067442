package session

import "github.com/mantonx/dashabr/internal/abr/model"

// msgKind is the sealed set of messages the run loop drains: the external
// commands of §6, plus the two genuine suspension-point completions of
// §5 (fetch, timer). Sink append/remove resolve synchronously within the
// reference fake sink (see DrivableSink), so they never need a message of
// their own — a production host backed by a true asynchronous sink would
// add msgAppendSettled/msgReplacementSettled kinds here.
type msgKind int

const (
	msgTick msgKind = iota
	msgStallTick
	msgFetchCompleted
	msgFetchFailed

	msgRepresentationsChanged
	msgSeekRequested
	msgQualityChangeRequested
	msgForceVideoBitrateChange
	msgEnableABR
	msgDimensionsChanged
	msgPlaybackStarted
	msgPlaybackPaused
	msgPlaybackEnded
	msgSeeked
	msgPlaybackProgress
)

// message is the envelope drained by the run loop. Only the fields
// relevant to Kind are populated.
type message struct {
	Kind msgKind

	Track model.TrackKind
	Gen   int // timer generation this message was armed under; stale generations are dropped

	// msgFetchCompleted / msgFetchFailed
	Task       *model.DownloadTask
	Bytes      []byte
	DurationMs float64
	FromCache  bool
	Transferred int64
	Resource    int64
	HTTPStatus  int

	// msgRepresentationsChanged
	VideoReps []*model.Representation
	AudioReps []*model.Representation

	// msgSeekRequested / msgSeeked / msgPlaybackProgress
	SeekTo float64

	// msgQualityChangeRequested
	ForcedRep    *model.Representation
	SwitchReason string

	// msgDimensionsChanged
	ScreenWidth, ScreenHeight    int
	DevicePixelRatio             float64
	DisplayWidth, DisplayHeight  int
}
