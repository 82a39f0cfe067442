package events

import "github.com/mantonx/dashabr/internal/abr/model"

// BitrateChangedPayload backs VideoBitrateChanged / AudioBitrateChanged.
type BitrateChangedPayload struct {
	Track          model.TrackKind
	Representation *model.Representation
	SwitchReason   string
}

// FragmentLoadingStartedPayload backs FragmentLoadingStarted.
type FragmentLoadingStartedPayload struct {
	Track         model.TrackKind
	Ref           *model.SegmentReference
	IsReplacement bool
}

// FragmentLoadingCompletedPayload backs FragmentLoadingCompleted.
type FragmentLoadingCompletedPayload struct {
	Track            model.TrackKind
	Ref              *model.SegmentReference
	Status           string // "ok", "failed", "discarded"
	DurationMs       float64
	FromCache        bool
	TransferredBytes int64
	ResourceBytes    int64
	IsReplacement    bool
	Discarded        bool
	Reason           string
}

// BufferLevelUpdatedPayload backs BufferLevelUpdated (video only).
type BufferLevelUpdatedPayload struct {
	BufferLevel float64
}

// BufferTargetChangedPayload backs BufferTargetChanged.
type BufferTargetChangedPayload struct {
	NewBufferTarget float64
}

// RepresentationsChangedPayload backs ManifestParsed / RepresentationsChanged.
type RepresentationsChangedPayload struct {
	VideoReps []*model.Representation
	AudioReps []*model.Representation
}

// PlaybackErrorPayload backs PlaybackError.
type PlaybackErrorPayload struct {
	Op      string
	Message string
}
