package session

import "github.com/mantonx/dashabr/internal/abr/model"

// SetRepresentations installs a new representation set for one or both
// tracks (nil leaves a track's set unchanged), the core's entry point for
// manifest-parsed / representations-changed.
func (s *CoreSession) SetRepresentations(videoReps, audioReps []*model.Representation) {
	s.Submit(message{Kind: msgRepresentationsChanged, VideoReps: videoReps, AudioReps: audioReps})
}

// RequestSeek commands the playback engine to seek to t and tears the
// pipelines down for it; call NotifySeeked once the engine reports the
// seek has actually completed.
func (s *CoreSession) RequestSeek(t float64) {
	s.Submit(message{Kind: msgSeekRequested, SeekTo: t})
}

// NotifySeeked reports that the playback engine's seek has completed at
// position t, so the pipelines can resume loading from there.
func (s *CoreSession) NotifySeeked(t float64) {
	s.Submit(message{Kind: msgSeeked, SeekTo: t})
}

// ForceVideoBitrateChange pins the video track to rep and disables ABR
// until EnableABR is called again.
func (s *CoreSession) ForceVideoBitrateChange(rep *model.Representation) {
	s.Submit(message{Kind: msgForceVideoBitrateChange, ForcedRep: rep})
}

// RequestQualityChange forces the video track to rep without touching ABR
// autonomy, tagging the resulting video_bitrate_changed event with
// switchReason (defaulting to "ChosenByUser" when empty). This is the
// quality_change_requested command of §6, distinct from
// ForceVideoBitrateChange/EnableABR which toggle ABR autonomy itself.
func (s *CoreSession) RequestQualityChange(rep *model.Representation, switchReason string) {
	s.Submit(message{Kind: msgQualityChangeRequested, ForcedRep: rep, SwitchReason: switchReason})
}

// EnableABR re-enables autonomous quality selection on the video track.
func (s *CoreSession) EnableABR() {
	s.Submit(message{Kind: msgEnableABR})
}

// DimensionsChanged re-filters the video representation set for a new
// display size.
func (s *CoreSession) DimensionsChanged(screenW, screenH, displayW, displayH int, devicePixelRatio float64) {
	s.Submit(message{
		Kind:             msgDimensionsChanged,
		ScreenWidth:      screenW,
		ScreenHeight:     screenH,
		DisplayWidth:     displayW,
		DisplayHeight:    displayH,
		DevicePixelRatio: devicePixelRatio,
	})
}

// PlaybackStarted notifies the core that playback has begun (or resumed
// from the initial paused state), arming the scheduler's steady-state tick
// loop and both tracks' streaming.
func (s *CoreSession) PlaybackStarted() {
	s.Submit(message{Kind: msgPlaybackStarted})
}

// PlaybackPaused notifies the core that the playback engine has paused.
func (s *CoreSession) PlaybackPaused() {
	s.Submit(message{Kind: msgPlaybackPaused})
}

// PlaybackEnded notifies the core that playback has reached the end of
// the stream; the scheduler stops and no further ticks are armed.
func (s *CoreSession) PlaybackEnded() {
	s.Submit(message{Kind: msgPlaybackEnded})
}
