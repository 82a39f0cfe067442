package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/dashabr/internal/abr/config"
	"github.com/mantonx/dashabr/internal/abr/events"
	"github.com/mantonx/dashabr/internal/abr/fake"
	"github.com/mantonx/dashabr/internal/abr/model"
)

// fakePlayback is a minimal, directly-settable PlaybackEngine for tests.
type fakePlayback struct {
	pos      float64
	dur      float64
	paused   bool
	seeking  bool
	dropped  int
	total    int
	seekCall float64
	seekHit  bool
}

func (f *fakePlayback) Playhead() float64      { return f.pos }
func (f *fakePlayback) Duration() float64      { return f.dur }
func (f *fakePlayback) IsPaused() bool         { return f.paused }
func (f *fakePlayback) IsSeeking() bool        { return f.seeking }
func (f *fakePlayback) PlaybackRate() float64  { return 1 }
func (f *fakePlayback) VideoPlaybackQuality() (int, int) {
	return f.dropped, f.total
}
func (f *fakePlayback) SeekTo(t float64) {
	f.seekCall = t
	f.seekHit = true
	f.pos = t
}

// buildRepresentation constructs a representation with a dense,
// zero-based segment index of count segments of dur seconds each,
// pre-populating source with payloadBytes of arbitrary content per
// segment for every track the caller asks for.
func buildRepresentation(id string, bitrate int64, width, height int, count int, dur float64, payloadBytes int, source *fake.SegmentSource) *model.Representation {
	urlFn := func(ref *model.SegmentReference) string {
		return fmt.Sprintf("%s/%d.m4s", ref.RepresentationID, ref.SegmentNumber)
	}
	refs := make([]*model.SegmentReference, count)
	data := make([]byte, payloadBytes)
	for i := 0; i < count; i++ {
		ref := model.NewSegmentReference(int64(i), float64(i)*dur, float64(i+1)*dur, id, urlFn)
		refs[i] = ref
		source.Put(model.URI(ref), data)
	}
	return &model.Representation{
		ID:          id,
		Bitrate:     bitrate,
		Codecs:      "avc1.64001f",
		MimeType:    "video/mp4",
		Width:       width,
		Height:      height,
		SegmentList: model.NewSegmentIndex(refs),
	}
}

func newTestSession(t *testing.T) (*CoreSession, *fakePlayback, *fake.SegmentSource) {
	t.Helper()
	source := fake.NewSegmentSource()
	transport := fake.NewFetchTransport(source, 625) // ~5 Mbps simulated throughput
	playback := &fakePlayback{dur: 24}

	cfg := config.DefaultConfig()
	videoSink := fake.NewMediaSink()
	audioSink := fake.NewMediaSink()

	s := New(nil, cfg, playback, transport, videoSink, audioSink)
	return s, playback, source
}

func TestCoreSession_PlaybackStarted_DownloadsAndBuildsBuffer(t *testing.T) {
	s, _, source := newTestSession(t)

	videoLow := buildRepresentation("v0", 500_000, 640, 360, 6, 4, 50_000, source)
	videoHigh := buildRepresentation("v1", 5_000_000, 1920, 1080, 6, 4, 50_000, source)
	audioRep := buildRepresentation("a0", 128_000, 0, 0, 6, 4, 8_000, source)

	s.SetRepresentations([]*model.Representation{videoLow, videoHigh}, []*model.Representation{audioRep})
	s.Drain()

	require.NotNil(t, s.video.pipe.CurrentRepresentation())

	s.PlaybackStarted()
	s.DrainUntilIdle(50 * time.Millisecond)

	virtual := 0.0
	s.SetClock(func() float64 { return virtual })
	for i := 0; i < 10; i++ {
		virtual += 300
		s.Tick()
		s.DrainUntilIdle(30 * time.Millisecond)
	}

	assert.Greater(t, s.video.pipe.BufferLevel(), 0.0)
	assert.Greater(t, s.audio.pipe.BufferLevel(), 0.0)
}

func TestCoreSession_ForceVideoBitrateChange_DisablesABRAndSwitches(t *testing.T) {
	s, _, source := newTestSession(t)

	videoLow := buildRepresentation("v0", 500_000, 640, 360, 6, 4, 50_000, source)
	videoHigh := buildRepresentation("v1", 5_000_000, 1920, 1080, 6, 4, 50_000, source)

	s.SetRepresentations([]*model.Representation{videoLow, videoHigh}, nil)
	s.Drain()

	var seen []events.Event
	s.Events().Subscribe(events.VideoBitrateChanged, 0, func(e events.Event) {
		seen = append(seen, e)
	})

	s.ForceVideoBitrateChange(videoHigh)
	s.Drain()

	assert.False(t, s.video.selector.ABREnabled())
	require.NotNil(t, s.video.pipe.CurrentRepresentation())
	assert.Equal(t, "v1", s.video.pipe.CurrentRepresentation().ID)
	require.Len(t, seen, 1)
	payload := seen[0].Payload.(events.BitrateChangedPayload)
	assert.Equal(t, "Forced", payload.SwitchReason)
}

func TestCoreSession_RequestQualityChange_LeavesABREnabled(t *testing.T) {
	s, _, source := newTestSession(t)

	videoLow := buildRepresentation("v0", 500_000, 640, 360, 6, 4, 50_000, source)
	videoHigh := buildRepresentation("v1", 5_000_000, 1920, 1080, 6, 4, 50_000, source)

	s.SetRepresentations([]*model.Representation{videoLow, videoHigh}, nil)
	s.Drain()

	var seen []events.Event
	s.Events().Subscribe(events.VideoBitrateChanged, 0, func(e events.Event) {
		seen = append(seen, e)
	})

	s.RequestQualityChange(videoHigh, "")
	s.Drain()

	assert.True(t, s.video.selector.ABREnabled())
	require.NotNil(t, s.video.pipe.CurrentRepresentation())
	assert.Equal(t, "v1", s.video.pipe.CurrentRepresentation().ID)
	require.Len(t, seen, 1)
	payload := seen[0].Payload.(events.BitrateChangedPayload)
	assert.Equal(t, "ChosenByUser", payload.SwitchReason)
}

func TestCoreSession_StallTick_RearmsAtFixedCadenceWhilePlaying(t *testing.T) {
	s, playback, source := newTestSession(t)

	videoRep := buildRepresentation("v0", 1_000_000, 640, 360, 10, 4, 50_000, source)
	s.SetRepresentations([]*model.Representation{videoRep}, nil)
	s.Drain()

	playback.paused = false
	playback.seeking = false

	s.PlaybackStarted()
	s.DrainUntilIdle(50 * time.Millisecond)

	assert.Equal(t, 1, s.stallGen)

	s.handle(message{Kind: msgStallTick, Gen: s.stallGen})
	assert.Equal(t, 2, s.stallGen)

	s.handlePlaybackEnded(message{})
	assert.False(t, s.streamingActive)

	s.handle(message{Kind: msgStallTick, Gen: s.stallGen})
	assert.Equal(t, 2, s.stallGen)
}

func TestCoreSession_RequestSeek_TearsDownInFlightState(t *testing.T) {
	s, playback, source := newTestSession(t)

	videoRep := buildRepresentation("v0", 1_000_000, 640, 360, 10, 4, 50_000, source)
	s.SetRepresentations([]*model.Representation{videoRep}, nil)
	s.Drain()

	s.PlaybackStarted()
	s.DrainUntilIdle(50 * time.Millisecond)

	s.RequestSeek(20)
	s.Drain()

	assert.True(t, playback.seekHit)
	assert.Equal(t, 20.0, playback.seekCall)
	assert.Equal(t, 0, len(s.video.pipe.ReplacementCandidates(20)))

	s.NotifySeeked(20)
	s.Drain()
}

func TestCoreSession_GapHandler_JumpsSmallBufferedGap(t *testing.T) {
	s, playback, _ := newTestSession(t)

	playback.pos = 30.2
	playback.paused = false
	playback.seeking = false

	videoSink := s.video.sink.(*fake.MediaSink)
	videoSink.Open("video/mp4", "avc1.64001f")
	videoSink.CompleteOperation(0, 0) // no-op; ranges populated directly below
	videoSink.RemoveRange(0, 0)       // ensure clean slate
	// Directly seed buffered ranges via StartAppend/CompleteOperation pairs
	// would require real payload bookkeeping the test doesn't need; the
	// sink's own range list is what gapHandler reads, so drive it through
	// the same add-range path CompleteOperation uses.
	videoSink.StartAppend(make([]byte, 100))
	videoSink.CompleteOperation(5, 30)
	videoSink.StartAppend(make([]byte, 100))
	videoSink.CompleteOperation(30.5, 60)

	s.checkStallAndGap(10_000)

	assert.True(t, playback.seekHit)
	assert.InDelta(t, 30.5, playback.seekCall, 1e-9)
}
