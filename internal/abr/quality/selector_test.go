package quality

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"

	"github.com/mantonx/dashabr/internal/abr/bandwidth"
	"github.com/mantonx/dashabr/internal/abr/bola"
	"github.com/mantonx/dashabr/internal/abr/model"
)

func makeReps(kbps ...int64) []*model.Representation {
	out := make([]*model.Representation, len(kbps))
	for i, k := range kbps {
		out[i] = &model.Representation{ID: "r", Bitrate: k * 1000, Width: 100 * int(i+1), Height: 100 * int(i+1)}
	}
	return out
}

func newSelector(cfg Config) (*Selector, *bola.Controller, *bandwidth.Estimator) {
	b := bola.New(hclog.NewNullLogger(), cfg.MinBufferLevel, 90, 60)
	e := bandwidth.New(hclog.NewNullLogger())
	s := New(hclog.NewNullLogger(), cfg, b, e)
	return s, b, e
}

func TestSelector_DisabledABRNoOp(t *testing.T) {
	s, b, _ := newSelector(DefaultConfig())
	reps := makeReps(400, 1000, 3000)
	b.Init(reps)
	s.SetRepresentations(reps)
	s.DisableABR()
	r := s.Check(100000, 60, 5_000_000, 0, PlaybackQuality{})
	assert.False(t, r.Changed)
}

func TestSelector_CooldownSuppressesRapidSwitch(t *testing.T) {
	s, b, _ := newSelector(DefaultConfig())
	reps := makeReps(400, 1000, 3000)
	b.Init(reps)
	s.SetRepresentations(reps)
	s.lastSwitchMs = 100000
	r := s.Check(100500, 60, 5_000_000, 0, PlaybackQuality{})
	assert.False(t, r.Changed, "cooldown should suppress a switch only 500ms after the last one")
}

func TestSelector_DroppedFramesBypassesCooldown(t *testing.T) {
	s, b, _ := newSelector(DefaultConfig())
	reps := makeReps(400, 1000, 3000)
	b.Init(reps)
	s.SetRepresentations(reps)
	s.lastSwitchMs = 100000 // well within cooldown

	pq := PlaybackQuality{TotalFrames: 400, DroppedFrames: 80} // 20% drop ratio
	r := s.Check(100100, 60, 5_000_000, 2, pq)
	assert.True(t, r.Changed)
	assert.Equal(t, StrategyDroppedFrames, r.Strategy)
	assert.Equal(t, 1, r.Index)
}

func TestSelector_DroppedFramesResetsBelowLowWatermark(t *testing.T) {
	s, b, _ := newSelector(DefaultConfig())
	reps := makeReps(400, 1000, 3000)
	b.Init(reps)
	s.SetRepresentations(reps)

	pq := PlaybackQuality{TotalFrames: 1000, DroppedFrames: 50} // 5% < 7.5% low watermark
	s.Check(0, 60, 5_000_000, 2, pq)
	assert.Equal(t, 0, s.sampledFramesSinceReset)
	assert.Equal(t, 0, s.droppedFramesSinceReset)
}

func TestSelector_BufferVsBandwidthStrategySelection(t *testing.T) {
	cfg := DefaultConfig()
	s, b, _ := newSelector(cfg)
	reps := makeReps(400, 1000, 3000)
	b.Init(reps)
	s.SetRepresentations(reps)
	s.smoothingDeadlineMs = -1 // already past grace

	r := s.Check(200000, 5, 5_000_000, 0, PlaybackQuality{}) // bufferLevel < minBufferLevel(10)
	assert.True(t, r.Changed)
	assert.Equal(t, StrategyBandwidth, r.Strategy)
}

func TestFilterRepresentations_CapAndResolution(t *testing.T) {
	reps := []*model.Representation{
		{ID: "a", Bitrate: 400_000, Width: 320, Height: 240},
		{ID: "b", Bitrate: 1_000_000, Width: 640, Height: 480},
		{ID: "c", Bitrate: 3_000_000, Width: 1280, Height: 720},
		{ID: "d", Bitrate: 6_000_000, Width: 1920, Height: 1080},
	}
	out := FilterRepresentations(reps, FilterOptions{
		ScreenWidth: 640, ScreenHeight: 480, DevicePixelRatio: 1,
	})
	assert.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
}

func TestFilterRepresentations_EmptyFallsBackToLowest(t *testing.T) {
	reps := []*model.Representation{
		{ID: "a", Bitrate: 400_000, Width: 3000, Height: 3000},
		{ID: "b", Bitrate: 1_000_000, Width: 4000, Height: 4000},
	}
	out := FilterRepresentations(reps, FilterOptions{
		ScreenWidth: 5000, ScreenHeight: 5000, DevicePixelRatio: 1,
	})
	// Neither covers 5000x5000, so only the lowest-bitrate representation is kept.
	assert.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
}
