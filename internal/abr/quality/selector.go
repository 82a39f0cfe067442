// Package quality implements the multi-strategy quality selector: dropped
// frames / buffer(BOLA) / bandwidth strategy composition, cooldown,
// smoothing with oscillation-pattern suppression, and the representation
// filter driven by screen size and device pixel ratio.
package quality

import (
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/dashabr/internal/abr/bandwidth"
	"github.com/mantonx/dashabr/internal/abr/bola"
	"github.com/mantonx/dashabr/internal/abr/model"
)

const (
	droppedFrameSampleThreshold = 375
	droppedFrameDropRatioHigh   = 0.15
	droppedFrameDropRatioLow    = 0.075
	droppedFrameWindowMs        = 10_000
	droppedFrameMaxDowngrades   = 2

	historyCapacity = 10
)

// Strategy names returned in Result.Strategy.
const (
	StrategyDroppedFrames = "DroppedFrames"
	StrategyBuffer        = "Buffer"
	StrategyBandwidth     = "Bandwidth"
)

// Config holds the tunables of §6's configuration table relevant to the
// quality selector.
type Config struct {
	MinBufferLevel       float64
	SwitchCooldownMs      float64
	AllowSmoothing        bool
	SmoothingEnableDelayMs float64
	SmoothingFactor       float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MinBufferLevel:         10,
		SwitchCooldownMs:       5000,
		AllowSmoothing:         true,
		SmoothingEnableDelayMs: 5000,
		SmoothingFactor:        0.5,
	}
}

// Result is the outcome of one Check call.
type Result struct {
	Changed        bool
	Representation *model.Representation
	Index          int
	Strategy       string
	SwitchReason   string
}

// PlaybackQuality is the host's per-check render-side sample.
type PlaybackQuality struct {
	DroppedFrames int
	TotalFrames   int
}

// Selector composes BOLA, throughput, and dropped-frames strategies.
type Selector struct {
	log hclog.Logger

	cfg Config

	bola      *bola.Controller
	bandwidth *bandwidth.Estimator

	abrEnabled bool

	lastSwitchMs float64
	history      []int // bounded FIFO of representation indices

	smoothingDeadlineMs float64

	sampledFramesSinceReset int
	droppedFramesSinceReset int
	downgradeTimestampsMs   []float64

	filtered []*model.Representation
}

// New constructs a Selector bound to the given BolaController and
// BandwidthEstimator, which it calls into but does not own.
func New(logger hclog.Logger, cfg Config, bolaCtl *bola.Controller, est *bandwidth.Estimator) *Selector {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Selector{
		log:        logger,
		cfg:        cfg,
		bola:       bolaCtl,
		bandwidth:  est,
		abrEnabled: true,
	}
}

// SetRepresentations installs the filtered representation set; call again
// whenever representations_changed or dimensions_changed fires.
func (s *Selector) SetRepresentations(reps []*model.Representation) {
	s.filtered = model.SortRepresentationsByBitrate(reps)
}

// DisableABR turns autonomous selection off; Check then returns "no change"
// immediately until EnableABR is called.
func (s *Selector) DisableABR() {
	s.abrEnabled = false
}

// EnableABR re-enables autonomous quality selection.
func (s *Selector) EnableABR() {
	s.abrEnabled = true
}

// ABREnabled reports the current autonomy state.
func (s *Selector) ABREnabled() bool {
	return s.abrEnabled
}

// OnPlaybackStarted arms the smoothing grace period.
func (s *Selector) OnPlaybackStarted(nowMs float64) {
	s.smoothingDeadlineMs = nowMs + s.cfg.SmoothingEnableDelayMs
}

// OnSeek re-arms the smoothing grace period and clears history, since a
// seek invalidates the relevance of prior switches to oscillation
// detection.
func (s *Selector) OnSeek(nowMs float64) {
	s.smoothingDeadlineMs = nowMs + s.cfg.SmoothingEnableDelayMs
	s.history = nil
}

// Check runs the strategy composition and returns whether a switch fired.
// currentIndex is the index (into the filtered representation list) of the
// representation currently playing.
func (s *Selector) Check(nowMs, bufferLevel, bandwidthBps float64, currentIndex int, pq PlaybackQuality) Result {
	if !s.abrEnabled {
		return Result{}
	}
	if len(s.filtered) == 0 {
		return Result{}
	}

	s.accumulateDroppedFrames(pq)

	if idx, ok := s.checkDroppedFrames(nowMs, currentIndex); ok {
		return s.emit(nowMs, idx, StrategyDroppedFrames, "EmergencyDownshift", currentIndex)
	}

	if nowMs-s.lastSwitchMs < s.cfg.SwitchCooldownMs {
		return Result{}
	}

	var idx int
	var strategy string
	if bufferLevel >= s.cfg.MinBufferLevel {
		d := s.bola.Choose(bufferLevel, bandwidthBps, nowMs)
		idx = d.Index
		strategy = StrategyBuffer
	} else {
		idx = throughputIndex(s.filtered, bandwidthBps)
		strategy = StrategyBandwidth
	}

	idx = s.applySmoothing(nowMs, currentIndex, idx)

	if idx == currentIndex {
		return Result{}
	}
	return s.emit(nowMs, idx, strategy, "ABR", currentIndex)
}

func (s *Selector) emit(nowMs float64, idx int, strategy, reason string, currentIndex int) Result {
	s.lastSwitchMs = nowMs
	s.pushHistory(idx)
	return Result{
		Changed:        true,
		Representation: s.filtered[idx],
		Index:          idx,
		Strategy:       strategy,
		SwitchReason:   reason,
	}
}

func (s *Selector) pushHistory(idx int) {
	s.history = append(s.history, idx)
	if len(s.history) > historyCapacity {
		s.history = s.history[len(s.history)-historyCapacity:]
	}
}

func (s *Selector) accumulateDroppedFrames(pq PlaybackQuality) {
	s.sampledFramesSinceReset += pq.TotalFrames
	s.droppedFramesSinceReset += pq.DroppedFrames
}

func (s *Selector) checkDroppedFrames(nowMs float64, currentIndex int) (int, bool) {
	if s.sampledFramesSinceReset == 0 {
		return 0, false
	}
	ratio := float64(s.droppedFramesSinceReset) / float64(s.sampledFramesSinceReset)

	if ratio < droppedFrameDropRatioLow {
		s.sampledFramesSinceReset = 0
		s.droppedFramesSinceReset = 0
		return 0, false
	}

	if s.sampledFramesSinceReset < droppedFrameSampleThreshold || ratio <= droppedFrameDropRatioHigh {
		return 0, false
	}

	s.downgradeTimestampsMs = trimWindow(s.downgradeTimestampsMs, nowMs, droppedFrameWindowMs)
	if len(s.downgradeTimestampsMs) >= droppedFrameMaxDowngrades {
		return 0, false
	}
	if currentIndex <= 0 {
		return 0, false
	}
	s.downgradeTimestampsMs = append(s.downgradeTimestampsMs, nowMs)
	s.sampledFramesSinceReset = 0
	s.droppedFramesSinceReset = 0
	return currentIndex - 1, true
}

func trimWindow(timestamps []float64, nowMs, windowMs float64) []float64 {
	out := timestamps[:0]
	for _, t := range timestamps {
		if nowMs-t < windowMs {
			out = append(out, t)
		}
	}
	return out
}

// applySmoothing translates a raw target index through the oscillation
// guard and step-interpolation, or passes it through unchanged when
// smoothing is disabled or still in its grace period.
func (s *Selector) applySmoothing(nowMs float64, currentIndex, target int) int {
	if !s.cfg.AllowSmoothing || nowMs < s.smoothingDeadlineMs {
		return target
	}

	if s.isOscillating() {
		if target < currentIndex {
			return target
		}
		return currentIndex
	}

	delta := float64(target-currentIndex) * s.cfg.SmoothingFactor
	return currentIndex + roundToInt(delta)
}

// isOscillating detects an A,B,A,B pattern in the last 4 history entries.
func (s *Selector) isOscillating() bool {
	n := len(s.history)
	if n < 4 {
		return false
	}
	h := s.history[n-4:]
	return h[0] == h[2] && h[1] == h[3] && h[0] != h[1]
}

func roundToInt(f float64) int {
	if f >= 0 {
		return int(f + 0.5)
	}
	return -int(-f + 0.5)
}

// throughputIndex returns the highest representation index whose bitrate
// is <= bandwidthBps (no safety factor here; that is a BOLA/startup concept).
func throughputIndex(reps []*model.Representation, bandwidthBps float64) int {
	best := 0
	for i, r := range reps {
		if float64(r.Bitrate) <= bandwidthBps {
			best = i
		}
	}
	return best
}
