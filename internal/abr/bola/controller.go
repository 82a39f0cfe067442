// Package bola implements the BOLA buffer-based quality controller:
// STARTUP/STEADY_STATE/ONE_BITRATE modes, utility/gain initialization,
// the placeholder-buffer accounting, hysteresis, and the oscillation guard.
package bola

import (
	"math"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/dashabr/internal/abr/model"
)

const (
	bufferTimeFloorSeconds = 12.0
	minBufferPerLevelK     = 2.0
	startupSafetyFactor    = 0.9
	hysteresisUpFactor     = 1.2
	hysteresisDownFactor   = 0.95
)

// Decision is the result of one Choose call.
type Decision struct {
	Representation *model.Representation
	Index          int
	// DelaySeconds is the residual overflow the caller should treat as an
	// implicit download delay after the placeholder has been exhausted.
	DelaySeconds float64
}

// Controller owns the BolaState exclusively; no other component may
// mutate it.
type Controller struct {
	log hclog.Logger

	state *model.BolaState

	minBufferLevel float64
	maxBufferLevel float64
	bufferTarget   float64
}

// New constructs a Controller. Init must be called before Choose.
func New(logger hclog.Logger, minBufferLevel, maxBufferLevel, bufferTarget float64) *Controller {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Controller{
		log:            logger,
		state:          model.NewBolaState(),
		minBufferLevel: minBufferLevel,
		maxBufferLevel: maxBufferLevel,
		bufferTarget:   bufferTarget,
	}
}

// State exposes the owned state for read access by callers needing to log
// or persist it; callers must not mutate the returned value.
func (c *Controller) State() *model.BolaState {
	return c.state
}

// Init (re)initializes utilities and gains for a representation set sorted
// ascending by bitrate. A second Init with the same bitrate sequence is a
// no-op with respect to the utility and gain vectors.
func (c *Controller) Init(reps []*model.Representation) {
	sorted := model.SortRepresentationsByBitrate(reps)
	if sameBitrateSequence(c.state.Representations, sorted) {
		return
	}

	n := len(sorted)
	utilities := make([]float64, n)
	base := math.Log(float64(sorted[0].Bitrate))
	for i, r := range sorted {
		utilities[i] = math.Log(float64(r.Bitrate)) - base + 1
	}

	c.state.Representations = sorted
	c.state.Utilities = utilities
	c.state.CurrentIndex = 0

	if n == 1 {
		c.state.Mode = model.BolaOneBitrate
		c.state.Gp = 0
		c.state.Vp = 0
		return
	}

	bufferTime := math.Max(bufferTimeFloorSeconds, c.minBufferLevel+minBufferPerLevelK*float64(n))
	c.state.Gp = (utilities[n-1] - 1) / (bufferTime/c.minBufferLevel - 1)
	c.state.Vp = c.minBufferLevel / c.state.Gp
	c.state.Mode = model.BolaStartup
}

func sameBitrateSequence(a, b []*model.Representation) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Bitrate != b[i].Bitrate {
			return false
		}
	}
	return true
}

// OnSeek resets placeholder buffer and per-segment timestamps and forces
// STARTUP, per "Any -> STARTUP on seek".
func (c *Controller) OnSeek() {
	if c.state.Mode == model.BolaOneBitrate {
		return
	}
	c.state.ResetForSeek()
}

// OnBufferEmpty transitions STEADY_STATE -> STARTUP on a rebuffer event.
func (c *Controller) OnBufferEmpty() {
	if c.state.Mode == model.BolaSteady {
		c.state.Mode = model.BolaStartup
	}
}

// OnSegmentDownloadBegin records the request timestamp and advances
// mostAdvancedStart.
func (c *Controller) OnSegmentDownloadBegin(ref *model.SegmentReference, nowMs float64) {
	c.state.LastSegmentRequestMs = nowMs
	c.state.LastSegmentStart = ref.StartTime
	if math.IsNaN(c.state.MostAdvancedStart) || ref.StartTime > c.state.MostAdvancedStart {
		c.state.MostAdvancedStart = ref.StartTime
	}
}

// OnSegmentDownloadEnd records completion bookkeeping used by the
// STARTUP->STEADY transition and placeholder accounting.
func (c *Controller) OnSegmentDownloadEnd(ref *model.SegmentReference, isReplacement bool, nowMs float64) {
	c.state.LastSegmentFinishMs = nowMs
	c.state.SegmentCount++
	c.state.LastSegmentDurationS = ref.Duration()
	c.state.LastWasReplacement = isReplacement
}

// Choose returns the selected representation for the current buffer level
// and bandwidth estimate (bits/s; <= 0 means unknown).
func (c *Controller) Choose(bufferLevel, bandwidthBps, nowMs float64) Decision {
	reps := c.state.Representations
	if len(reps) == 0 {
		return Decision{}
	}

	if c.state.Mode == model.BolaOneBitrate {
		c.state.CurrentIndex = 0
		return Decision{Representation: reps[0], Index: 0}
	}

	if c.state.Mode == model.BolaStartup {
		if !math.IsNaN(c.state.LastSegmentDurationS) && bufferLevel >= c.state.LastSegmentDurationS {
			c.state.Mode = model.BolaSteady
		}
	}

	if c.state.Mode == model.BolaStartup {
		return c.chooseStartup(reps, bufferLevel, bandwidthBps)
	}
	return c.chooseSteady(reps, bufferLevel, bandwidthBps, nowMs)
}

func (c *Controller) chooseStartup(reps []*model.Representation, bufferLevel, bandwidthBps float64) Decision {
	idx := 0
	if bandwidthBps > 0 {
		idx = throughputSustainableIndex(reps, bandwidthBps)
	}
	c.state.CurrentIndex = idx
	c.state.PlaceholderBuffer = math.Max(0, c.minBufferForRep(idx)-bufferLevel)
	return Decision{Representation: reps[idx], Index: idx}
}

func (c *Controller) chooseSteady(reps []*model.Representation, bufferLevel, bandwidthBps, nowMs float64) Decision {
	c.updatePlaceholder(nowMs)

	effectiveBuffer := bufferLevel + c.state.PlaceholderBuffer
	best := c.state.CurrentIndex
	bestScore := math.Inf(-1)
	for i := range reps {
		score := c.score(i, effectiveBuffer)
		switch {
		case i > c.state.CurrentIndex:
			score *= hysteresisUpFactor
		case i < c.state.CurrentIndex:
			score *= hysteresisDownFactor
		}
		if score >= bestScore {
			bestScore = score
			best = i
		}
	}

	if bandwidthBps > 0 && best > c.state.CurrentIndex {
		sustainable := throughputSustainableIndex(reps, bandwidthBps)
		if reps[best].Bitrate > reps[sustainable].Bitrate {
			best = maxInt(c.state.CurrentIndex, sustainable)
		}
	}

	c.state.CurrentIndex = best

	delay := 0.0
	maxForRep := c.maxBufferForRep(best)
	if effectiveBuffer > maxForRep {
		overflow := effectiveBuffer - maxForRep
		if c.state.PlaceholderBuffer >= overflow {
			c.state.PlaceholderBuffer -= overflow
		} else {
			delay = overflow - c.state.PlaceholderBuffer
			c.state.PlaceholderBuffer = 0
		}
	}

	return Decision{Representation: reps[best], Index: best, DelaySeconds: delay}
}

func (c *Controller) updatePlaceholder(nowMs float64) {
	s := c.state
	switch {
	case !math.IsNaN(s.LastSegmentFinishMs):
		s.PlaceholderBuffer += (nowMs - s.LastSegmentFinishMs) / 1000.0
	case !math.IsNaN(s.LastCallMs):
		s.PlaceholderBuffer += (nowMs - s.LastCallMs) / 1000.0
	}
	s.LastSegmentStart = math.NaN()
	s.LastSegmentRequestMs = math.NaN()
	s.LastSegmentFinishMs = math.NaN()
	s.LastCallMs = nowMs

	phCap := c.maxBufferLevel - c.bufferTarget
	if s.PlaceholderBuffer > phCap {
		s.PlaceholderBuffer = phCap
	}
	if s.PlaceholderBuffer < 0 {
		s.PlaceholderBuffer = 0
	}
}

// score computes s_i = (vp*(u_i + gp - 1) - effectiveBuffer) / bitrate_i.
func (c *Controller) score(i int, effectiveBuffer float64) float64 {
	s := c.state
	r := s.Representations[i]
	return (s.Vp*(s.Utilities[i]+s.Gp-1) - effectiveBuffer) / float64(r.Bitrate)
}

// minBufferForRep is the buffer level at which the scores of i and i-1 are
// equal; 0 for i = 0.
func (c *Controller) minBufferForRep(i int) float64 {
	if i <= 0 {
		return 0
	}
	s := c.state
	hi := s.Representations[i]
	lo := s.Representations[i-1]
	num := float64(hi.Bitrate)*(s.Utilities[i-1]+s.Gp-1) - float64(lo.Bitrate)*(s.Utilities[i]+s.Gp-1)
	den := float64(hi.Bitrate) - float64(lo.Bitrate)
	if den == 0 {
		return 0
	}
	return s.Vp * num / den
}

// maxBufferForRep is the minBufferForRep of the next-higher representation,
// or maxBufferLevel for the highest representation.
func (c *Controller) maxBufferForRep(i int) float64 {
	if i+1 < len(c.state.Representations) {
		return c.minBufferForRep(i + 1)
	}
	return c.maxBufferLevel
}

// throughputSustainableIndex returns the highest representation index whose
// bitrate <= startupSafetyFactor * bandwidth, or 0 if none qualifies.
func throughputSustainableIndex(reps []*model.Representation, bandwidthBps float64) int {
	cutoff := startupSafetyFactor * bandwidthBps
	best := 0
	for i, r := range reps {
		if float64(r.Bitrate) <= cutoff {
			best = i
		}
	}
	return best
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
