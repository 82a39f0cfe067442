package model

import "math"

// BolaMode is the BolaController's current operating mode.
type BolaMode string

const (
	BolaStartup    BolaMode = "STARTUP"
	BolaSteady     BolaMode = "STEADY_STATE"
	BolaOneBitrate BolaMode = "ONE_BITRATE"
)

// BolaState is the BolaController's exclusively-owned mutable record. It is
// reinitialized whenever the representation set changes and partially reset
// on seek.
type BolaState struct {
	Mode BolaMode

	Representations []*Representation // ascending by bitrate, snapshot at init
	Utilities       []float64         // u_i, precomputed, same order as Representations
	Gp              float64
	Vp              float64

	CurrentIndex int // index into Representations of the active selection

	PlaceholderBuffer float64 // seconds, >= 0

	LastCallMs           float64 // NaN if unset
	LastSegmentRequestMs float64
	LastSegmentFinishMs  float64

	LastSegmentStart     float64
	LastSegmentDurationS float64
	MostAdvancedStart    float64
	LastWasReplacement   bool

	SegmentCount int // since last (re)start
}

// NewBolaState returns a state with all timestamps NaN, as required before
// any segment has been requested.
func NewBolaState() *BolaState {
	return &BolaState{
		LastCallMs:           math.NaN(),
		LastSegmentRequestMs: math.NaN(),
		LastSegmentFinishMs:  math.NaN(),
		LastSegmentStart:     math.NaN(),
		LastSegmentDurationS: math.NaN(),
		MostAdvancedStart:    math.NaN(),
	}
}

// ResetForSeek clears placeholder buffer and all per-segment timestamps,
// per the "Any -> STARTUP on seek" transition.
func (s *BolaState) ResetForSeek() {
	s.Mode = BolaStartup
	s.PlaceholderBuffer = 0
	s.LastCallMs = math.NaN()
	s.LastSegmentRequestMs = math.NaN()
	s.LastSegmentFinishMs = math.NaN()
	s.LastSegmentStart = math.NaN()
	s.LastSegmentDurationS = math.NaN()
	s.MostAdvancedStart = math.NaN()
}

// Current returns the currently-selected representation, or nil if none has
// been chosen yet.
func (s *BolaState) Current() *Representation {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Representations) {
		return nil
	}
	return s.Representations[s.CurrentIndex]
}
