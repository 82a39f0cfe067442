package stall

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetector_GraceWindowSuppressesCandidates(t *testing.T) {
	d := New(DefaultConfig())
	d.SetContext(ContextNormal, 0)
	// Normal context has 0 grace; force a longer grace via startup context.
	d.SetContext(ContextStartup, 0)
	confirmed := false
	for i := 0; i < 19; i++ {
		now := float64(i) * 100
		confirmed = d.Sample(now, 10.0, false, false, false, false) || confirmed
	}
	assert.False(t, confirmed, "stall candidates inside the startup grace period must not confirm")
}

func TestDetector_ConfirmsAfterThreeStalledSamples(t *testing.T) {
	d := New(DefaultConfig())
	d.SetContext(ContextNormal, 0)
	// The first sample only primes lastTime/lastSampleMs; the next three are
	// stalled candidates, and the fourth also spans the 250 ms threshold.
	d.Sample(0, 10.0, false, false, false, false)
	d.Sample(100, 10.0, false, false, false, false)
	d.Sample(200, 10.0, false, false, false, false)
	d.Sample(300, 10.0, false, false, false, false)
	confirmed := d.Sample(400, 10.0, false, false, false, false)
	assert.True(t, confirmed)
}

func TestDetector_PausedOrSeekingNeverConfirms(t *testing.T) {
	d := New(DefaultConfig())
	d.SetContext(ContextNormal, 0)
	d.Sample(0, 10.0, false, false, false, false)
	for i := 1; i <= 5; i++ {
		now := float64(i) * 100
		confirmed := d.Sample(now, 10.0, true, false, false, false)
		assert.False(t, confirmed)
	}
}

func TestDetector_SuppressedCandidateDoesNotAccumulate(t *testing.T) {
	d := New(DefaultConfig())
	d.SetContext(ContextNormal, 0)
	d.Sample(0, 10.0, false, false, false, false)
	for i := 1; i <= 5; i++ {
		now := float64(i) * 100
		confirmed := d.Sample(now, 10.0, false, false, false, true) // suppressed: normal rebuffer
		assert.False(t, confirmed)
	}
}

func TestDetector_MovingPositionResetsCandidateRun(t *testing.T) {
	d := New(DefaultConfig())
	d.SetContext(ContextNormal, 0)
	d.Sample(0, 10.0, false, false, false, false)
	d.Sample(100, 10.0, false, false, false, false)
	confirmed := d.Sample(200, 10.4, false, false, false, false) // playhead advanced, not stalled
	assert.False(t, confirmed)
}

// S6. Gap after seek: ranges [5,30] and [30.5,60], playhead 30.2, tolerance
// 0.3 -> seek to 30.5.
func TestGapHandler_S6_SmallGapJumpsToNextRangeStart(t *testing.T) {
	h := NewGapHandler(DefaultGapHandlerConfig())
	ranges := []Range{{Start: 5, End: 30}, {Start: 30.5, End: 60}}
	seekTo, ok := h.Check(10_000, 30.2, true, false, false, false, false, ranges, 120)
	assert.True(t, ok)
	assert.InDelta(t, 30.5, seekTo, 1e-9)
}

func TestGapHandler_DoesNotReJumpSamePosition(t *testing.T) {
	h := NewGapHandler(DefaultGapHandlerConfig())
	ranges := []Range{{Start: 5, End: 30}, {Start: 30.5, End: 60}}
	seekTo, ok := h.Check(10_000, 30.2, true, false, false, false, false, ranges, 120)
	assert.True(t, ok)
	assert.Equal(t, 30.5, seekTo)

	_, ok2 := h.Check(12_001, 30.2, true, false, false, false, false, ranges, 120)
	assert.False(t, ok2, "same position must not be re-jumped")
}

func TestGapHandler_ConfirmedStallMicroNudgeInsideRange(t *testing.T) {
	h := NewGapHandler(DefaultGapHandlerConfig())
	ranges := []Range{{Start: 0, End: 60}}
	seekTo, ok := h.Check(10_000, 30.0, true, false, false, false, true, ranges, 120)
	assert.True(t, ok)
	assert.InDelta(t, 30.1, seekTo, 1e-9)
}

func TestGapHandler_ConfirmedStallJumpsToStreamEndNearEnd(t *testing.T) {
	h := NewGapHandler(DefaultGapHandlerConfig())
	var ranges []Range
	seekTo, ok := h.Check(10_000, 118.6, true, false, false, false, true, ranges, 120)
	assert.True(t, ok)
	assert.InDelta(t, 120, seekTo, 1e-9)
}

func TestGapHandler_RespectsTwoSecondCooldown(t *testing.T) {
	h := NewGapHandler(DefaultGapHandlerConfig())
	ranges := []Range{{Start: 5, End: 30}, {Start: 30.5, End: 60}}
	_, ok := h.Check(10_000, 30.2, true, false, false, false, false, ranges, 120)
	assert.True(t, ok)

	_, ok2 := h.Check(10_500, 30.2, true, false, false, false, false, []Range{{Start: 31.0, End: 32.0}}, 120)
	assert.False(t, ok2, "jumps within 2s of the last seek must be suppressed")
}
