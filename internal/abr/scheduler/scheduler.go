// Package scheduler implements the adaptive-cadence driver described in
// §4.5: it does not own a timer itself (per the single-threaded
// cooperative model, only the CoreSession run loop owns timers); instead
// it is a pure state machine that turns a buffer-level observation into
// the next tick interval, and tracks the preload/steady/pause/seek
// lifecycle transitions.
package scheduler

// Config holds the §6 configuration options the scheduler consults.
type Config struct {
	InitialDelayMs       float64
	BaseIntervalMs       float64
	MinIntervalMs        float64
	MaxIntervalMs        float64
	SlowdownThreshold    float64
	PreloadTarget        float64 // seconds
	CriticalBufferLevel  float64 // seconds
	QualityCheckInterval float64 // ms
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		InitialDelayMs:       100,
		BaseIntervalMs:       500,
		MinIntervalMs:        100,
		MaxIntervalMs:        2000,
		SlowdownThreshold:    0.8,
		PreloadTarget:        20,
		CriticalBufferLevel:  5,
		QualityCheckInterval: 1000,
	}
}

// Scheduler derives the next tick interval from buffer level and drives the
// preload/steady/quality-check lifecycle. It is not thread-safe; the
// CoreSession run loop is its only caller.
type Scheduler struct {
	cfg Config

	currentIntervalMs float64
	preloading        bool
	stopped           bool

	lastQualityCheckMs float64
}

// New constructs a Scheduler at BaseIntervalMs, not preloading and not
// stopped; call OnSourceChange to begin preload.
func New(cfg Config) *Scheduler {
	return &Scheduler{cfg: cfg, currentIntervalMs: cfg.BaseIntervalMs}
}

// OnSourceChange resets scheduler state and begins preload. The caller
// should fire the first tick after cfg.InitialDelayMs.
func (s *Scheduler) OnSourceChange() {
	s.preloading = true
	s.stopped = false
	s.currentIntervalMs = s.cfg.InitialDelayMs
	s.lastQualityCheckMs = 0
}

// OnPlaybackStarted switches from preload to steady scheduling and arms
// quality checks.
func (s *Scheduler) OnPlaybackStarted(nowMs float64) {
	s.preloading = false
	s.currentIntervalMs = s.cfg.BaseIntervalMs
	s.lastQualityCheckMs = nowMs
}

// OnPause doubles the interval, but only if the buffer is healthy (at or
// above target) — an unhealthy buffer keeps polling at its current rate so
// a pause doesn't stall recovery once playback resumes.
func (s *Scheduler) OnPause(bufferLevel, bufferTarget float64) {
	if bufferLevel >= bufferTarget {
		s.currentIntervalMs *= 2
		if s.currentIntervalMs > s.cfg.MaxIntervalMs {
			s.currentIntervalMs = s.cfg.MaxIntervalMs
		}
	}
}

// OnSeek resumes scheduling at the minimum interval.
func (s *Scheduler) OnSeek() {
	s.currentIntervalMs = s.cfg.MinIntervalMs
	s.stopped = false
}

// OnEnd stops the scheduler; the run loop must not re-arm timers afterward.
func (s *Scheduler) OnEnd() {
	s.stopped = true
}

// Stopped reports whether OnEnd has been called since the last
// OnSourceChange.
func (s *Scheduler) Stopped() bool {
	return s.stopped
}

// Preloading reports whether the scheduler is still in its preload phase.
func (s *Scheduler) Preloading() bool {
	return s.preloading
}

// EndPreload transitions out of preload without arming quality checks
// (used when preload completes for reasons other than playback_started,
// e.g. the preload target was reached before the user pressed play).
func (s *Scheduler) EndPreload() {
	s.preloading = false
}

// ShouldCheckQuality reports whether a quality check is due, and if so
// records nowMs as the last check time (consuming the due check) per the
// loop body of §4.5: "if not preloading and timeSince(lastQualityCheck) >=
// qualityCheckInterval".
func (s *Scheduler) ShouldCheckQuality(nowMs float64) bool {
	if s.preloading {
		return false
	}
	if nowMs-s.lastQualityCheckMs >= s.cfg.QualityCheckInterval {
		s.lastQualityCheckMs = nowMs
		return true
	}
	return false
}

// CurrentIntervalMs returns the last computed interval without recomputing
// it.
func (s *Scheduler) CurrentIntervalMs() float64 {
	return s.currentIntervalMs
}

// NextIntervalMs computes the next tick interval per §4.5's derivation,
// smooths it against the previous interval, clamps to [min, max], stores,
// and returns it.
func (s *Scheduler) NextIntervalMs(bufferLevel, bufferTarget, avgSegmentDurationS float64) float64 {
	target := s.targetIntervalMs(bufferLevel, bufferTarget, avgSegmentDurationS)

	s.currentIntervalMs = 0.7*s.currentIntervalMs + 0.3*target
	if s.currentIntervalMs < s.cfg.MinIntervalMs {
		s.currentIntervalMs = s.cfg.MinIntervalMs
	}
	if s.currentIntervalMs > s.cfg.MaxIntervalMs {
		s.currentIntervalMs = s.cfg.MaxIntervalMs
	}
	return s.currentIntervalMs
}

func (s *Scheduler) targetIntervalMs(bufferLevel, bufferTarget, avgSegmentDurationS float64) float64 {
	if bufferLevel < s.cfg.CriticalBufferLevel {
		return s.cfg.MinIntervalMs
	}
	if bufferTarget <= 0 {
		return s.cfg.BaseIntervalMs
	}
	if bufferLevel >= bufferTarget {
		return s.cfg.MaxIntervalMs
	}

	fillRatio := bufferLevel / bufferTarget
	var target float64
	if fillRatio < s.cfg.SlowdownThreshold {
		target = s.cfg.BaseIntervalMs
	} else {
		t := (fillRatio - s.cfg.SlowdownThreshold) / (1 - s.cfg.SlowdownThreshold)
		target = s.cfg.BaseIntervalMs + t*(s.cfg.MaxIntervalMs-s.cfg.BaseIntervalMs)
	}

	if avgSegmentDurationS > 0 {
		capMs := 0.5 * avgSegmentDurationS * 1000
		if target > capMs {
			target = capMs
		}
	}
	return target
}
