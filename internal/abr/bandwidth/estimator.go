// Package bandwidth implements the dual-EWMA throughput estimator that
// feeds the BolaController and the throughput-based quality strategy.
package bandwidth

import (
	"math"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/dashabr/internal/abr/model"
)

const (
	// MinBytes is the minimum transfer size a sample must have to be
	// accepted; smaller transfers are dominated by first-byte latency.
	MinBytes = 16 * 1024
	// MinTotalBytes is the accumulated-bytes floor below which Estimate
	// falls back to the network hint (or the default).
	MinTotalBytes = 128 * 1024
	// DefaultEstimateBps is used when no hint and no samples are available.
	DefaultEstimateBps = 3_000_000

	fastHalfLifeSeconds = 2.0
	slowHalfLifeSeconds = 5.0
)

// ewma is one exponentially weighted moving average over (weight,
// observation) samples, with zero-bias correction on read.
type ewma struct {
	alpha            float64
	estimate         float64
	accumulatedWeight float64
}

func newEWMA(halfLifeSeconds float64) *ewma {
	return &ewma{alpha: math.Exp(math.Ln2 * -1 / halfLifeSeconds)}
}

func (e *ewma) sample(weight, observation float64) {
	aw := math.Pow(e.alpha, weight)
	e.estimate = observation*(1-aw) + aw*e.estimate
	e.accumulatedWeight += weight
}

func (e *ewma) value() float64 {
	correction := 1 - math.Pow(e.alpha, e.accumulatedWeight)
	if correction <= 0 {
		return 0
	}
	return e.estimate / correction
}

func (e *ewma) reset() {
	e.estimate = 0
	e.accumulatedWeight = 0
}

// Estimator maintains fast (2s half-life) and slow (5s half-life) EWMAs over
// (durationMs, bytes) samples and reports a blended, bias-corrected
// bits-per-second estimate.
type Estimator struct {
	log hclog.Logger

	fast *ewma
	slow *ewma

	totalBytes    int64
	sampleCount   int
	hint          *model.NetworkHint
	lastCarrier   string
	lastDownlink  float64
	lastRTT       float64
}

// New constructs an Estimator. logger should already be named for the track
// it estimates (e.g. logger.Named("bandwidth").Named("video")).
func New(logger hclog.Logger) *Estimator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Estimator{
		log:  logger,
		fast: newEWMA(fastHalfLifeSeconds),
		slow: newEWMA(slowHalfLifeSeconds),
	}
}

// SetHint installs or updates the externally supplied network hint, resetting
// the estimator if the change qualifies as a "significant network change".
func (e *Estimator) SetHint(hint model.NetworkHint) {
	significant := hint.CarrierClass != e.lastCarrier
	if e.lastDownlink > 0 && relDelta(hint.DownlinkKbps, e.lastDownlink) > 0.2 {
		significant = true
	}
	if math.Abs(hint.RTTMillis-e.lastRTT) > 100 {
		significant = true
	}
	e.hint = &hint
	e.lastCarrier = hint.CarrierClass
	e.lastDownlink = hint.DownlinkKbps
	e.lastRTT = hint.RTTMillis
	if significant {
		e.log.Debug("significant network change, resetting estimator",
			"carrier", hint.CarrierClass, "downlinkKbps", hint.DownlinkKbps, "rttMs", hint.RTTMillis)
		e.Reset()
	}
}

func relDelta(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return math.Abs(a-b) / b
}

// Sample records one completed, non-cached transfer. Fails silently if
// durationMs/bytes are non-positive or non-finite, or bytes < MinBytes.
func (e *Estimator) Sample(durationMs float64, bytes int64) {
	if durationMs <= 0 || bytes <= 0 || !isFinite(durationMs) {
		return
	}
	if bytes < MinBytes {
		return
	}
	weight := durationMs / 1000.0
	observation := 8000.0 * float64(bytes) / durationMs
	e.fast.sample(weight, observation)
	e.slow.sample(weight, observation)
	e.totalBytes += bytes
	e.sampleCount++
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Reset zeroes sample count and accumulated bytes; both EWMAs keep their
// alpha but zero their accumulated state.
func (e *Estimator) Reset() {
	e.fast.reset()
	e.slow.reset()
	e.totalBytes = 0
	e.sampleCount = 0
}

// Estimate returns the current bandwidth estimate in bits/s, blending in the
// network hint when few real samples are available.
//
// Before any sample has been accepted the estimate is always the fixed
// default, never the hint directly: a hint only starts influencing the
// result once at least one real transfer has been observed, at which point
// it blends in and decays per §4.1's w = max(0.1, exp(-n/5)).
func (e *Estimator) Estimate() float64 {
	if e.sampleCount == 0 {
		return DefaultEstimateBps
	}
	measured := e.measuredOrDefault()
	if e.hint == nil {
		return measured
	}
	w := math.Max(0.1, math.Exp(-float64(e.sampleCount)/5.0))
	hintBps := e.hint.DownlinkKbps * 1000
	return w*hintBps + (1-w)*measured
}

func (e *Estimator) measuredOrDefault() float64 {
	if e.totalBytes < MinTotalBytes {
		if e.hint != nil {
			return e.hint.DownlinkKbps * 1000
		}
		return DefaultEstimateBps
	}
	return math.Min(e.fast.value(), e.slow.value())
}

// SampleCount reports how many samples have been accepted since the last
// Reset, used by the hint-blending weight and by tests.
func (e *Estimator) SampleCount() int {
	return e.sampleCount
}
