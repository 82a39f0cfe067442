package pipeline

// Config holds the §6 configuration options relevant to the pipeline.
type Config struct {
	MaxConcurrentDownloads    int
	BufferingTarget           float64 // seconds
	BufferBehind              float64 // seconds
	FastSwitchingEnabled      bool
	ReplacementSafetyFactor   float64
	QuotaExceededCorrection   float64
	MaxAllowedOverrun         float64 // seconds
	SegmentTimeoutMs          float64
	PruningIntervalMs         float64
	ManagedSink               bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentDownloads:  2,
		BufferingTarget:         60,
		BufferBehind:            5,
		FastSwitchingEnabled:    true,
		ReplacementSafetyFactor: 1.5,
		QuotaExceededCorrection: 0.8,
		MaxAllowedOverrun:       4,
		SegmentTimeoutMs:        10_000,
		PruningIntervalMs:       5_000,
	}
}

const safetyMarginSeconds = 2.0
const jumpableGapSeconds = 1.5

// sinkKind records whether the sink caps concurrency to one in-flight
// download regardless of MaxConcurrentDownloads (browser MSE "managed
// media source" semantics). The fake/test sinks in this module are
// standard sinks; a managed sink is opted into via Config.ManagedSink.
type sinkKind int

const (
	sinkStandard sinkKind = iota
	sinkManaged
)
