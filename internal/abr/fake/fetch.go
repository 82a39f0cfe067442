package fake

import (
	"sync"

	"github.com/mantonx/dashabr/internal/abr/pipeline"
)

// SegmentSource provides the bytes a FetchTransport serves for a URL, for
// the demo host and tests to populate without a real network.
type SegmentSource struct {
	mu    sync.Mutex
	bytes map[string][]byte
	// notFound marks URLs that should resolve as HTTP 404 (§4.4.3 blacklist
	// path) rather than succeeding.
	notFound map[string]bool
}

// NewSegmentSource constructs an empty source.
func NewSegmentSource() *SegmentSource {
	return &SegmentSource{bytes: make(map[string][]byte), notFound: make(map[string]bool)}
}

// Put installs the payload served for url.
func (s *SegmentSource) Put(url string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytes[url] = data
}

// MarkNotFound makes url resolve as a 404.
func (s *SegmentSource) MarkNotFound(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notFound[url] = true
}

func (s *SegmentSource) lookup(url string) ([]byte, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notFound[url] {
		return nil, 404
	}
	data, ok := s.bytes[url]
	if !ok {
		return nil, 404
	}
	return data, 200
}

// FetchTransport serves segments from a SegmentSource with a configurable
// simulated per-byte transfer rate, standing in for §4.4.4's fetch
// contract. It performs no real I/O and never blocks.
type FetchTransport struct {
	Source        *SegmentSource
	BytesPerMs    float64 // simulated throughput used to derive DurationMs
	MinDurationMs float64
}

// NewFetchTransport constructs a transport backed by source at the given
// simulated throughput (bytes/ms).
func NewFetchTransport(source *SegmentSource, bytesPerMs float64) *FetchTransport {
	if bytesPerMs <= 0 {
		bytesPerMs = 1000 // 1 MB/s default
	}
	return &FetchTransport{Source: source, BytesPerMs: bytesPerMs, MinDurationMs: 10}
}

// Fetch resolves url synchronously against the SegmentSource, deriving a
// plausible DurationMs from the configured throughput, and returns the
// pipeline's own FetchResult shape directly so callers need no adapter.
func (t *FetchTransport) Fetch(url string) pipeline.FetchResult {
	data, status := t.Source.lookup(url)
	if status != 200 {
		return pipeline.FetchResult{HTTPStatus: status}
	}
	duration := float64(len(data)) / t.BytesPerMs
	if duration < t.MinDurationMs {
		duration = t.MinDurationMs
	}
	return pipeline.FetchResult{
		Bytes:            data,
		HTTPStatus:       200,
		DurationMs:       duration,
		TransferredBytes: int64(len(data)),
		ResourceBytes:    int64(len(data)),
	}
}
