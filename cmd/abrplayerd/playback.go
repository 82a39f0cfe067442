package main

import (
	"sync"
	"time"
)

// demoPlayback is a minimal session.PlaybackEngine driven by a wall-clock
// goroutine, standing in for the real playback engine §1 places out of
// scope. It never drops frames and never reports itself as seeking other
// than the brief window between RequestSeek and the caller's NotifySeeked.
type demoPlayback struct {
	mu       sync.Mutex
	position float64
	duration float64
	paused   bool
	seeking  bool
	rate     float64

	onSeek func(t float64)

	stop chan struct{}
}

func newDemoPlayback(durationS float64, onSeek func(t float64)) *demoPlayback {
	return &demoPlayback{
		duration: durationS,
		rate:     1,
		onSeek:   onSeek,
		stop:     make(chan struct{}),
	}
}

// Run advances the simulated playhead at realtime rate until Close is
// called. Intended to run on its own goroutine.
func (p *demoPlayback) Run() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			if !p.paused && !p.seeking && p.position < p.duration {
				p.position += 0.1 * p.rate
			}
			p.mu.Unlock()
		}
	}
}

func (p *demoPlayback) Close() {
	close(p.stop)
}

func (p *demoPlayback) Playhead() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *demoPlayback) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *demoPlayback) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *demoPlayback) IsSeeking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seeking
}

func (p *demoPlayback) PlaybackRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// VideoPlaybackQuality always reports zero dropped frames; the demo host
// has no real decoder to sample.
func (p *demoPlayback) VideoPlaybackQuality() (droppedFrames, totalFrames int) {
	return 0, 0
}

// SeekTo is the one command the core issues back to the playback engine,
// per §6 — here invoked by GapHandler jumps as well as explicit seeks.
// The demo host treats it as landing instantly and notifies the core via
// onSeek, mirroring how a real engine's "seeked" event would fire once the
// browser actually finishes seeking.
func (p *demoPlayback) SeekTo(t float64) {
	p.mu.Lock()
	p.seeking = true
	p.position = t
	p.mu.Unlock()

	go func() {
		time.Sleep(50 * time.Millisecond)
		p.mu.Lock()
		p.seeking = false
		p.mu.Unlock()
		if p.onSeek != nil {
			p.onSeek(t)
		}
	}()
}

func (p *demoPlayback) SetPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = paused
}
