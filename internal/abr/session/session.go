package session

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/dashabr/internal/abr/bandwidth"
	"github.com/mantonx/dashabr/internal/abr/bola"
	"github.com/mantonx/dashabr/internal/abr/config"
	"github.com/mantonx/dashabr/internal/abr/events"
	"github.com/mantonx/dashabr/internal/abr/model"
	"github.com/mantonx/dashabr/internal/abr/pipeline"
	"github.com/mantonx/dashabr/internal/abr/quality"
	"github.com/mantonx/dashabr/internal/abr/scheduler"
	"github.com/mantonx/dashabr/internal/abr/stall"
)

// quotaQuiescenceMs is the wait enforced between AdvanceQuotaRecovery
// reaching its critical floor and EndQuotaRecovery being called, per the
// 2-second window documented on pipeline.EndQuotaRecovery. The pipeline
// package states the rule but leaves the actual wait to its caller, since
// it owns no timer of its own.
const quotaQuiescenceMs = 2000

// qualitySwitchingGraceMs is how long after a representation change the
// GapHandler is told a quality switch is in flight, suppressing gap jumps
// that would otherwise fire while the new representation's first segment
// is still arriving.
const qualitySwitchingGraceMs = 1500

// stallTickIntervalMs is the fixed 10 Hz sampling cadence §4.6 specifies
// for the StallDetector/GapHandler, kept on its own timer independent of
// the Scheduler's adaptive download-pacing tick (§4.5), which ranges from
// minIntervalMs to maxIntervalMs and would otherwise starve stall
// detection during a healthy, slow-ticking buffer.
const stallTickIntervalMs = 100

// CoreSession is the single-threaded, message-driven run loop that wires
// together one BandwidthEstimator/BolaController/Selector/TrackPipeline
// pair per track with the shared Scheduler, StallDetector, and GapHandler.
// The command methods (commands.go) are safe to call from any goroutine:
// each one builds a message and enqueues it, and only the goroutine running
// Drain or Run touches the collaborators themselves. Tick and SetClock act
// on the session directly and are not safe to call concurrently with it.
type CoreSession struct {
	log hclog.Logger
	cfg *config.Config
	bus *events.Bus

	playback  PlaybackEngine
	transport FetchTransport

	video *trackContext
	audio *trackContext

	sched      *scheduler.Scheduler
	stallDet   *stall.Detector
	gapHandler *stall.GapHandler

	messages chan message
	gen      int
	stallGen int

	nowFn func() float64

	shuttingDown    bool
	streamingActive bool
	sourceLoaded    bool

	qualitySwitchingUntilMs float64
	gapHandlingActive       bool
}

// New constructs a CoreSession. videoSink/audioSink and transport are
// supplied by the host; the reference host wires internal/abr/fake's
// MediaSink and FetchTransport, a production host would supply a real MSE
// bridge and HTTP client instead.
func New(logger hclog.Logger, cfg *config.Config, playback PlaybackEngine, transport FetchTransport, videoSink, audioSink DrivableSink) *CoreSession {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &CoreSession{
		log:        logger,
		cfg:        cfg,
		bus:        events.NewBus(),
		playback:   playback,
		transport:  transport,
		sched:      scheduler.New(cfg.SchedulerOptions()),
		stallDet:   stall.New(cfg.StallOptions()),
		gapHandler: stall.NewGapHandler(cfg.GapHandlerOptions()),
		messages:   make(chan message, 256),
		nowFn:      func() float64 { return float64(time.Now().UnixMilli()) },
		gapHandlingActive: true,
	}
	s.video = s.newTrackContext(model.TrackVideo, videoSink)
	s.audio = s.newTrackContext(model.TrackAudio, audioSink)
	return s
}

func (s *CoreSession) newTrackContext(kind model.TrackKind, sink DrivableSink) *trackContext {
	named := s.log.Named(string(kind))
	est := bandwidth.New(named.Named("bandwidth"))
	bolaCtl := bola.New(named.Named("bola"), s.cfg.Buffer.MinBufferLevel, s.cfg.Buffer.MaxBufferLevel, s.cfg.Buffer.BufferingTarget)
	sel := quality.New(named.Named("quality"), s.cfg.QualityOptions(), bolaCtl, est)

	tc := &trackContext{
		kind:     kind,
		log:      named,
		est:      est,
		bolaCtl:  bolaCtl,
		selector: sel,
		sink:     sink,
	}
	starter := &fetchStarterAdapter{session: s, track: kind, transport: s.transport}
	tc.pipe = pipeline.New(named.Named("pipeline"), kind, s.cfg.PipelineOptions(), sink, starter, s.playheadFn)
	return tc
}

func (s *CoreSession) playheadFn() float64 {
	if s.playback == nil {
		return 0
	}
	return s.playback.Playhead()
}

// SetClock overrides the time source, for deterministic tests. Not safe to
// call once Run or Drain have started processing messages.
func (s *CoreSession) SetClock(fn func() float64) {
	s.nowFn = fn
}

func (s *CoreSession) now() float64 {
	return s.nowFn()
}

// Events exposes the bus publishing every state change the core makes, for
// a host to forward to its UI or to an external API layer.
func (s *CoreSession) Events() *events.Bus {
	return s.bus
}

// Submit enqueues a message for the run loop. Safe to call from any
// goroutine, including the fetch-completion goroutines spawned by
// fetchStarterAdapter.
func (s *CoreSession) Submit(m message) {
	s.messages <- m
}

// Drain processes every message currently queued, synchronously, and
// returns once the queue is empty. Tests that never trigger a fetch (no
// goroutines in flight) use this directly; it performs no timer scheduling
// of its own, matching "tests drive the run loop synchronously... with no
// timers or goroutines involved".
func (s *CoreSession) Drain() {
	for {
		select {
		case m := <-s.messages:
			s.handle(m)
		default:
			return
		}
	}
}

// DrainUntilIdle drains messages as they arrive, including ones delivered
// by fetch-completion goroutines, until no message arrives within idle.
// Integration tests that exercise BeginDownload's goroutine dispatch use
// this instead of Drain.
func (s *CoreSession) DrainUntilIdle(idle time.Duration) {
	for {
		select {
		case m := <-s.messages:
			s.handle(m)
		case <-time.After(idle):
			return
		}
	}
}

// Run drives the session's full lifecycle: it blocks, processing messages
// and rescheduling the Scheduler's adaptive tick, until ctx is cancelled.
func (s *CoreSession) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.shuttingDown = true
			return ctx.Err()
		case m := <-s.messages:
			s.handle(m)
		}
	}
}

// Tick drives one scheduler-tick cycle synchronously, bypassing the real
// timer armTick would otherwise schedule. Tests use this to advance the
// run loop deterministically; Run uses the timer-driven path exclusively.
func (s *CoreSession) Tick() {
	s.handle(message{Kind: msgTick, Gen: s.gen})
}

// armStallTick schedules the next fixed-cadence stall/gap sample,
// independent of the scheduler's adaptive tick.
func (s *CoreSession) armStallTick() {
	if s.shuttingDown {
		return
	}
	s.stallGen++
	gen := s.stallGen
	time.AfterFunc(time.Duration(stallTickIntervalMs*float64(time.Millisecond)), func() {
		s.Submit(message{Kind: msgStallTick, Gen: gen})
	})
}

func (s *CoreSession) armTick(afterMs float64) {
	if s.sched.Stopped() || s.shuttingDown {
		return
	}
	s.gen++
	gen := s.gen
	if afterMs < 0 {
		afterMs = 0
	}
	time.AfterFunc(time.Duration(afterMs*float64(time.Millisecond)), func() {
		s.Submit(message{Kind: msgTick, Gen: gen})
	})
}
