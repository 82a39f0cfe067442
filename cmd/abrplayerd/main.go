// Command abrplayerd is the reference demonstration host for the ABR core:
// it wires a CoreSession to the in-memory fake media sink/fetch transport,
// a YAML configuration file, a gorm/sqlite audit store, and a gin+websocket
// façade, per SPEC_FULL §1/§6. It exists to exercise the library end to
// end; the library itself (internal/abr/...) has no dependency on it.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/dashabr/internal/abr/api"
	"github.com/mantonx/dashabr/internal/abr/config"
	"github.com/mantonx/dashabr/internal/abr/events"
	"github.com/mantonx/dashabr/internal/abr/fake"
	"github.com/mantonx/dashabr/internal/abr/session"
	"github.com/mantonx/dashabr/internal/abr/store"
)

const (
	segmentCount        = 120
	segmentDurationS    = 4
	simulatedBytesPerMs = 625 // ~5 Mbps
)

func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "abrplayerd",
		Level: hclog.LevelFromString(envOr("ABRPLAYERD_LOG_LEVEL", "info")),
	})

	cfg, err := loadConfig(envOr("ABRPLAYERD_CONFIG_PATH", ""))
	if err != nil {
		logger.Error("failed to load configuration, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	db, err := store.Open(envOr("ABRPLAYERD_DB_PATH", ""), logger)
	if err != nil {
		logger.Error("failed to open audit store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	source := fake.NewSegmentSource()
	videoReps := buildRepresentations(defaultVideoLadder, segmentCount, segmentDurationS, "video/mp4", "avc1.64001f", source)
	audioReps := buildRepresentations(defaultAudioLadder, segmentCount, segmentDurationS, "audio/mp4", "mp4a.40.2", source)
	transport := fake.NewFetchTransport(source, simulatedBytesPerMs)

	videoSink := fake.NewMediaSink()
	audioSink := fake.NewMediaSink()

	streamDuration := segmentCount * segmentDurationS

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sess *session.CoreSession
	playback := newDemoPlayback(float64(streamDuration), func(t float64) {
		sess.NotifySeeked(t)
	})
	go playback.Run()
	defer playback.Close()

	sess = session.New(logger.Named("session"), cfg, playback, transport, videoSink, audioSink)
	wireAuditStore(sess, db)

	apiServer := api.NewServer(logger.Named("api"), sess)
	httpServer := &http.Server{
		Addr:    envOr("ABRPLAYERD_HTTP_ADDR", ":8089"),
		Handler: apiServer.Router(),
	}

	go func() {
		logger.Info("serving event/command API", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "error", err)
		}
	}()

	sess.SetRepresentations(videoReps, audioReps)
	sess.PlaybackStarted()

	go func() {
		if err := sess.Run(ctx); err != nil {
			logger.Debug("session run loop stopped", "error", err)
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	cancel()
}

// wireAuditStore subscribes the store's writes to the session's event bus,
// keeping the core itself free of any persistence dependency (SPEC_FULL
// §6: "pure observability — the core's in-memory decisions never depend
// on a successful DB write").
func wireAuditStore(sess *session.CoreSession, db *store.Store) {
	sess.Events().Subscribe(events.VideoBitrateChanged, 10, func(ev events.Event) {
		p := ev.Payload.(events.BitrateChangedPayload)
		if p.Representation == nil {
			return
		}
		db.RecordQualitySwitch(string(p.Track), p.Representation.ID, p.Representation.Bitrate, p.SwitchReason, float64(time.Now().UnixMilli()))
	})
	sess.Events().Subscribe(events.AudioBitrateChanged, 10, func(ev events.Event) {
		p := ev.Payload.(events.BitrateChangedPayload)
		if p.Representation == nil {
			return
		}
		db.RecordQualitySwitch(string(p.Track), p.Representation.ID, p.Representation.Bitrate, p.SwitchReason, float64(time.Now().UnixMilli()))
	})
	sess.Events().Subscribe(events.FragmentLoadingCompleted, 10, func(ev events.Event) {
		p := ev.Payload.(events.FragmentLoadingCompletedPayload)
		rec := store.DownloadRecord{
			Track:            string(p.Track),
			IsReplacement:    p.IsReplacement,
			Status:           p.Status,
			DurationMs:       p.DurationMs,
			FromCache:        p.FromCache,
			TransferredBytes: p.TransferredBytes,
			ResourceBytes:    p.ResourceBytes,
			Reason:           p.Reason,
		}
		if p.Ref != nil {
			rec.SegmentNumber = p.Ref.SegmentNumber
			rec.RepresentationID = p.Ref.RepresentationID
		}
		db.RecordDownload(rec)
	})
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

func waitForShutdown(logger hclog.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	logger.Info("received shutdown signal", "signal", s.String())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
