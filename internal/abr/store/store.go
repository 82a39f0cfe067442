// Package store persists the audit trail described in SPEC_FULL §3 (NEW):
// QualitySwitchRecord and DownloadRecord rows, one per emitted
// video_bitrate_changed/audio_bitrate_changed event and one per completed
// or failed DownloadTask. It is grounded on the teacher's
// core/session/store.go and core/session_manager.go DB-backed bookkeeping
// (gorm.io/gorm + gorm.io/driver/sqlite, google/uuid ids, hclog logging).
//
// This package is pure observability: the core's in-memory decisions never
// depend on a successful write here. Every write failure is logged and
// swallowed, per §7's "transient errors fully recovered inside the core" /
// "never fatal" policy for ambient persistence.
package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// QualitySwitchRecord is a durable row for one emitted bitrate-change
// event, indexed by track and time so the last switch can be read back
// with LastQualitySwitch. The selector's cooldown itself is kept in memory
// and does not read these rows.
type QualitySwitchRecord struct {
	ID                 string `gorm:"primaryKey"`
	Track              string `gorm:"index"`
	RepresentationID   string
	Bitrate            int64
	SwitchReason       string
	AtMs               float64 `gorm:"index"`
	CreatedAt          time.Time
}

func (QualitySwitchRecord) TableName() string { return "quality_switch_records" }

// DownloadRecord is a durable row for one completed or failed DownloadTask.
type DownloadRecord struct {
	ID               string `gorm:"primaryKey"`
	Track            string `gorm:"index"`
	SegmentNumber    int64
	RepresentationID string
	IsReplacement    bool
	Status           string // "ok", "failed", "discarded"
	DurationMs       float64
	FromCache        bool
	TransferredBytes int64
	ResourceBytes    int64
	Reason           string
	CreatedAt        time.Time
}

func (DownloadRecord) TableName() string { return "download_records" }

// Store wraps a gorm.DB handle with the two append-only tables above.
type Store struct {
	db  *gorm.DB
	log hclog.Logger
}

// Open opens (creating if absent) a sqlite database at path and migrates
// its schema. An empty path opens an in-memory database, useful for the
// demo host's tests.
func Open(path string, logger hclog.Logger) (*Store, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&QualitySwitchRecord{}, &DownloadRecord{}); err != nil {
		return nil, err
	}
	return &Store{db: db, log: logger.Named("store")}, nil
}

// RecordQualitySwitch appends a QualitySwitchRecord. Failures are logged,
// never returned to the caller's control flow — the core must not stall
// on a DB write.
func (s *Store) RecordQualitySwitch(track, repID string, bitrate int64, switchReason string, atMs float64) {
	rec := &QualitySwitchRecord{
		ID:               uuid.New().String(),
		Track:            track,
		RepresentationID: repID,
		Bitrate:          bitrate,
		SwitchReason:     switchReason,
		AtMs:             atMs,
		CreatedAt:        time.Now(),
	}
	if err := s.db.Create(rec).Error; err != nil {
		s.log.Warn("failed to persist quality switch", "track", track, "error", err)
	}
}

// RecordDownload appends a DownloadRecord.
func (s *Store) RecordDownload(rec DownloadRecord) {
	rec.ID = uuid.New().String()
	rec.CreatedAt = time.Now()
	if err := s.db.Create(&rec).Error; err != nil {
		s.log.Warn("failed to persist download record", "track", rec.Track, "segment", rec.SegmentNumber, "error", err)
	}
}

// LastQualitySwitch returns the most recent switch recorded for track, or
// nil if none exists. Nothing in this module calls it.
func (s *Store) LastQualitySwitch(track string) (*QualitySwitchRecord, error) {
	var rec QualitySwitchRecord
	err := s.db.Where("track = ?", track).Order("at_ms desc").First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
