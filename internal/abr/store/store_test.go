package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "abr.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndQueryQualitySwitch(t *testing.T) {
	s := openTestStore(t)

	last, err := s.LastQualitySwitch("video")
	require.NoError(t, err)
	assert.Nil(t, last)

	s.RecordQualitySwitch("video", "v1", 3_000_000, "Buffer", 1000)
	s.RecordQualitySwitch("video", "v2", 6_000_000, "Buffer", 2000)

	last, err = s.LastQualitySwitch("video")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "v2", last.RepresentationID)
	assert.Equal(t, int64(6_000_000), last.Bitrate)
}

func TestStore_RecordDownload(t *testing.T) {
	s := openTestStore(t)

	s.RecordDownload(DownloadRecord{
		Track:            "video",
		SegmentNumber:    5,
		RepresentationID: "v1",
		Status:           "ok",
		DurationMs:       120,
		TransferredBytes: 50_000,
		ResourceBytes:    50_000,
	})

	var count int64
	require.NoError(t, s.db.Model(&DownloadRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
