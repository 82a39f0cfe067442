package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Validates(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestLoad_OverridesOnlySpecifiedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("buffer:\n  buffering_target: 30\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30.0, cfg.Buffer.BufferingTarget)
	assert.Equal(t, 10.0, cfg.Buffer.MinBufferLevel, "unspecified fields keep their default")
}

func TestValidate_RejectsInvertedBufferBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Buffer.MaxBufferLevel = cfg.Buffer.BufferingTarget
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsOutOfRangeSmoothingFactor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quality.SmoothingFactor = 1.5
	assert.Error(t, cfg.Validate())
}
