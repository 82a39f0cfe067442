// Package config loads the §6 configuration surface from YAML, mirroring
// the teacher's internal/config package: a single Config struct with
// yaml tags and a DefaultConfig/Load/Validate trio, one sub-struct per
// concern (buffer, pipeline, quality, scheduler, stall/gap).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mantonx/dashabr/internal/abr/pipeline"
	"github.com/mantonx/dashabr/internal/abr/quality"
	"github.com/mantonx/dashabr/internal/abr/scheduler"
	"github.com/mantonx/dashabr/internal/abr/stall"
)

// BufferConfig holds the buffer-level thresholds shared by BOLA, the
// quality selector, and the pipeline.
type BufferConfig struct {
	MinBufferLevel  float64 `yaml:"min_buffer_level" default:"10"`
	MaxBufferLevel  float64 `yaml:"max_buffer_level" default:"90"`
	BufferingTarget float64 `yaml:"buffering_target" default:"60"`
	BufferBehind    float64 `yaml:"buffer_behind" default:"5"`
}

// PipelineConfig mirrors pipeline.Config with yaml tags.
type PipelineConfig struct {
	MaxConcurrentDownloads  int     `yaml:"max_concurrent_downloads" default:"2"`
	FastSwitchingEnabled    bool    `yaml:"fast_switching_enabled" default:"true"`
	ReplacementSafetyFactor float64 `yaml:"replacement_safety_factor" default:"1.5"`
	QuotaExceededCorrection float64 `yaml:"quota_exceeded_correction_factor" default:"0.8"`
	MaxAllowedOverrun       float64 `yaml:"max_allowed_overrun" default:"4"`
	SegmentTimeoutMs        float64 `yaml:"segment_timeout_ms" default:"10000"`
	PruningIntervalMs       float64 `yaml:"pruning_interval_ms" default:"5000"`
	ManagedSink             bool    `yaml:"managed_sink" default:"false"`
}

// QualityConfig mirrors quality.Config with yaml tags. StartupStrategy has
// no counterpart in quality.Config and is not passed on by QualityOptions.
type QualityConfig struct {
	SwitchCooldownMs       float64 `yaml:"switch_cooldown_period_ms" default:"5000"`
	AllowSmoothing         bool    `yaml:"allow_smoothing" default:"true"`
	SmoothingEnableDelayMs float64 `yaml:"smoothing_enable_delay_ms" default:"5000"`
	SmoothingFactor        float64 `yaml:"smoothing_factor" default:"0.5"`
	StartupStrategy        string  `yaml:"startup_strategy" default:"Bandwidth"`
}

// SchedulerConfig mirrors scheduler.Config with yaml tags.
type SchedulerConfig struct {
	InitialDelayMs       float64 `yaml:"initial_delay_ms" default:"100"`
	BaseIntervalMs       float64 `yaml:"base_interval_ms" default:"500"`
	MinIntervalMs        float64 `yaml:"min_interval_ms" default:"100"`
	MaxIntervalMs        float64 `yaml:"max_interval_ms" default:"2000"`
	SlowdownThreshold    float64 `yaml:"slowdown_threshold" default:"0.8"`
	PreloadTarget        float64 `yaml:"preload_target" default:"20"`
	CriticalBufferLevel  float64 `yaml:"critical_buffer_level" default:"5"`
	QualityCheckInterval float64 `yaml:"quality_check_interval_ms" default:"1000"`
}

// StallConfig mirrors stall.Config + stall.GapHandlerConfig with yaml tags.
type StallConfig struct {
	StallThresholdMs           float64 `yaml:"stall_threshold_ms" default:"250"`
	ConsecutiveChecksThreshold int     `yaml:"consecutive_checks_threshold" default:"3"`
	GapJumpTolerance           float64 `yaml:"gap_jump_tolerance" default:"0.3"`
}

// Config is the root configuration document loaded from YAML.
type Config struct {
	Buffer    BufferConfig    `yaml:"buffer"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Quality   QualityConfig   `yaml:"quality"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Stall     StallConfig     `yaml:"stall"`
}

// DefaultConfig returns the documented §6 defaults.
func DefaultConfig() *Config {
	return &Config{
		Buffer: BufferConfig{
			MinBufferLevel:  10,
			MaxBufferLevel:  90,
			BufferingTarget: 60,
			BufferBehind:    5,
		},
		Pipeline: PipelineConfig{
			MaxConcurrentDownloads:  2,
			FastSwitchingEnabled:    true,
			ReplacementSafetyFactor: 1.5,
			QuotaExceededCorrection: 0.8,
			MaxAllowedOverrun:       4,
			SegmentTimeoutMs:        10_000,
			PruningIntervalMs:       5_000,
		},
		Quality: QualityConfig{
			SwitchCooldownMs:       5000,
			AllowSmoothing:         true,
			SmoothingEnableDelayMs: 5000,
			SmoothingFactor:        0.5,
			StartupStrategy:        "Bandwidth",
		},
		Scheduler: SchedulerConfig{
			InitialDelayMs:       100,
			BaseIntervalMs:       500,
			MinIntervalMs:        100,
			MaxIntervalMs:        2000,
			SlowdownThreshold:    0.8,
			PreloadTarget:        20,
			CriticalBufferLevel:  5,
			QualityCheckInterval: 1000,
		},
		Stall: StallConfig{
			StallThresholdMs:           250,
			ConsecutiveChecksThreshold: 3,
			GapJumpTolerance:           0.3,
		},
	}
}

// Load reads and parses a YAML config file, starting from DefaultConfig so
// a file only needs to override what it changes.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects combinations that would violate §8's universal
// invariants before the core ever starts.
func (c *Config) Validate() error {
	if c.Buffer.MinBufferLevel <= 0 {
		return fmt.Errorf("buffer.min_buffer_level must be positive")
	}
	if c.Buffer.MaxBufferLevel <= c.Buffer.BufferingTarget {
		return fmt.Errorf("buffer.max_buffer_level must exceed buffer.buffering_target")
	}
	if c.Pipeline.MaxConcurrentDownloads <= 0 {
		return fmt.Errorf("pipeline.max_concurrent_downloads must be positive")
	}
	if c.Quality.SmoothingFactor < 0 || c.Quality.SmoothingFactor > 1 {
		return fmt.Errorf("quality.smoothing_factor must be in [0,1]")
	}
	if c.Scheduler.MinIntervalMs <= 0 || c.Scheduler.MinIntervalMs > c.Scheduler.MaxIntervalMs {
		return fmt.Errorf("scheduler.min_interval_ms must be positive and <= max_interval_ms")
	}
	return nil
}

// PipelineOptions converts to pipeline.Config.
func (c *Config) PipelineOptions() pipeline.Config {
	return pipeline.Config{
		MaxConcurrentDownloads:  c.Pipeline.MaxConcurrentDownloads,
		BufferingTarget:         c.Buffer.BufferingTarget,
		BufferBehind:            c.Buffer.BufferBehind,
		FastSwitchingEnabled:    c.Pipeline.FastSwitchingEnabled,
		ReplacementSafetyFactor: c.Pipeline.ReplacementSafetyFactor,
		QuotaExceededCorrection: c.Pipeline.QuotaExceededCorrection,
		MaxAllowedOverrun:       c.Pipeline.MaxAllowedOverrun,
		SegmentTimeoutMs:        c.Pipeline.SegmentTimeoutMs,
		PruningIntervalMs:       c.Pipeline.PruningIntervalMs,
		ManagedSink:             c.Pipeline.ManagedSink,
	}
}

// QualityOptions converts to quality.Config.
func (c *Config) QualityOptions() quality.Config {
	return quality.Config{
		MinBufferLevel:         c.Buffer.MinBufferLevel,
		SwitchCooldownMs:       c.Quality.SwitchCooldownMs,
		AllowSmoothing:         c.Quality.AllowSmoothing,
		SmoothingEnableDelayMs: c.Quality.SmoothingEnableDelayMs,
		SmoothingFactor:        c.Quality.SmoothingFactor,
	}
}

// SchedulerOptions converts to scheduler.Config.
func (c *Config) SchedulerOptions() scheduler.Config {
	return scheduler.Config{
		InitialDelayMs:       c.Scheduler.InitialDelayMs,
		BaseIntervalMs:       c.Scheduler.BaseIntervalMs,
		MinIntervalMs:        c.Scheduler.MinIntervalMs,
		MaxIntervalMs:        c.Scheduler.MaxIntervalMs,
		SlowdownThreshold:    c.Scheduler.SlowdownThreshold,
		PreloadTarget:        c.Scheduler.PreloadTarget,
		CriticalBufferLevel:  c.Scheduler.CriticalBufferLevel,
		QualityCheckInterval: c.Scheduler.QualityCheckInterval,
	}
}

// StallOptions converts to stall.Config.
func (c *Config) StallOptions() stall.Config {
	return stall.Config{
		StallThresholdMs:           c.Stall.StallThresholdMs,
		ConsecutiveChecksThreshold: c.Stall.ConsecutiveChecksThreshold,
	}
}

// GapHandlerOptions converts to stall.GapHandlerConfig.
func (c *Config) GapHandlerOptions() stall.GapHandlerConfig {
	return stall.GapHandlerConfig{GapJumpTolerance: c.Stall.GapJumpTolerance}
}
