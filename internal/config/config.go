// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package config

import (
	"time"

	"github.com/tomtom215/camgrid/internal/cell"
	"github.com/tomtom215/camgrid/internal/decoder"
	"github.com/tomtom215/camgrid/internal/grid"
	"github.com/tomtom215/camgrid/internal/logging"
	"github.com/tomtom215/camgrid/internal/models"
	"github.com/tomtom215/camgrid/internal/playback"
	"github.com/tomtom215/camgrid/internal/stream"
	"github.com/tomtom215/camgrid/internal/timeline"
)

// Config holds all application configuration.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in values for every setting
//  2. Config File: optional YAML file (config.yaml or CONFIG_PATH)
//  3. Environment Variables: override individual settings
//
// Devices, cameras and event markers only come from the config file.
//
// Config is immutable after Load and safe for concurrent reads.
type Config struct {
	Logging    LoggingConfig    `koanf:"logging"`
	Pool       PoolConfig       `koanf:"pool"`
	Stream     StreamConfig     `koanf:"stream"`
	Playback   PlaybackConfig   `koanf:"playback"`
	Timeline   TimelineConfig   `koanf:"timeline"`
	Grid       GridConfig       `koanf:"grid"`
	Decoder    DecoderConfig    `koanf:"decoder"`
	Server     ServerConfig     `koanf:"server"`
	Supervisor SupervisorConfig `koanf:"supervisor"`

	Devices  []models.Device  `koanf:"devices" validate:"dive"`
	Cameras  []models.Camera  `koanf:"cameras" validate:"dive"`
	Events   []models.Event   `koanf:"events" validate:"dive"`
	Segments []models.Segment `koanf:"segments" validate:"dive"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level: trace, debug, info, warn, error
	Level string `koanf:"level" validate:"oneof=trace debug info warn error"`

	// Format: json or console
	Format string `koanf:"format" validate:"oneof=json console"`

	Caller bool `koanf:"caller"`
}

// PoolConfig bounds the live stream pool.
type PoolConfig struct {
	MaxStreams int `koanf:"max_streams" validate:"min=1,max=256"`
}

// StreamConfig holds live connection timing.
type StreamConfig struct {
	OpenTimeout          time.Duration `koanf:"open_timeout" validate:"gt=0"`
	ReadTimeout          time.Duration `koanf:"read_timeout" validate:"gt=0"`
	StopTimeout          time.Duration `koanf:"stop_timeout" validate:"gt=0"`
	BaseDelay            time.Duration `koanf:"base_delay" validate:"gt=0"`
	MaxDelay             time.Duration `koanf:"max_delay" validate:"gtefield=BaseDelay"`
	MaxReconnectAttempts int           `koanf:"max_reconnect_attempts" validate:"min=1"`
	FailedCooldown       time.Duration `koanf:"failed_cooldown" validate:"gt=0"`
	BufferFrames         int           `koanf:"buffer_frames" validate:"min=1,max=64"`
}

// PlaybackConfig holds recorded media session settings.
type PlaybackConfig struct {
	FrameCacheSize     int           `koanf:"frame_cache_size" validate:"min=1"`
	ThumbnailCacheSize int           `koanf:"thumbnail_cache_size" validate:"min=1"`
	OpenTimeout        time.Duration `koanf:"open_timeout" validate:"gt=0"`
	ReadTimeout        time.Duration `koanf:"read_timeout" validate:"gt=0"`
	StopTimeout        time.Duration `koanf:"stop_timeout" validate:"gt=0"`
	MinSpeed           float64       `koanf:"min_speed" validate:"gt=0"`
	MaxSpeed           float64       `koanf:"max_speed" validate:"gtefield=MinSpeed"`
	BufferFrames       int           `koanf:"buffer_frames" validate:"min=1,max=64"`
	PrefetchMinStep    time.Duration `koanf:"prefetch_min_step" validate:"gt=0"`
	PrefetchRate       float64       `koanf:"prefetch_rate" validate:"gt=0"`
	BreakerFailures    uint32        `koanf:"breaker_failures" validate:"min=1"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
	EventTimeout       time.Duration `koanf:"event_timeout" validate:"gt=0"`
}

// TimelineConfig holds cursor settings.
type TimelineConfig struct {
	LiveThreshold time.Duration `koanf:"live_threshold" validate:"gt=0"`
	TickInterval  time.Duration `koanf:"tick_interval" validate:"gt=0"`
	MinWindow     time.Duration `koanf:"min_window" validate:"gt=0"`
	MaxWindow     time.Duration `koanf:"max_window" validate:"gtefield=MinWindow"`
}

// GridConfig holds layout and display settings.
type GridConfig struct {
	Rows             int           `koanf:"rows" validate:"min=1,max=8"`
	Cols             int           `koanf:"cols" validate:"min=1,max=8"`
	PollInterval     time.Duration `koanf:"poll_interval" validate:"gt=0"`
	PositionInterval time.Duration `koanf:"position_interval" validate:"gt=0"`
	ThumbnailSlots   int           `koanf:"thumbnail_slots" validate:"min=1,max=64"`
}

// DecoderConfig selects and configures the decoding backend.
type DecoderConfig struct {
	// Backend: ffmpeg, or fake for a synthetic demo feed
	Backend       string        `koanf:"backend" validate:"oneof=ffmpeg fake"`
	FFmpegPath    string        `koanf:"ffmpeg_path"`
	FFprobePath   string        `koanf:"ffprobe_path"`
	RTSPTransport string        `koanf:"rtsp_transport" validate:"oneof=tcp udp"`
	ReadTimeout   time.Duration `koanf:"read_timeout" validate:"gt=0"`

	FakeWidth  int     `koanf:"fake_width" validate:"min=1"`
	FakeHeight int     `koanf:"fake_height" validate:"min=1"`
	FakeFPS    float64 `koanf:"fake_fps" validate:"gt=0"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// SupervisorConfig holds suture tree settings.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gt=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// Logger converts the logging section for logging.Init.
func (l LoggingConfig) Logger() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = l.Level
	cfg.Format = l.Format
	cfg.Caller = l.Caller
	return cfg
}

// Connection converts the stream section for the pool.
func (s StreamConfig) Connection() stream.ConnectionConfig {
	cfg := stream.DefaultConnectionConfig()
	cfg.OpenTimeout = s.OpenTimeout
	cfg.ReadTimeout = s.ReadTimeout
	cfg.StopTimeout = s.StopTimeout
	cfg.BaseDelay = s.BaseDelay
	cfg.MaxDelay = s.MaxDelay
	cfg.MaxReconnectAttempts = s.MaxReconnectAttempts
	cfg.FailedCooldown = s.FailedCooldown
	cfg.BufferFrames = s.BufferFrames
	return cfg
}

// Session converts the playback section for sessions.
func (p PlaybackConfig) Session() playback.Config {
	cfg := playback.DefaultConfig()
	cfg.FrameCacheSize = p.FrameCacheSize
	cfg.ThumbnailCacheSize = p.ThumbnailCacheSize
	cfg.OpenTimeout = p.OpenTimeout
	cfg.ReadTimeout = p.ReadTimeout
	cfg.StopTimeout = p.StopTimeout
	cfg.MinSpeed = p.MinSpeed
	cfg.MaxSpeed = p.MaxSpeed
	cfg.BufferFrames = p.BufferFrames
	cfg.PrefetchMinStep = p.PrefetchMinStep
	cfg.PrefetchRate = p.PrefetchRate
	cfg.BreakerFailures = p.BreakerFailures
	cfg.BreakerTimeout = p.BreakerTimeout
	return cfg
}

// Cursor converts the timeline section.
func (t TimelineConfig) Cursor() timeline.Config {
	return timeline.Config{
		LiveThreshold: t.LiveThreshold,
		TickInterval:  t.TickInterval,
		MinWindow:     t.MinWindow,
		MaxWindow:     t.MaxWindow,
	}
}

// FFmpeg converts the decoder section for the ffmpeg backend.
func (d DecoderConfig) FFmpeg() decoder.FFmpegConfig {
	return decoder.FFmpegConfig{
		FFmpegPath:    d.FFmpegPath,
		FFprobePath:   d.FFprobePath,
		RTSPTransport: d.RTSPTransport,
		ReadTimeout:   d.ReadTimeout,
	}
}

// GridSettings combines the grid, timeline and playback sections into the
// grid controller's configuration.
func (c *Config) GridSettings() grid.Config {
	return grid.Config{
		Rows:             c.Grid.Rows,
		Cols:             c.Grid.Cols,
		PollInterval:     c.Grid.PollInterval,
		PositionInterval: c.Grid.PositionInterval,
		ThumbnailSlots:   c.Grid.ThumbnailSlots,
		Cell: cell.Config{
			LiveThreshold: c.Timeline.LiveThreshold,
			Playback:      c.Playback.Session(),
			EventTimeout:  c.Playback.EventTimeout,
		},
	}
}

// Load loads configuration from defaults, the config file and the
// environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
