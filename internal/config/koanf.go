// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/camgrid/config.yaml",
	"/etc/camgrid/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with every default applied. These are
// loaded first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Pool: PoolConfig{
			MaxStreams: 16,
		},
		Stream: StreamConfig{
			OpenTimeout:          5 * time.Second,
			ReadTimeout:          10 * time.Second,
			StopTimeout:          2 * time.Second,
			BaseDelay:            time.Second,
			MaxDelay:             30 * time.Second,
			MaxReconnectAttempts: 10,
			FailedCooldown:       10 * time.Second,
			BufferFrames:         1, // live view wants the newest frame only
		},
		Playback: PlaybackConfig{
			FrameCacheSize:     300,
			ThumbnailCacheSize: 500,
			OpenTimeout:        5 * time.Second,
			ReadTimeout:        10 * time.Second,
			StopTimeout:        2 * time.Second,
			MinSpeed:           0.5,
			MaxSpeed:           16,
			BufferFrames:       3,
			PrefetchMinStep:    10 * time.Second,
			PrefetchRate:       4,
			BreakerFailures:    5,
			BreakerTimeout:     30 * time.Second,
			EventTimeout:       2 * time.Second,
		},
		Timeline: TimelineConfig{
			LiveThreshold: 5 * time.Second,
			TickInterval:  time.Second,
			MinWindow:     time.Minute,
			MaxWindow:     7 * 24 * time.Hour,
		},
		Grid: GridConfig{
			Rows:             2,
			Cols:             2,
			PollInterval:     33 * time.Millisecond,
			PositionInterval: 250 * time.Millisecond,
			ThumbnailSlots:   4,
		},
		Decoder: DecoderConfig{
			Backend:       "ffmpeg",
			FFmpegPath:    "ffmpeg",
			FFprobePath:   "ffprobe",
			RTSPTransport: "tcp",
			ReadTimeout:   10 * time.Second,
			FakeWidth:     640,
			FakeHeight:    360,
			FakeFPS:       25,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8095,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5.0,
			FailureDecay:     30.0,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in values
//  2. Config File: optional YAML file (if one exists)
//  3. Environment Variables: override any mapped setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// MAX_STREAMS -> pool.max_streams, HTTP_PORT -> server.port
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when set from env.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Pool and live streams
	"max_streams":                   "pool.max_streams",
	"stream_open_timeout":           "stream.open_timeout",
	"stream_read_timeout":           "stream.read_timeout",
	"stream_base_delay":             "stream.base_delay",
	"stream_max_delay":              "stream.max_delay",
	"stream_max_reconnect_attempts": "stream.max_reconnect_attempts",
	"stream_failed_cooldown":        "stream.failed_cooldown",

	// Playback
	"playback_frame_cache_size":     "playback.frame_cache_size",
	"playback_thumbnail_cache_size": "playback.thumbnail_cache_size",
	"playback_open_timeout":         "playback.open_timeout",
	"playback_max_speed":            "playback.max_speed",
	"prefetch_min_step":             "playback.prefetch_min_step",
	"prefetch_rate":                 "playback.prefetch_rate",

	// Timeline
	"live_threshold":         "timeline.live_threshold",
	"timeline_tick_interval": "timeline.tick_interval",

	// Grid
	"grid_rows":          "grid.rows",
	"grid_cols":          "grid.cols",
	"grid_poll_interval": "grid.poll_interval",
	"thumbnail_slots":    "grid.thumbnail_slots",

	// Decoder
	"decoder_backend": "decoder.backend",
	"ffmpeg_path":     "decoder.ffmpeg_path",
	"ffprobe_path":    "decoder.ffprobe_path",
	"rtsp_transport":  "decoder.rtsp_transport",

	// Server
	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_read_timeout":   "server.read_timeout",
	"http_write_timeout":  "server.write_timeout",
	"shutdown_timeout":    "server.shutdown_timeout",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_reqs",
	"rate_limit_window":   "server.rate_limit_window",
	"disable_rate_limit":  "server.rate_limit_disabled",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
}

// envTransformFunc maps an environment variable name to a koanf path, or
// "" to skip it.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
