// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/camgrid/internal/models"
	"github.com/tomtom215/camgrid/internal/validation"
)

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Decoder.Backend = "fake"
	cfg.Devices = []models.Device{{ID: "nvr1", Host: "10.0.0.5"}}
	cfg.Cameras = []models.Camera{{ID: "front", DeviceID: "nvr1", Channel: 1}}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "Level"},
		{"zero pool", func(c *Config) { c.Pool.MaxStreams = 0 }, "MaxStreams"},
		{"max delay below base", func(c *Config) { c.Stream.MaxDelay = time.Millisecond }, "MaxDelay"},
		{"speed range inverted", func(c *Config) { c.Playback.MaxSpeed = 0.25 }, "MaxSpeed"},
		{"unknown backend", func(c *Config) { c.Decoder.Backend = "gstreamer" }, "Backend"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "Port"},
		{"bad device host", func(c *Config) { c.Devices[0].Host = "not a host!" }, "host"},
		{"duplicate device", func(c *Config) {
			c.Devices = append(c.Devices, models.Device{ID: "nvr1", Host: "10.0.0.6"})
		}, "duplicate device"},
		{"camera without device", func(c *Config) { c.Cameras[0].DeviceID = "nvr9" }, "unknown device"},
		{"duplicate camera", func(c *Config) {
			c.Cameras = append(c.Cameras, models.Camera{ID: "front", DeviceID: "nvr1", Channel: 2})
		}, "duplicate camera"},
		{"event for unknown camera", func(c *Config) {
			start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
			c.Events = []models.Event{{CameraID: "back", Start: start, End: start.Add(time.Minute)}}
		}, "unknown camera"},
		{"segment for unknown camera", func(c *Config) {
			start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
			c.Segments = []models.Segment{{CameraID: "back", Start: start, End: start.Add(time.Hour)}}
		}, "segments[0]: unknown camera"},
		{"grid larger than pool", func(c *Config) { c.Grid.Rows, c.Grid.Cols, c.Pool.MaxStreams = 4, 4, 8 }, "pool.max_streams"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_FieldErrorsAreStructured(t *testing.T) {
	cfg := validConfig()
	cfg.Pool.MaxStreams = 0

	var verr *validation.Error
	if err := cfg.Validate(); !errors.As(err, &verr) {
		t.Fatalf("Validate() = %v, want *validation.Error", err)
	}
	if len(verr.Fields) == 0 || verr.Fields[0].Tag != "min" {
		t.Errorf("Fields = %+v", verr.Fields)
	}
}

func TestValidate_FFmpegBinaries(t *testing.T) {
	prev := lookPath
	t.Cleanup(func() { lookPath = prev })

	cfg := validConfig()
	cfg.Decoder.Backend = "ffmpeg"

	lookPath = func(file string) (string, error) { return "/usr/bin/" + file, nil }
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with binaries present = %v", err)
	}

	lookPath = func(file string) (string, error) { return "", errors.New("not found") }
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "ffmpeg") {
		t.Errorf("Validate() without binaries = %v", err)
	}
}

func TestConversions(t *testing.T) {
	cfg := validConfig()
	cfg.Stream.BaseDelay = 250 * time.Millisecond
	cfg.Playback.FrameCacheSize = 42
	cfg.Playback.EventTimeout = 3 * time.Second
	cfg.Timeline.LiveThreshold = 7 * time.Second

	if got := cfg.Stream.Connection().BaseDelay; got != 250*time.Millisecond {
		t.Errorf("Connection().BaseDelay = %v", got)
	}
	if got := cfg.Playback.Session().FrameCacheSize; got != 42 {
		t.Errorf("Session().FrameCacheSize = %d", got)
	}
	if got := cfg.Timeline.Cursor().LiveThreshold; got != 7*time.Second {
		t.Errorf("Cursor().LiveThreshold = %v", got)
	}

	g := cfg.GridSettings()
	if g.Cell.LiveThreshold != 7*time.Second || g.Cell.EventTimeout != 3*time.Second {
		t.Errorf("GridSettings().Cell = %+v", g.Cell)
	}
	if g.Cell.Playback.FrameCacheSize != 42 {
		t.Errorf("GridSettings().Cell.Playback.FrameCacheSize = %d", g.Cell.Playback.FrameCacheSize)
	}
	if got := cfg.Logging.Logger(); got.Level != "info" || got.Output == nil {
		t.Errorf("Logger() = %+v", got)
	}
	if got := cfg.Decoder.FFmpeg(); got.RTSPTransport != "tcp" {
		t.Errorf("FFmpeg().RTSPTransport = %q", got.RTSPTransport)
	}
}
