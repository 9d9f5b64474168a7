// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package config

import (
	"fmt"
	"os/exec"

	"github.com/tomtom215/camgrid/internal/validation"
)

// Validate checks field rules, then the relations between sections.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if err := c.validateDirectory(); err != nil {
		return err
	}

	if err := c.validateGrid(); err != nil {
		return err
	}

	return c.validateDecoder()
}

// validateDirectory checks that ids are unique and every camera and event
// refers to something that exists.
func (c *Config) validateDirectory() error {
	devices := make(map[string]bool, len(c.Devices))
	for _, d := range c.Devices {
		if devices[d.ID] {
			return fmt.Errorf("duplicate device id %q", d.ID)
		}
		devices[d.ID] = true
	}

	cameras := make(map[string]bool, len(c.Cameras))
	for _, cam := range c.Cameras {
		if cameras[cam.ID] {
			return fmt.Errorf("duplicate camera id %q", cam.ID)
		}
		if !devices[cam.DeviceID] {
			return fmt.Errorf("camera %q: unknown device %q", cam.ID, cam.DeviceID)
		}
		cameras[cam.ID] = true
	}

	for i, ev := range c.Events {
		if !cameras[ev.CameraID] {
			return fmt.Errorf("events[%d]: unknown camera %q", i, ev.CameraID)
		}
	}
	for i, seg := range c.Segments {
		if !cameras[seg.CameraID] {
			return fmt.Errorf("segments[%d]: unknown camera %q", i, seg.CameraID)
		}
	}
	return nil
}

// validateGrid keeps the initial layout within what the pool can serve
// without evicting visible cells.
func (c *Config) validateGrid() error {
	cells := c.Grid.Rows * c.Grid.Cols
	if cells > c.Pool.MaxStreams {
		return fmt.Errorf("grid %dx%d needs %d streams but pool.max_streams is %d",
			c.Grid.Rows, c.Grid.Cols, cells, c.Pool.MaxStreams)
	}
	return nil
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// validateDecoder checks that the ffmpeg binaries can be found.
func (c *Config) validateDecoder() error {
	if c.Decoder.Backend != "ffmpeg" {
		return nil
	}
	for _, bin := range []string{c.Decoder.FFmpegPath, c.Decoder.FFprobePath} {
		if bin == "" {
			return fmt.Errorf("decoder.backend=ffmpeg requires ffmpeg_path and ffprobe_path")
		}
		if _, err := lookPath(bin); err != nil {
			return fmt.Errorf("decoder binary %q not found: %w", bin, err)
		}
	}
	return nil
}
