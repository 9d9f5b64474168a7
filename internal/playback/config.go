// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package playback

import (
	"time"

	"github.com/tomtom215/camgrid/internal/cache"
)

// Config holds session tuning. Zero fields take the defaults.
type Config struct {
	FrameCacheSize     int
	ThumbnailCacheSize int
	ThumbnailWidth     int
	ThumbnailHeight    int

	FrameTolerance     time.Duration
	ThumbnailTolerance time.Duration

	OpenTimeout time.Duration
	ReadTimeout time.Duration
	StopTimeout time.Duration

	// DefaultFPS is used when the pipeline does not report a rate.
	DefaultFPS float64

	MinSpeed float64
	MaxSpeed float64

	// BufferFrames is the decoder queue depth for recorded media.
	BufferFrames int

	// ReadRetryDelay is the pause after a failed read while buffering.
	ReadRetryDelay time.Duration

	// MaxReadFailures consecutive failed reads force a pipeline reopen.
	MaxReadFailures int

	// Thumbnail prefetch: one thumbnail every max(PrefetchMinStep,
	// window/PrefetchDivisions), at most PrefetchRate per second.
	PrefetchMinStep   time.Duration
	PrefetchDivisions int
	PrefetchRate      float64

	// BreakerFailures consecutive thumbnail failures pause prefetch for
	// BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		FrameCacheSize:     cache.DefaultFrameCapacity,
		ThumbnailCacheSize: cache.DefaultThumbnailCapacity,
		ThumbnailWidth:     cache.DefaultThumbnailWidth,
		ThumbnailHeight:    cache.DefaultThumbnailHeight,
		FrameTolerance:     cache.FrameTolerance,
		ThumbnailTolerance: cache.ThumbnailTolerance,
		OpenTimeout:        5 * time.Second,
		ReadTimeout:        10 * time.Second,
		StopTimeout:        2 * time.Second,
		DefaultFPS:         30,
		MinSpeed:           0.5,
		MaxSpeed:           16,
		BufferFrames:       3,
		ReadRetryDelay:     100 * time.Millisecond,
		MaxReadFailures:    50,
		PrefetchMinStep:    10 * time.Second,
		PrefetchDivisions:  100,
		PrefetchRate:       4,
		BreakerFailures:    5,
		BreakerTimeout:     30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	setInt := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	setDur := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	setFloat := func(v *float64, d float64) {
		if *v <= 0 {
			*v = d
		}
	}

	setInt(&c.FrameCacheSize, def.FrameCacheSize)
	setInt(&c.ThumbnailCacheSize, def.ThumbnailCacheSize)
	setInt(&c.ThumbnailWidth, def.ThumbnailWidth)
	setInt(&c.ThumbnailHeight, def.ThumbnailHeight)
	setDur(&c.FrameTolerance, def.FrameTolerance)
	setDur(&c.ThumbnailTolerance, def.ThumbnailTolerance)
	setDur(&c.OpenTimeout, def.OpenTimeout)
	setDur(&c.ReadTimeout, def.ReadTimeout)
	setDur(&c.StopTimeout, def.StopTimeout)
	setFloat(&c.DefaultFPS, def.DefaultFPS)
	setFloat(&c.MinSpeed, def.MinSpeed)
	setFloat(&c.MaxSpeed, def.MaxSpeed)
	setInt(&c.BufferFrames, def.BufferFrames)
	setDur(&c.ReadRetryDelay, def.ReadRetryDelay)
	setInt(&c.MaxReadFailures, def.MaxReadFailures)
	setDur(&c.PrefetchMinStep, def.PrefetchMinStep)
	setInt(&c.PrefetchDivisions, def.PrefetchDivisions)
	setFloat(&c.PrefetchRate, def.PrefetchRate)
	setDur(&c.BreakerTimeout, def.BreakerTimeout)
	if c.BreakerFailures == 0 {
		c.BreakerFailures = def.BreakerFailures
	}
	return c
}

// PrefetchStep returns the thumbnail spacing for a window of length d.
func (c Config) PrefetchStep(d time.Duration) time.Duration {
	step := d / time.Duration(c.PrefetchDivisions)
	if step < c.PrefetchMinStep {
		return c.PrefetchMinStep
	}
	return step
}
