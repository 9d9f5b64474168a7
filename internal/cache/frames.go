// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package cache

import (
	"time"

	"github.com/disintegration/imaging"

	"github.com/tomtom215/camgrid/internal/models"
)

const (
	// DefaultFrameCapacity holds roughly ten seconds of 30fps video.
	DefaultFrameCapacity = 300

	// DefaultThumbnailCapacity covers a day at the prefetch step with room to spare.
	DefaultThumbnailCapacity = 500

	DefaultThumbnailWidth  = 160
	DefaultThumbnailHeight = 90

	// FrameTolerance is the nearest-match window for decoded frames on seek.
	FrameTolerance = 100 * time.Millisecond

	// ThumbnailTolerance is the nearest-match window for thumbnails on seek.
	ThumbnailTolerance = 5 * time.Second
)

// FrameCache stores recently decoded full-resolution frames of one session.
type FrameCache = TimeCache[models.Frame]

// NewFrameCache creates a frame cache of the given capacity.
func NewFrameCache(capacity int) *FrameCache {
	if capacity <= 0 {
		capacity = DefaultFrameCapacity
	}
	return NewTimeCache[models.Frame](capacity, models.Frame.Clone)
}

// ThumbnailCache stores small downsampled frames used for scrubbing
// previews and as seek placeholders.
type ThumbnailCache struct {
	store  *TimeCache[models.Frame]
	width  int
	height int
}

// NewThumbnailCache creates a thumbnail cache. Frames are downsampled to
// width x height on Put.
func NewThumbnailCache(capacity, width, height int) *ThumbnailCache {
	if capacity <= 0 {
		capacity = DefaultThumbnailCapacity
	}
	if width <= 0 || height <= 0 {
		width, height = DefaultThumbnailWidth, DefaultThumbnailHeight
	}
	return &ThumbnailCache{
		store:  NewTimeCache[models.Frame](capacity, models.Frame.Clone),
		width:  width,
		height: height,
	}
}

// Put downsamples frame and stores it under ts. No-op if ts is cached.
func (c *ThumbnailCache) Put(ts time.Time, frame models.Frame) {
	if frame.IsZero() || c.store.Contains(ts) {
		return
	}
	c.store.Put(ts, Downscale(frame, c.width, c.height), frame.Keyframe)
}

// Get returns the thumbnail stored at exactly ts.
func (c *ThumbnailCache) Get(ts time.Time) (models.Frame, bool) {
	return c.store.Get(ts)
}

// GetNearest returns the thumbnail closest to ts within maxDelta.
func (c *ThumbnailCache) GetNearest(ts time.Time, maxDelta time.Duration) (time.Time, models.Frame, bool) {
	return c.store.GetNearest(ts, maxDelta)
}

// Contains reports whether a thumbnail exists at ts without touching recency.
func (c *ThumbnailCache) Contains(ts time.Time) bool {
	return c.store.Contains(ts)
}

// Range returns the earliest and latest thumbnail timestamps.
func (c *ThumbnailCache) Range() (time.Time, time.Time, bool) {
	return c.store.Range()
}

func (c *ThumbnailCache) Len() int { return c.store.Len() }

func (c *ThumbnailCache) Clear() { c.store.Clear() }

// Stats returns hit/miss statistics.
func (c *ThumbnailCache) Stats() (hits, misses int64, size int) {
	return c.store.Stats()
}

// Size returns the configured thumbnail dimensions.
func (c *ThumbnailCache) Size() (width, height int) {
	return c.width, c.height
}

// Downscale resizes a frame with a box filter.
func Downscale(frame models.Frame, width, height int) models.Frame {
	return resize(frame, width, height, imaging.Box)
}

// Upscale resizes a frame with bilinear interpolation. Used to stretch a
// thumbnail into a full-size placeholder.
func Upscale(frame models.Frame, width, height int) models.Frame {
	return resize(frame, width, height, imaging.Linear)
}

func resize(frame models.Frame, width, height int, filter imaging.ResampleFilter) models.Frame {
	if frame.IsZero() || width <= 0 || height <= 0 {
		return frame.Clone()
	}
	if frame.Width == width && frame.Height == height {
		return frame.Clone()
	}
	out := models.FrameFromImage(imaging.Resize(frame.Image(), width, height, filter), frame.Timestamp)
	out.Seq = frame.Seq
	out.Keyframe = frame.Keyframe
	return out
}
