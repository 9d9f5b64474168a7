// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package models

import (
	"image"
	"time"
)

// Frame is a single decoded video picture.
//
// Pix holds non-premultiplied RGBA samples, four bytes per pixel, rows
// Stride bytes apart. A Frame is owned by whoever holds it: caches and
// connections hand out clones so callers may keep or mutate the result.
type Frame struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Stride    int       `json:"stride"`
	Keyframe  bool      `json:"keyframe"`
	Pix       []byte    `json:"-"`
}

// IsZero reports whether the frame carries no picture.
func (f Frame) IsZero() bool {
	return len(f.Pix) == 0 || f.Width == 0 || f.Height == 0
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	out := f
	if f.Pix != nil {
		out.Pix = make([]byte, len(f.Pix))
		copy(out.Pix, f.Pix)
	}
	return out
}

// Image exposes the frame as an image without copying the pixel buffer.
func (f Frame) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    f.Pix,
		Stride: f.Stride,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// FrameFromImage builds a frame from an NRGBA image, taking ownership of its
// pixel buffer.
func FrameFromImage(img *image.NRGBA, ts time.Time) Frame {
	b := img.Bounds()
	return Frame{
		Timestamp: ts,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Stride:    img.Stride,
		Pix:       img.Pix,
	}
}

// NewFrame allocates a blank frame of the given size.
func NewFrame(width, height int, ts time.Time) Frame {
	return Frame{
		Timestamp: ts,
		Width:     width,
		Height:    height,
		Stride:    width * 4,
		Pix:       make([]byte, width*height*4),
	}
}
