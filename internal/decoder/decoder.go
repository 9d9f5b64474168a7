// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

// Package decoder defines the boundary to the external media decoder.
//
// The engine never decodes video itself. It opens a URI through a Decoder,
// pulls RGBA frames from the returned Pipeline and releases the pipeline
// when done. Pipelines are not safe for concurrent Read calls; Release may
// be called from any goroutine and unblocks a pending Read.
package decoder

import (
	"context"
	"errors"

	"github.com/tomtom215/camgrid/internal/models"
)

// Property names a tunable on an open pipeline.
type Property string

const (
	// PropBufferFrames bounds how many decoded frames may queue ahead of Read.
	PropBufferFrames Property = "buffer_frames"

	// PropReadTimeout is the per-Read deadline in seconds.
	PropReadTimeout Property = "read_timeout"
)

var (
	// ErrReleased is returned by Read after Release.
	ErrReleased = errors.New("pipeline released")

	// ErrReadTimeout is returned when no frame arrives within the read timeout.
	ErrReadTimeout = errors.New("read timed out")

	// ErrUnsupportedProperty is returned by SetProperty for unknown keys.
	ErrUnsupportedProperty = errors.New("unsupported pipeline property")
)

// Decoder opens media pipelines. The context bounds the open only; an
// opened pipeline lives until Release.
type Decoder interface {
	Open(ctx context.Context, uri string) (Pipeline, error)
}

// Pipeline is an open decoding session on one URI.
type Pipeline interface {
	// Read blocks until the next frame is decoded. It returns io.EOF at the
	// end of finite media.
	Read(ctx context.Context) (models.Frame, error)

	SetProperty(key Property, value float64) error

	// FPS is the nominal frame rate reported by the source, 0 if unknown.
	FPS() float64

	Resolution() (width, height int)

	// Release frees the pipeline. It is idempotent.
	Release() error
}
