// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package models

import "errors"

var (
	// ErrNotLoaded is returned by session operations before Load.
	ErrNotLoaded = errors.New("playback session not loaded")

	// ErrInvalidDescriptor is returned when a source descriptor fails validation.
	ErrInvalidDescriptor = errors.New("invalid source descriptor")

	// ErrRecordingUnavailable wraps pipeline open failures for recorded media.
	ErrRecordingUnavailable = errors.New("recording unavailable")

	ErrCameraNotFound = errors.New("camera not found")
	ErrDeviceNotFound = errors.New("device not found")

	// ErrCellIndex is returned for out-of-range grid cell indexes.
	ErrCellIndex = errors.New("cell index out of range")
)
