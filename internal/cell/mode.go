// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package cell

import (
	"time"

	"github.com/tomtom215/camgrid/internal/models"
)

// DefaultLiveThreshold is how far behind now a target may be and still
// count as live.
const DefaultLiveThreshold = 5 * time.Second

// DecideMode returns live when target is unset or within threshold of now,
// playback otherwise. Targets in the future are live.
func DecideMode(target, now time.Time, threshold time.Duration) models.CellMode {
	if target.IsZero() || now.Sub(target) <= threshold {
		return models.ModeLive
	}
	return models.ModePlayback
}
