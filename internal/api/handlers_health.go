// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package api

import (
	"net/http"

	"github.com/tomtom215/camgrid/internal/models"
)

// Health reports engine status. It answers 200 even when degraded so
// probes can read the body; "degraded" means a camera is assigned but no
// stream or session is up.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	snap := h.grid.Snapshot()

	health := models.HealthStatus{
		Status:        "healthy",
		Version:       h.config.Version,
		Uptime:        now.Sub(h.started).Seconds(),
		ActiveStreams: h.pool.ActiveCount(),
		MaxStreams:    h.pool.MaxStreams(),
		Cameras:       snap.Cameras,
		TimelineLive:  h.grid.Cursor().IsLive(),
		CheckedAt:     now.UTC(),
	}
	if h.wsHub != nil {
		health.WSClients = h.wsHub.GetClientCount()
	}

	if snap.Cameras > 0 && !anyCellUp(snap.Cells) {
		health.Status = "degraded"
	}

	respondSuccess(w, health)
}

func anyCellUp(cells []models.CellSnapshot) bool {
	for _, c := range cells {
		switch c.Status {
		case models.StatusConnected, models.StatusPlaying, models.StatusPaused, models.StatusLoaded, models.StatusBuffering, models.StatusEnded:
			return true
		}
	}
	return false
}
