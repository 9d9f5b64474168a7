// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/camgrid/internal/grid"
	"github.com/tomtom215/camgrid/internal/logging"
	"github.com/tomtom215/camgrid/internal/models"
	"github.com/tomtom215/camgrid/internal/stream"
	ws "github.com/tomtom215/camgrid/internal/websocket"
)

// CameraLister lists configured cameras. *directory.Memory implements it.
type CameraLister interface {
	Cameras() []models.Camera
}

// HandlerConfig holds handler settings that do not come from the engine.
type HandlerConfig struct {
	Version string

	// AllowedOrigins gates WebSocket upgrades. Empty allows same-origin
	// requests only; "*" allows any origin.
	AllowedOrigins []string

	// JPEGQuality is used for snapshot and thumbnail images.
	JPEGQuality int
}

// Handler serves the CamGrid HTTP API.
type Handler struct {
	grid    *grid.Grid
	pool    *stream.Pool
	cameras CameraLister
	wsHub   *ws.Hub
	config  HandlerConfig
	started time.Time
	now     func() time.Time
}

// NewHandler creates a handler. hub may be nil, in which case the
// WebSocket endpoint answers 503.
func NewHandler(g *grid.Grid, pool *stream.Pool, cameras CameraLister, hub *ws.Hub, cfg HandlerConfig) *Handler {
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 80
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Handler{
		grid:    g,
		pool:    pool,
		cameras: cameras,
		wsHub:   hub,
		config:  cfg,
		started: time.Now(),
		now:     time.Now,
	}
}

func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin rejects upgrades without an Origin header and
// origins outside the configured list.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	if len(h.config.AllowedOrigins) == 0 {
		u, err := url.Parse(origin)
		if err == nil && strings.EqualFold(u.Host, r.Host) {
			return true
		}
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
