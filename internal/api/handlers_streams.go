// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/camgrid/internal/models"
)

// Cameras lists configured cameras with credentials stripped from URLs.
func (h *Handler) Cameras(w http.ResponseWriter, r *http.Request) {
	var cams []models.Camera
	if h.cameras != nil {
		cams = h.cameras.Cameras()
	}
	out := make([]models.Camera, len(cams))
	for i, c := range cams {
		if c.RTSPURL != "" {
			c.RTSPURL = models.RedactURI(c.RTSPURL)
		}
		if c.RTSPURLSub != "" {
			c.RTSPURLSub = models.RedactURI(c.RTSPURLSub)
		}
		out[i] = c
	}
	respondSuccess(w, out)
}

// Streams lists pooled live connections, most recently used first.
func (h *Handler) Streams(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, map[string]interface{}{
		"active":      h.pool.ActiveCount(),
		"max_streams": h.pool.MaxStreams(),
		"streams":     h.pool.Infos(),
	})
}

// Stream returns one pooled connection. The identity is the rest of the
// path, since identities contain slashes.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "*")
	if identity == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "stream identity is required", nil)
		return
	}
	info, ok := h.pool.StreamInfo(identity)
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "stream not found", nil)
		return
	}
	respondSuccess(w, info)
}
