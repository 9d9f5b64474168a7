// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package api

import (
	"net/http"
	"time"
)

// SeekRequest moves the shared cursor to an absolute time.
type SeekRequest struct {
	Position time.Time `json:"position" validate:"required"`
}

// SkipRequest moves the cursor relative to its position.
type SkipRequest struct {
	Seconds float64 `json:"seconds" validate:"required"`
}

// ZoomRequest scales the window; below 1 zooms in.
type ZoomRequest struct {
	Factor float64 `json:"factor" validate:"gt=0,lte=100"`
}

// DayRequest shows one calendar day.
type DayRequest struct {
	Day string `json:"day" validate:"required,datetime=2006-01-02"`
}

// Timeline returns the cursor state.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, h.grid.Cursor().Snapshot())
}

// TimelineSeek scrubs every cell to a time. Landing near now goes live.
func (h *Handler) TimelineSeek(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cursor := h.grid.Cursor()
	cursor.Seek(req.Position)
	respondSuccess(w, cursor.Snapshot())
}

// TimelineLive returns every cell to live view.
func (h *Handler) TimelineLive(w http.ResponseWriter, r *http.Request) {
	cursor := h.grid.Cursor()
	cursor.GoLive()
	respondSuccess(w, cursor.Snapshot())
}

// TimelineSkip jumps forward or back by a number of seconds.
func (h *Handler) TimelineSkip(w http.ResponseWriter, r *http.Request) {
	var req SkipRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cursor := h.grid.Cursor()
	cursor.SeekRelative(time.Duration(req.Seconds * float64(time.Second)))
	respondSuccess(w, cursor.Snapshot())
}

// TimelineZoom scales the visible window around the position.
func (h *Handler) TimelineZoom(w http.ResponseWriter, r *http.Request) {
	var req ZoomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cursor := h.grid.Cursor()
	cursor.Zoom(req.Factor)
	respondSuccess(w, cursor.Snapshot())
}

// TimelineDay selects a calendar day in the cursor clock's location.
func (h *Handler) TimelineDay(w http.ResponseWriter, r *http.Request) {
	var req DayRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cursor := h.grid.Cursor()
	day, err := time.ParseInLocation("2006-01-02", req.Day, cursor.Now().Location())
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "day must be YYYY-MM-DD", nil)
		return
	}
	if day.After(cursor.Now()) {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "day must not be in the future", nil)
		return
	}
	cursor.SelectDay(day)
	respondSuccess(w, cursor.Snapshot())
}
