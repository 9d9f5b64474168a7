// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/camgrid/internal/middleware"
	"github.com/tomtom215/camgrid/internal/models"
)

// LayoutRequest resizes the grid.
type LayoutRequest struct {
	Rows int `json:"rows" validate:"min=1,max=8"`
	Cols int `json:"cols" validate:"min=1,max=8"`
}

// AssignRequest puts a camera in a cell.
type AssignRequest struct {
	CameraID string `json:"camera_id" validate:"required"`
}

// SwapRequest exchanges the cameras of two cells.
type SwapRequest struct {
	With *int `json:"with" validate:"required,min=0"`
}

// SpeedRequest sets the playback rate of every playback cell.
type SpeedRequest struct {
	Speed float64 `json:"speed" validate:"gt=0,lte=16"`
}

// Grid returns the layout and every cell.
func (h *Handler) Grid(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, h.grid.Snapshot())
}

// SetLayout resizes the grid, keeping cameras where they fit.
func (h *Handler) SetLayout(w http.ResponseWriter, r *http.Request) {
	var req LayoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.grid.SetLayout(req.Rows, req.Cols); err != nil {
		respondEngineError(w, r, err)
		return
	}
	middleware.Log(r.Context()).Info().Int("rows", req.Rows).Int("cols", req.Cols).Msg("Grid layout changed")
	respondSuccess(w, h.grid.Snapshot())
}

// Cells lists cell snapshots.
func (h *Handler) Cells(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, h.grid.Cells())
}

// Cell returns one cell.
func (h *Handler) Cell(w http.ResponseWriter, r *http.Request) {
	idx, ok := cellIndex(w, r)
	if !ok {
		return
	}
	c, err := h.grid.Cell(idx)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondSuccess(w, c.Snapshot())
}

// AssignCamera binds a camera to the cell in the path.
func (h *Handler) AssignCamera(w http.ResponseWriter, r *http.Request) {
	idx, ok := cellIndex(w, r)
	if !ok {
		return
	}
	var req AssignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	placed, err := h.grid.AddCamera(req.CameraID, idx)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	h.respondCell(w, r, placed)
}

// ClearCell removes the camera from a cell.
func (h *Handler) ClearCell(w http.ResponseWriter, r *http.Request) {
	idx, ok := cellIndex(w, r)
	if !ok {
		return
	}
	if err := h.grid.RemoveCamera(idx); err != nil {
		respondEngineError(w, r, err)
		return
	}
	h.respondCell(w, r, idx)
}

// SelectCell makes a cell the selected one.
func (h *Handler) SelectCell(w http.ResponseWriter, r *http.Request) {
	idx, ok := cellIndex(w, r)
	if !ok {
		return
	}
	if err := h.grid.SelectCell(idx); err != nil {
		respondEngineError(w, r, err)
		return
	}
	h.respondCell(w, r, idx)
}

// SwapCells exchanges the camera in the path cell with another cell.
func (h *Handler) SwapCells(w http.ResponseWriter, r *http.Request) {
	idx, ok := cellIndex(w, r)
	if !ok {
		return
	}
	var req SwapRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.grid.SwapCells(idx, *req.With); err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondSuccess(w, h.grid.Cells())
}

// CellSnapshotImage returns the frame the cell is showing as a JPEG.
func (h *Handler) CellSnapshotImage(w http.ResponseWriter, r *http.Request) {
	idx, ok := cellIndex(w, r)
	if !ok {
		return
	}
	c, err := h.grid.Cell(idx)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}

	var frame models.Frame
	var have bool
	switch c.Mode() {
	case models.ModeLive:
		if lease := c.Lease(); lease != "" {
			frame, have = h.pool.LatestFrame(lease)
		}
	case models.ModePlayback:
		if sess := c.Session(); sess != nil {
			frame, have = sess.CurrentFrame()
		}
	}
	if !have || frame.IsZero() {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no frame available", nil)
		return
	}
	respondJPEG(w, frame.Image(), h.config.JPEGQuality)
}

// CellThumbnail returns the prefetched thumbnail nearest to ?ts= for
// timeline hover previews.
func (h *Handler) CellThumbnail(w http.ResponseWriter, r *http.Request) {
	idx, ok := cellIndex(w, r)
	if !ok {
		return
	}
	ts, err := time.Parse(time.RFC3339, r.URL.Query().Get("ts"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "ts must be an RFC 3339 timestamp", nil)
		return
	}
	c, err := h.grid.Cell(idx)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	sess := c.Session()
	if sess == nil {
		respondError(w, http.StatusConflict, "CONFLICT", "cell is not in playback mode", nil)
		return
	}
	frame, found := sess.Thumbnail(ts)
	if !found || frame.IsZero() {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no thumbnail near that time", nil)
		return
	}
	respondJPEG(w, frame.Image(), h.config.JPEGQuality)
}

// TogglePlay flips play/pause on every playback cell.
func (h *Handler) TogglePlay(w http.ResponseWriter, r *http.Request) {
	if err := h.grid.TogglePlay(); err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondSuccess(w, h.grid.Cells())
}

// SetSpeed sets the playback rate of every playback cell.
func (h *Handler) SetSpeed(w http.ResponseWriter, r *http.Request) {
	var req SpeedRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n := h.grid.SetSpeed(req.Speed)
	respondSuccess(w, map[string]interface{}{"speed": req.Speed, "cells": n})
}

func (h *Handler) respondCell(w http.ResponseWriter, r *http.Request, idx int) {
	c, err := h.grid.Cell(idx)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondSuccess(w, c.Snapshot())
}
