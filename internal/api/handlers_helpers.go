// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package api

import (
	"errors"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/camgrid/internal/cell"
	"github.com/tomtom215/camgrid/internal/grid"
	"github.com/tomtom215/camgrid/internal/logging"
	"github.com/tomtom215/camgrid/internal/middleware"
	"github.com/tomtom215/camgrid/internal/models"
	"github.com/tomtom215/camgrid/internal/validation"
)

// maxBodyBytes bounds request bodies; every request type is a few fields.
const maxBodyBytes = 64 << 10

// sanitizeLogValue escapes control characters so client input cannot
// forge log lines.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&result, "\\x%02x", r)
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// respondJSON writes an envelope. Engine state changes continuously, so
// responses are never cached.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondSuccess(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
}

// respondError sends an error envelope. err is logged, never returned to
// the client.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	respondErrorDetails(w, status, code, message, nil, err)
}

func respondErrorDetails(w http.ResponseWriter, status int, code, message string, details map[string]interface{}, err error) {
	if err != nil {
		logging.Error().Str("code", sanitizeLogValue(code)).Str("error", sanitizeLogValue(err.Error())).Msg("API Error")
	}

	respondJSON(w, status, &models.APIResponse{
		Status: "error",
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// respondEngineError maps engine errors to HTTP statuses.
func respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		respondErrorDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(), verr.Details(), nil)
	case errors.Is(err, models.ErrCellIndex),
		errors.Is(err, models.ErrCameraNotFound),
		errors.Is(err, models.ErrDeviceNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, grid.ErrInvalidLayout):
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, grid.ErrLive),
		errors.Is(err, cell.ErrNotPlayback),
		errors.Is(err, models.ErrNotLoaded):
		respondError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	default:
		middleware.Log(r.Context()).Error().Err(err).Str("path", sanitizeLogValue(r.URL.Path)).Msg("Request failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
	}
}

// decodeJSON reads a bounded JSON body into dst and validates it. It
// writes the error response itself and reports whether the caller may
// continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be valid JSON", nil)
		return false
	}
	if err := validation.ValidateStruct(dst); err != nil {
		respondEngineError(w, r, err)
		return false
	}
	return true
}

// cellIndex reads the {index} route parameter. The route pattern only
// admits digits, so the only failure left is overflow.
func cellIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "index must be a cell number", nil)
		return 0, false
	}
	return idx, true
}

// respondJPEG encodes img with imaging.
func respondJPEG(w http.ResponseWriter, img image.Image, quality int) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		logging.Error().Err(err).Msg("Failed to encode JPEG response")
	}
}
