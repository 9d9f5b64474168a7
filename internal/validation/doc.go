// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

// Package validation wraps go-playground/validator with a shared instance,
// a "mediauri" rule for decoder URIs and readable error messages.
//
// It validates source descriptors before the stream pool opens anything,
// the device and camera lists loaded from configuration and API request
// bodies:
//
//	type assignRequest struct {
//	    CameraID string `json:"camera_id" validate:"required"`
//	}
//
//	if err := validation.ValidateStruct(&req); err != nil {
//	    var verr *validation.Error
//	    errors.As(err, &verr)
//	    respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), verr.Details())
//	}
package validation
