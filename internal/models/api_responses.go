// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package models

import (
	"time"
)

// APIResponse is the envelope for every HTTP response.
//
// Status field values:
//   - "success": request completed, see Data
//   - "error": request failed, see Error
//
// Example successful response:
//
//	{
//	  "status": "success",
//	  "data": {"active": 3, "streams": [...]},
//	  "metadata": {"timestamp": "2026-10-19T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response bookkeeping.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// APIError describes a failed request.
//
// Common codes:
//   - VALIDATION_ERROR: request body or parameter rejected
//   - NOT_FOUND: unknown stream, cell or camera
//   - CONFLICT: operation not valid in the current mode
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// CellSnapshot is the API view of a grid cell.
type CellSnapshot struct {
	Index    int        `json:"index"`
	CameraID string     `json:"camera_id,omitempty"`
	Mode     CellMode   `json:"mode"`
	Status   Status     `json:"status"`
	Position *time.Time `json:"position,omitempty"`
	Selected bool       `json:"selected"`
	Lease    string     `json:"lease,omitempty"`
	Session  string     `json:"session_id,omitempty"`
	Speed    float64    `json:"speed,omitempty"`
	Playing  bool       `json:"playing"`
}

// TimelineSnapshot is the API view of the shared cursor.
type TimelineSnapshot struct {
	Window    Window    `json:"window"`
	Position  time.Time `json:"position"`
	Live      bool      `json:"live"`
	Threshold string    `json:"live_threshold"`
}

// CellStatusEvent is pushed when a cell's status changes.
type CellStatusEvent struct {
	Index  int    `json:"index"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// CellPositionEvent is pushed as a playback cell advances.
type CellPositionEvent struct {
	Index    int       `json:"index"`
	Position time.Time `json:"position"`
}

// TimelineModeEvent is pushed when the shared cursor switches mode.
type TimelineModeEvent struct {
	Mode     CellMode  `json:"mode"`
	Position time.Time `json:"position"`
}

// LayoutSnapshot is the API view of the grid.
type LayoutSnapshot struct {
	Rows     int            `json:"rows"`
	Cols     int            `json:"cols"`
	Selected int            `json:"selected"`
	Cameras  int            `json:"cameras"`
	Cells    []CellSnapshot `json:"cells"`
}

// HealthStatus is returned by the health endpoint.
type HealthStatus struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	Uptime        float64   `json:"uptime_seconds"`
	ActiveStreams int       `json:"active_streams"`
	MaxStreams    int       `json:"max_streams"`
	Cameras       int       `json:"cameras"`
	TimelineLive  bool      `json:"timeline_live"`
	WSClients     int       `json:"websocket_clients"`
	CheckedAt     time.Time `json:"checked_at"`
}
