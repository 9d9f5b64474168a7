// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

/*
Package models defines the data shared across CamGrid's packages.

Media:
  - Frame: one decoded RGBA picture with its media timestamp
  - SourceDescriptor: identity, URI and quality of a live stream
  - Device, Camera: recorder and channel configuration
  - Window, Event: timeline range and recorded motion segments

State:
  - Status: what a cell shows (connecting, playing, no_recording, ...)
  - CellMode: empty, live or playback
  - SessionState, StreamInfo: playback and connection snapshots

API:
  - APIResponse envelope with APIError
  - CellSnapshot, TimelineSnapshot, LayoutSnapshot, HealthStatus
  - CellStatusEvent, CellPositionEvent, TimelineModeEvent for the
    WebSocket feed

Sentinel errors (ErrNotLoaded, ErrCameraNotFound, ErrCellIndex, ...) live
in errors.go and are matched with errors.Is.

Stream identities leave passwords out and RedactURI strips credentials
from URIs, so both are safe to log.
*/
package models
