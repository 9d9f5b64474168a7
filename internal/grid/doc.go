// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

// Package grid arranges cells in rows and columns, binds them to the shared
// timeline cursor and drives their display poll. Status, position and
// timeline mode changes are pushed to a Publisher, normally the WebSocket
// hub.
package grid
