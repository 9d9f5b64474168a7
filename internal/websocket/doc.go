// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

/*
Package websocket pushes grid state changes to browser clients.

The Hub fans out typed messages to every connected Client. Each client runs
a readPump, which answers application-level pings, and a writePump, which
encodes queued messages with goccy/go-json and sends keepalive pings.

Message types:

  - cell_status: a cell's connection or playback status changed
  - cell_position: the selected cell's playback position moved
  - timeline_mode: the shared cursor switched between live and playback
  - ping/pong: client keepalive

Broadcasting never blocks the caller. A full hub queue drops the message,
and a client whose own queue is full is disconnected.

Example:

	hub := websocket.NewHub()
	go hub.RunWithContext(ctx)
	hub.BroadcastJSON(websocket.MessageTypeTimelineMode, map[string]string{"mode": "live"})
*/
package websocket
