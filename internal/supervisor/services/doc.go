// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

/*
Package services provides suture.Service wrappers for CamGrid components
that do not already have a context-aware Serve method.

# Available Services

HTTP Server (HTTPServerService):
  - Turns ListenAndServe into Serve
  - Drains in-flight requests on shutdown, bounded by a timeout

WebSocket Hub (WebSocketHubService):
  - Runs websocket.Hub.RunWithContext; the hub closes its clients on exit

Media Release (ReleaseService):
  - Calls StopAll on the grid when the tree shuts down, releasing every
    cell, playback session and pooled stream

The timeline cursor and the grid display poller implement suture.Service
themselves and are added to the tree directly.

# Usage

	tree.AddAPIService(services.NewHTTPServerService(srv, srv.Addr, 10*time.Second))
	tree.AddAPIService(services.NewWebSocketHubService(hub))
	tree.AddMediaService(services.NewReleaseService("grid-release", g))
*/
package services
