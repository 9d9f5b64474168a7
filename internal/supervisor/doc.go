// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

/*
Package supervisor runs CamGrid's long-lived services under suture v4.

The tree has two layers so a failure in one does not restart the other:

	RootSupervisor ("camgrid")
	├── MediaSupervisor ("media-layer")
	│   ├── timeline-cursor   (live/playback ticker)
	│   ├── grid-display      (frame poller)
	│   └── stream-release    (stops every stream on shutdown)
	└── APISupervisor ("api-layer")
	    ├── http-server
	    └── websocket-hub

Crashed services restart with suture's failure threshold and backoff.
Supervisor events go to slog through sutureslog.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.TreeConfig{})
	if err != nil {
		return err
	}
	tree.AddMediaService(cursor)
	tree.AddAPIService(services.NewHTTPServerService(srv, addr, 0))
	return tree.Serve(ctx)

Service adapters for the HTTP server, the WebSocket hub and shutdown
release live in the services subpackage.
*/
package supervisor
