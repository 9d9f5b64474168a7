// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

/*
Command server runs the CamGrid engine: a grid of camera cells that show
live RTSP streams or recorded footage, all scrubbed together by one shared
timeline.

# Application Architecture

	RootSupervisor ("camgrid")
	├── MediaSupervisor ("media-layer")
	│   ├── timeline-cursor   (live/playback ticker)
	│   ├── grid-display      (frame poller)
	│   └── stream-release    (stops every stream on shutdown)
	└── APISupervisor ("api-layer")
	    ├── websocket-hub
	    └── http-server

Startup order:

 1. Configuration: koanf layers defaults, config.yaml and environment
 2. Logging: zerolog, with an slog bridge for suture
 3. Decoder: ffmpeg subprocesses, or a synthetic feed with DECODER_BACKEND=fake
 4. Directory: devices, cameras and recorded events from config
 5. Engine: stream pool, timeline cursor, grid (initial cameras placed in order)
 6. HTTP: chi router with the REST API, WebSocket feed and /metrics

# Configuration

	CONFIG_PATH=/etc/camgrid/config.yaml
	MAX_STREAMS=16
	GRID_ROWS=2 GRID_COLS=2
	HTTP_PORT=8095
	LOG_LEVEL=debug LOG_FORMAT=console

# Signal Handling

SIGINT and SIGTERM cancel the tree. The HTTP server drains, the hub closes
client connections and every cell and pooled stream is stopped before exit.

# Example Usage

Demo feed without cameras:

	DECODER_BACKEND=fake ./camgrid

With a recorder:

	cat > config.yaml <<YAML
	devices:
	  - id: nvr1
	    host: 192.168.1.20
	    username: viewer
	    password: secret
	cameras:
	  - {id: front, device_id: nvr1, channel: 1}
	  - {id: drive, device_id: nvr1, channel: 2}
	YAML
	./camgrid
*/
package main
