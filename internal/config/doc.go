// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

/*
Package config loads CamGrid configuration with Koanf v2.

# Configuration Sources

Sources are layered, later ones winning:
  - Built-in defaults (defaultConfig)
  - An optional YAML file: CONFIG_PATH, else config.yaml, config.yml,
    /etc/camgrid/config.yaml, /etc/camgrid/config.yml
  - Mapped environment variables

Devices, cameras and event markers are only read from the YAML file:

	devices:
	  - id: nvr1
	    host: 10.0.0.5
	    rtsp_port: 554
	    username: admin
	    password: secret
	cameras:
	  - id: front
	    device_id: nvr1
	    channel: 1
	grid:
	  rows: 3
	  cols: 3

# Environment Variables

Logging:
  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER

Streams and pool:
  - MAX_STREAMS: live pipelines kept open (default: 16)
  - STREAM_OPEN_TIMEOUT, STREAM_READ_TIMEOUT
  - STREAM_BASE_DELAY, STREAM_MAX_DELAY: reconnect backoff (1s, 30s)
  - STREAM_MAX_RECONNECT_ATTEMPTS, STREAM_FAILED_COOLDOWN

Playback:
  - PLAYBACK_FRAME_CACHE_SIZE (300), PLAYBACK_THUMBNAIL_CACHE_SIZE (500)
  - PREFETCH_MIN_STEP, PREFETCH_RATE, THUMBNAIL_SLOTS

Timeline and grid:
  - LIVE_THRESHOLD (5s), TIMELINE_TICK_INTERVAL
  - GRID_ROWS, GRID_COLS, GRID_POLL_INTERVAL

Decoder:
  - DECODER_BACKEND: ffmpeg or fake
  - FFMPEG_PATH, FFPROBE_PATH, RTSP_TRANSPORT

Server:
  - HTTP_HOST, HTTP_PORT (8095), HTTP_READ_TIMEOUT, HTTP_WRITE_TIMEOUT
  - SHUTDOWN_TIMEOUT, CORS_ORIGINS (comma-separated)
  - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW, DISABLE_RATE_LIMIT

# Validation

Field rules are go-playground/validator tags checked through
internal/validation. Validate then checks cross-section rules: unique ids,
cameras referring to known devices, a grid no larger than the pool, and
ffmpeg binaries on PATH when the ffmpeg backend is selected.
*/
package config
