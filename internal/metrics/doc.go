// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

/*
Package metrics exposes Prometheus instrumentation for the media engine.

Metrics are registered with the default registry through promauto and
served by the API at /metrics.

# Metric Families

Stream pool:
  - camgrid_streams_active (gauge)
  - camgrid_stream_evictions_total
  - camgrid_stream_state_transitions_total{state}
  - camgrid_stream_reconnect_attempts_total
  - camgrid_stream_frames_captured_total

Playback:
  - camgrid_cache_lookups_total{cache,result}
  - camgrid_playback_seeks_total{path}
  - camgrid_playback_opens_total{outcome}
  - camgrid_playback_open_duration_seconds
  - camgrid_playback_sessions_active
  - camgrid_thumbnails_total{outcome}

Grid and API:
  - camgrid_cell_mode_transitions_total{mode}
  - camgrid_api_requests_total{method,endpoint,status_code}
  - camgrid_api_request_duration_seconds{method,endpoint}
  - camgrid_websocket_connections_active
  - camgrid_websocket_messages_sent_total{type}

# Example Queries

Reconnect rate per minute:

	rate(camgrid_stream_reconnect_attempts_total[1m]) * 60

Share of seeks that needed a pipeline reopen:

	sum(rate(camgrid_playback_seeks_total{path="reopen"}[5m]))
	  / sum(rate(camgrid_playback_seeks_total[5m]))
*/
package metrics
