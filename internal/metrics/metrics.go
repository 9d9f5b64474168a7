// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Stream pool
	StreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "camgrid_streams_active",
			Help: "Number of live stream connections held by the pool",
		},
	)

	StreamEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "camgrid_stream_evictions_total",
			Help: "Live streams stopped to make room for a new lease",
		},
	)

	StreamStateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camgrid_stream_state_transitions_total",
			Help: "Connection state transitions by target state",
		},
		[]string{"state"}, // connecting, connected, reconnecting, failed
	)

	StreamReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "camgrid_stream_reconnect_attempts_total",
			Help: "Failed live stream opens that scheduled a backoff",
		},
	)

	StreamFramesCaptured = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "camgrid_stream_frames_captured_total",
			Help: "Frames read from live pipelines",
		},
	)

	// Caches
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camgrid_cache_lookups_total",
			Help: "Frame and thumbnail cache lookups by result",
		},
		[]string{"cache", "result"}, // cache: frame|thumbnail, result: hit|miss
	)

	// Playback
	PlaybackSeeks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camgrid_playback_seeks_total",
			Help: "Seeks by the path that served the first picture",
		},
		[]string{"path"}, // cache, thumbnail, reopen
	)

	PlaybackOpens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camgrid_playback_opens_total",
			Help: "Recorded media pipeline opens by outcome",
		},
		[]string{"outcome"}, // success, failure
	)

	PlaybackOpenDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "camgrid_playback_open_duration_seconds",
			Help:    "Time to open a recorded media pipeline",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	PlaybackSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "camgrid_playback_sessions_active",
			Help: "Loaded playback sessions",
		},
	)

	ThumbnailsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camgrid_thumbnails_total",
			Help: "Thumbnail prefetch attempts by outcome",
		},
		[]string{"outcome"}, // generated, failed, skipped
	)

	// Cells
	CellModeTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camgrid_cell_mode_transitions_total",
			Help: "Grid cell mode switches by target mode",
		},
		[]string{"mode"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camgrid_api_requests_total",
			Help: "HTTP requests by method, route and status code",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "camgrid_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "camgrid_websocket_connections_active",
			Help: "Connected WebSocket clients",
		},
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camgrid_websocket_messages_sent_total",
			Help: "WebSocket messages broadcast by type",
		},
		[]string{"type"},
	)
)

// RecordStreamState counts a connection state transition.
func RecordStreamState(state string) {
	StreamStateTransitions.WithLabelValues(state).Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordSeek counts a seek by serving path.
func RecordSeek(path string) {
	PlaybackSeeks.WithLabelValues(path).Inc()
}

// RecordPlaybackOpen records a recorded media open attempt.
func RecordPlaybackOpen(duration time.Duration, err error) {
	PlaybackOpenDuration.Observe(duration.Seconds())
	if err != nil {
		PlaybackOpens.WithLabelValues("failure").Inc()
		return
	}
	PlaybackOpens.WithLabelValues("success").Inc()
}

// RecordThumbnail counts a prefetch outcome.
func RecordThumbnail(outcome string) {
	ThumbnailsGenerated.WithLabelValues(outcome).Inc()
}

// RecordCellMode counts a cell switching mode.
func RecordCellMode(mode string) {
	CellModeTransitions.WithLabelValues(mode).Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
