// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

/*
Package middleware provides the HTTP middleware CamGrid's API router
composes with chi's own:

  - RequestID: X-Request-ID propagation and a request-scoped zerolog logger
  - PrometheusMetrics: request count and latency labelled by route pattern

Both take and return http.Handler so they plug straight into chi's r.Use:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)
		r.Get("/cells", h.Cells)
	})

The metrics writer implements http.Hijacker, so the WebSocket endpoint
can sit behind it.
*/
package middleware
