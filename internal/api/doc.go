// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

/*
Package api is CamGrid's HTTP control surface, built on chi.

Routes:

	GET    /api/v1/health
	GET    /api/v1/cameras
	GET    /api/v1/streams
	GET    /api/v1/streams/{identity}
	GET    /api/v1/grid
	PUT    /api/v1/grid/layout
	GET    /api/v1/cells
	GET    /api/v1/cells/{index}
	PUT    /api/v1/cells/{index}            assign a camera
	DELETE /api/v1/cells/{index}
	POST   /api/v1/cells/{index}/select
	POST   /api/v1/cells/{index}/swap
	GET    /api/v1/cells/{index}/snapshot.jpg
	GET    /api/v1/cells/{index}/thumbnail.jpg?ts=RFC3339
	GET    /api/v1/timeline
	POST   /api/v1/timeline/seek|live|skip|zoom|day
	POST   /api/v1/playback/toggle
	POST   /api/v1/playback/speed
	GET    /api/v1/ws
	GET    /metrics

JSON responses use the models.APIResponse envelope, encoded with
goccy/go-json. Request bodies are validated with go-playground/validator
and rejected with VALIDATION_ERROR and per-field details. Engine errors map
to NOT_FOUND (unknown cell or camera) and CONFLICT (transport controls
while live).

Middleware: request IDs with a request-scoped zerolog logger, go-chi/cors,
go-chi/httprate per client IP, Prometheus request metrics and chi's
Recoverer and Compress.
*/
package api
