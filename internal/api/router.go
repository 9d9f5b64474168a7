// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/camgrid/internal/middleware"
)

// Router wires handlers and middleware into a chi mux.
type Router struct {
	handler *Handler
	mw      *ChiMiddleware
}

// NewRouter creates a router.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, mw: mw}
}

// Setup returns the root http.Handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.mw.CORS())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.mw.RateLimitHealth())
		r.Get("/", router.handler.Health)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.mw.RateLimit())
		r.Use(middleware.PrometheusMetrics)

		r.Get("/ws", router.handler.WebSocket)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Compress(5, "application/json"))

			r.Get("/cameras", router.handler.Cameras)

			r.Get("/streams", router.handler.Streams)
			// identities contain slashes
			r.Get("/streams/*", router.handler.Stream)

			r.Get("/grid", router.handler.Grid)
			r.Put("/grid/layout", router.handler.SetLayout)

			r.Get("/cells", router.handler.Cells)
			r.Route("/cells/{index:[0-9]+}", func(r chi.Router) {
				r.Get("/", router.handler.Cell)
				r.Put("/", router.handler.AssignCamera)
				r.Delete("/", router.handler.ClearCell)
				r.Post("/select", router.handler.SelectCell)
				r.Post("/swap", router.handler.SwapCells)
				r.Get("/snapshot.jpg", router.handler.CellSnapshotImage)
				r.Get("/thumbnail.jpg", router.handler.CellThumbnail)
			})

			r.Get("/timeline", router.handler.Timeline)
			r.Post("/timeline/seek", router.handler.TimelineSeek)
			r.Post("/timeline/live", router.handler.TimelineLive)
			r.Post("/timeline/skip", router.handler.TimelineSkip)
			r.Post("/timeline/zoom", router.handler.TimelineZoom)
			r.Post("/timeline/day", router.handler.TimelineDay)

			r.Post("/playback/toggle", router.handler.TogglePlay)
			r.Post("/playback/speed", router.handler.SetSpeed)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
