// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/camgrid/internal/api"
	"github.com/tomtom215/camgrid/internal/config"
	"github.com/tomtom215/camgrid/internal/decoder"
	"github.com/tomtom215/camgrid/internal/directory"
	"github.com/tomtom215/camgrid/internal/grid"
	"github.com/tomtom215/camgrid/internal/logging"
	"github.com/tomtom215/camgrid/internal/stream"
	"github.com/tomtom215/camgrid/internal/supervisor"
	"github.com/tomtom215/camgrid/internal/supervisor/services"
	"github.com/tomtom215/camgrid/internal/timeline"
	ws "github.com/tomtom215/camgrid/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(cfg.Logging.Logger())

	logging.Info().
		Str("version", version).
		Str("decoder", cfg.Decoder.Backend).
		Int("max_streams", cfg.Pool.MaxStreams).
		Int("devices", len(cfg.Devices)).
		Int("cameras", len(cfg.Cameras)).
		Msg("Starting CamGrid with supervisor tree")

	dec := buildDecoder(cfg)

	dir, err := directory.NewMemory(cfg.Devices, cfg.Cameras)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build camera directory")
	}
	events := directory.NewStaticEvents(cfg.Events)
	for _, seg := range cfg.Segments {
		events.AddSegment(seg)
	}

	pool := stream.NewPool(dec, cfg.Pool.MaxStreams, cfg.Stream.Connection())
	cursor := timeline.NewCursor(cfg.Timeline.Cursor())
	wsHub := ws.NewHub()

	g := grid.New(pool, dec, dir, cursor, cfg.GridSettings(),
		grid.WithPublisher(wsHub),
		grid.WithEvents(events),
	)
	placeInitialCameras(g, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureDecay:     cfg.Supervisor.FailureDecay,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	handler := api.NewHandler(g, pool, dir, wsHub, api.HandlerConfig{
		Version:        version,
		AllowedOrigins: cfg.Server.CORSOrigins,
	})
	mwCfg := api.DefaultChiMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = cfg.Server.CORSOrigins
	mwCfg.RateLimitRequests = cfg.Server.RateLimitReqs
	mwCfg.RateLimitWindow = cfg.Server.RateLimitWindow
	mwCfg.RateLimitDisabled = cfg.Server.RateLimitDisabled
	router := api.NewRouter(handler, api.NewChiMiddleware(mwCfg))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree.AddMediaService(cursor)
	tree.AddMediaService(g)
	tree.AddMediaService(services.NewReleaseService("stream-release", g))
	tree.AddAPIService(services.NewWebSocketHubService(wsHub))
	tree.AddAPIService(services.NewHTTPServerService(server, addr, cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", addr).Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	// the release service normally did this already; StopAll is idempotent
	g.StopAll()
	logging.Info().Msg("Application stopped gracefully")
}

func buildDecoder(cfg *config.Config) decoder.Decoder {
	if cfg.Decoder.Backend == "fake" {
		logging.Warn().
			Int("width", cfg.Decoder.FakeWidth).
			Int("height", cfg.Decoder.FakeHeight).
			Float64("fps", cfg.Decoder.FakeFPS).
			Msg("Using synthetic decoder; no camera will be contacted")
		return decoder.NewFake(cfg.Decoder.FakeWidth, cfg.Decoder.FakeHeight, cfg.Decoder.FakeFPS)
	}
	return decoder.NewFFmpeg(cfg.Decoder.FFmpeg())
}

// placeInitialCameras fills cells with configured cameras in order until
// the grid is full.
func placeInitialCameras(g *grid.Grid, cfg *config.Config) {
	rows, cols := g.Layout()
	for i, cam := range cfg.Cameras {
		if i >= rows*cols {
			logging.Info().Int("placed", i).Int("configured", len(cfg.Cameras)).Msg("Grid full; remaining cameras available via API")
			return
		}
		if _, err := g.AddCamera(cam.ID, i); err != nil {
			logging.Warn().Err(err).Str("camera", cam.ID).Msg("Failed to place camera")
		}
	}
}
