// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package services

import (
	"context"

	"github.com/tomtom215/camgrid/internal/logging"
)

// Stopper releases everything it holds. *grid.Grid implements it.
type Stopper interface {
	StopAll()
}

// ReleaseService holds no work of its own: when its context ends it calls
// StopAll, so every cell and pooled stream is released while the tree
// shuts down.
type ReleaseService struct {
	target Stopper
	name   string
}

// NewReleaseService creates a service that stops target on shutdown.
func NewReleaseService(name string, target Stopper) *ReleaseService {
	return &ReleaseService{target: target, name: name}
}

// Serve implements suture.Service.
func (r *ReleaseService) Serve(ctx context.Context) error {
	<-ctx.Done()
	defer logging.Recover(r.name, "stop_all")
	r.target.StopAll()
	logging.Info().Str("service", r.name).Msg("Media resources released")
	return ctx.Err()
}

func (r *ReleaseService) String() string {
	return r.name
}
