// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package playback

import (
	"time"

	"github.com/tomtom215/camgrid/internal/models"
)

// Observer receives everything a session wants to show.
//
// OnPlaybackFrame may be called from the goroutine that called Seek (cache
// and thumbnail hits) or from the transport goroutine. Implementations must
// not block and must not call back into the session synchronously.
type Observer interface {
	OnPlaybackFrame(frame models.Frame, ts time.Time)
	OnPlaybackStatus(status models.Status, detail string)
	OnPlaybackPosition(ts time.Time)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Frame    func(frame models.Frame, ts time.Time)
	Status   func(status models.Status, detail string)
	Position func(ts time.Time)
}

func (o ObserverFuncs) OnPlaybackFrame(frame models.Frame, ts time.Time) {
	if o.Frame != nil {
		o.Frame(frame, ts)
	}
}

func (o ObserverFuncs) OnPlaybackStatus(status models.Status, detail string) {
	if o.Status != nil {
		o.Status(status, detail)
	}
}

func (o ObserverFuncs) OnPlaybackPosition(ts time.Time) {
	if o.Position != nil {
		o.Position(ts)
	}
}
