// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package stream

import "github.com/tomtom215/camgrid/internal/models"

// Listener receives frames and status changes from a live connection.
//
// Callbacks run on the connection's capture goroutine and must return
// quickly. Frames are shared between listeners and must not be modified.
type Listener interface {
	OnStreamFrame(identity string, frame models.Frame)
	OnStreamStatus(identity string, status models.Status)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Frame  func(identity string, frame models.Frame)
	Status func(identity string, status models.Status)
}

func (l ListenerFuncs) OnStreamFrame(identity string, frame models.Frame) {
	if l.Frame != nil {
		l.Frame(identity, frame)
	}
}

func (l ListenerFuncs) OnStreamStatus(identity string, status models.Status) {
	if l.Status != nil {
		l.Status(identity, status)
	}
}
