// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package models

import (
	"sort"
	"time"
)

// Window is a closed time range [Start, End].
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsZero reports whether the window has not been set.
func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Duration returns End - Start, never negative.
func (w Window) Duration() time.Duration {
	if w.End.Before(w.Start) {
		return 0
	}
	return w.End.Sub(w.Start)
}

// Clamp limits t to the window.
func (w Window) Clamp(t time.Time) time.Time {
	if t.Before(w.Start) {
		return w.Start
	}
	if t.After(w.End) {
		return w.End
	}
	return t
}

// Contains reports whether t lies inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// LastDay returns the window [now-24h, now].
func LastDay(now time.Time) Window {
	return Window{Start: now.Add(-24 * time.Hour), End: now}
}

// Event is a recorded motion or alarm segment on a camera.
type Event struct {
	CameraID string    `json:"camera_id" koanf:"camera_id" validate:"required"`
	Start    time.Time `json:"start" koanf:"start" validate:"required"`
	End      time.Time `json:"end" koanf:"end" validate:"required,gtfield=Start"`
	Kind     string    `json:"kind,omitempty" koanf:"kind"`
}

// Segment is a stretch of continuous recording on a camera.
type Segment struct {
	CameraID string    `json:"camera_id" koanf:"camera_id" validate:"required"`
	Start    time.Time `json:"start" koanf:"start" validate:"required"`
	End      time.Time `json:"end" koanf:"end" validate:"required,gtfield=Start"`
}

// Window returns the segment's time range.
func (s Segment) Window() Window { return Window{Start: s.Start, End: s.End} }

// SortEvents orders events by start time, in place.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
}
