// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

// Package timeline holds the shared cursor that drives every grid cell.
package timeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/camgrid/internal/cell"
	"github.com/tomtom215/camgrid/internal/logging"
	"github.com/tomtom215/camgrid/internal/models"
)

// Target receives cursor updates. A zero position means live.
type Target interface {
	SetTimelinePosition(position time.Time, window models.Window)
}

// ModeListener is told when the cursor moves between live and playback.
type ModeListener func(mode models.CellMode)

// Config holds cursor tuning.
type Config struct {
	LiveThreshold time.Duration
	TickInterval  time.Duration
	MinWindow     time.Duration
	MaxWindow     time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		LiveThreshold: 5 * time.Second,
		TickInterval:  time.Second,
		MinWindow:     time.Minute,
		MaxWindow:     7 * 24 * time.Hour,
	}
}

// Option customizes a Cursor.
type Option func(*Cursor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cursor) {
		if now != nil {
			c.now = now
		}
	}
}

// Cursor is the shared (window, position, live threshold) triple. Every
// mutation notifies all bound targets synchronously, in bind order.
type Cursor struct {
	cfg Config
	now func() time.Time
	log zerolog.Logger

	mu        sync.Mutex
	window    models.Window
	position  time.Time
	live      bool
	lastMode  models.CellMode
	targets   []Target
	listeners []ModeListener

	// notifyMu keeps notifications in mutation order without holding mu
	// while targets run.
	notifyMu sync.Mutex
}

// NewCursor creates a live cursor over today.
func NewCursor(cfg Config, opts ...Option) *Cursor {
	def := DefaultConfig()
	if cfg.LiveThreshold <= 0 {
		cfg.LiveThreshold = def.LiveThreshold
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.MinWindow <= 0 {
		cfg.MinWindow = def.MinWindow
	}
	if cfg.MaxWindow <= 0 {
		cfg.MaxWindow = def.MaxWindow
	}

	c := &Cursor{
		cfg: cfg,
		now: time.Now,
		log: logging.Component("timeline"),
	}
	for _, opt := range opts {
		opt(c)
	}

	now := c.now()
	c.window = models.Window{Start: midnight(now), End: now}
	c.position = now
	c.live = true
	c.lastMode = models.ModeLive
	return c
}

// Bind adds a target and immediately sends it the current state.
func (c *Cursor) Bind(t Target) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.targets = append(c.targets, t)
	pos, window := c.targetStateLocked()
	c.mu.Unlock()

	t.SetTimelinePosition(pos, window)
}

// Unbind removes a target. Unknown targets are ignored.
func (c *Cursor) Unbind(t Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, bound := range c.targets {
		if bound == t {
			c.targets = append(c.targets[:i], c.targets[i+1:]...)
			return
		}
	}
}

// OnModeChange registers a listener for live/playback transitions.
func (c *Cursor) OnModeChange(l ModeListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Seek jumps to t, clamped into the window. Landing within the live
// threshold of now goes live.
func (c *Cursor) Seek(t time.Time) {
	c.mutate(func(now time.Time) {
		t = c.window.Clamp(t)
		if now.Sub(t) <= c.cfg.LiveThreshold {
			c.goLiveLocked(now)
			return
		}
		c.live = false
		c.position = t
	})
}

// SeekRelative skips by d from the current position, clamped into the
// window.
func (c *Cursor) SeekRelative(d time.Duration) {
	c.mu.Lock()
	target := c.position.Add(d)
	c.mu.Unlock()
	c.Seek(target)
}

// GoLive pins the position to now until the next scrub.
func (c *Cursor) GoLive() {
	c.mutate(c.goLiveLocked)
}

// Zoom scales the window around the position by factor (<1 zooms in).
// The window never extends past now.
func (c *Cursor) Zoom(factor float64) {
	if factor <= 0 {
		return
	}
	c.mutate(func(now time.Time) {
		span := time.Duration(float64(c.window.Duration()) * factor)
		if span < c.cfg.MinWindow {
			span = c.cfg.MinWindow
		}
		if span > c.cfg.MaxWindow {
			span = c.cfg.MaxWindow
		}

		start := c.position.Add(-span / 2)
		end := start.Add(span)
		if end.After(now) {
			end = now
			start = end.Add(-span)
		}
		c.window = models.Window{Start: start, End: end}
		if !c.live {
			c.position = c.window.Clamp(c.position)
		}
	})
}

// SetWindow replaces the window and clamps the position into it.
func (c *Cursor) SetWindow(w models.Window) {
	if !w.End.After(w.Start) {
		return
	}
	c.mutate(func(now time.Time) {
		c.window = w
		if c.live && w.End.Before(now.Add(-c.cfg.LiveThreshold)) {
			c.live = false
		}
		if !c.live {
			c.position = w.Clamp(c.position)
		}
	})
}

// SelectDay shows one calendar day in the clock's location. Today goes
// live over [midnight, now]; past days start paused at midnight.
func (c *Cursor) SelectDay(day time.Time) {
	c.mutate(func(now time.Time) {
		start := midnight(day.In(now.Location()))
		if start.Equal(midnight(now)) {
			c.window = models.Window{Start: start, End: now}
			c.goLiveLocked(now)
			return
		}
		c.window = models.Window{Start: start, End: start.Add(24*time.Hour - time.Second)}
		c.live = false
		c.position = start
	})
}

// Advance records where playback has got to without notifying targets, so
// the cursor follows the selected cell's session.
func (c *Cursor) Advance(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live {
		return
	}
	c.position = c.window.Clamp(t)
}

// Tick re-checks liveness against the wall clock. While live the position
// and window end follow now; otherwise targets are only notified when the
// position has aged past the live threshold.
func (c *Cursor) Tick() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	now := c.now()
	c.mu.Lock()
	notify := false
	if c.live {
		c.position = now
		if c.window.End.Before(now) {
			c.window.End = now
		}
		notify = true
	} else if cell.DecideMode(c.position, now, c.cfg.LiveThreshold) == models.ModeLive {
		// playback caught up with now
		c.goLiveLocked(now)
		notify = true
	} else if c.lastMode != models.ModePlayback {
		notify = true
	}
	c.mu.Unlock()

	if notify {
		c.publish(now)
	}
}

// Serve runs Tick every TickInterval until ctx is done. It implements
// suture.Service.
func (c *Cursor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	c.log.Debug().Dur("interval", c.cfg.TickInterval).Msg("Timeline ticker started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Tick()
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (c *Cursor) String() string {
	return "timeline-cursor"
}

// Position returns the cursor position.
func (c *Cursor) Position() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// Window returns the cursor window.
func (c *Cursor) Window() models.Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window
}

// IsLive reports whether the position is pinned to now.
func (c *Cursor) IsLive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// Now returns the cursor clock's current time.
func (c *Cursor) Now() time.Time { return c.now() }

// LiveThreshold returns the configured threshold.
func (c *Cursor) LiveThreshold() time.Duration { return c.cfg.LiveThreshold }

// Snapshot returns the API view of the cursor.
func (c *Cursor) Snapshot() models.TimelineSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.TimelineSnapshot{
		Window:    c.window,
		Position:  c.position,
		Live:      c.live,
		Threshold: c.cfg.LiveThreshold.String(),
	}
}

func (c *Cursor) mutate(fn func(now time.Time)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	now := c.now()
	c.mu.Lock()
	fn(now)
	c.mu.Unlock()

	c.publish(now)
}

func (c *Cursor) goLiveLocked(now time.Time) {
	c.live = true
	c.position = now
	if c.window.End.Before(now) {
		c.window.End = now
	}
}

// targetStateLocked returns what targets are sent: zero while live.
func (c *Cursor) targetStateLocked() (time.Time, models.Window) {
	if c.live {
		return time.Time{}, c.window
	}
	return c.position, c.window
}

// publish sends the current state to every target and fires mode
// listeners on a transition. Caller holds notifyMu.
func (c *Cursor) publish(now time.Time) {
	c.mu.Lock()
	pos, window := c.targetStateLocked()
	mode := cell.DecideMode(pos, now, c.cfg.LiveThreshold)
	changed := mode != c.lastMode
	c.lastMode = mode
	targets := append([]Target(nil), c.targets...)
	listeners := append([]ModeListener(nil), c.listeners...)
	c.mu.Unlock()

	for _, t := range targets {
		t.SetTimelinePosition(pos, window)
	}
	if changed {
		c.log.Info().Str("mode", string(mode)).Msg("Timeline mode changed")
		for _, l := range listeners {
			notifyMode(l, mode)
		}
	}
}

func notifyMode(l ModeListener, mode models.CellMode) {
	defer logging.Recover("timeline", "on_mode_change")
	l(mode)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
