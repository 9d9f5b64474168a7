// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package timeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/camgrid/internal/models"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type call struct {
	position time.Time
	window   models.Window
}

type target struct {
	mu    sync.Mutex
	calls []call
}

func (t *target) SetTimelinePosition(position time.Time, window models.Window) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, call{position, window})
}

func (t *target) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func (t *target) last() call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[len(t.calls)-1]
}

var noon = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCursor() (*Cursor, *clock, *target) {
	clk := &clock{now: noon}
	c := NewCursor(Config{}, WithClock(clk.Now))
	tg := &target{}
	c.Bind(tg)
	return c, clk, tg
}

func TestCursor_StartsLiveOverToday(t *testing.T) {
	c, _, tg := newTestCursor()

	if !c.IsLive() {
		t.Error("IsLive() = false, want true")
	}
	w := c.Window()
	if !w.Start.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) || !w.End.Equal(noon) {
		t.Errorf("Window() = %+v, want [midnight, now]", w)
	}
	if tg.count() != 1 {
		t.Fatalf("Bind sent %d updates, want 1", tg.count())
	}
	if got := tg.last(); !got.position.IsZero() {
		t.Errorf("bound target got position %v, want zero (live)", got.position)
	}
}

func TestCursor_Seek(t *testing.T) {
	dayStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		target   time.Time
		wantPos  time.Time
		wantLive bool
	}{
		{"into the past", noon.Add(-2 * time.Hour), noon.Add(-2 * time.Hour), false},
		{"before window start clamps", dayStart.Add(-time.Hour), dayStart, false},
		{"within threshold goes live", noon.Add(-3 * time.Second), noon, true},
		{"future clamps to now and goes live", noon.Add(time.Hour), noon, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, tg := newTestCursor()
			c.Seek(tt.target)

			if c.IsLive() != tt.wantLive {
				t.Errorf("IsLive() = %v, want %v", c.IsLive(), tt.wantLive)
			}
			if !c.Position().Equal(tt.wantPos) {
				t.Errorf("Position() = %v, want %v", c.Position(), tt.wantPos)
			}
			got := tg.last()
			if tt.wantLive && !got.position.IsZero() {
				t.Errorf("target position = %v, want zero", got.position)
			}
			if !tt.wantLive && !got.position.Equal(tt.wantPos) {
				t.Errorf("target position = %v, want %v", got.position, tt.wantPos)
			}
		})
	}
}

func TestCursor_ModeListener(t *testing.T) {
	c, _, _ := newTestCursor()

	var modes []models.CellMode
	c.OnModeChange(func(m models.CellMode) { modes = append(modes, m) })
	c.OnModeChange(func(models.CellMode) { panic("listener bug") })

	c.Seek(noon.Add(-time.Hour))
	c.SeekRelative(-time.Minute)
	c.GoLive()

	want := []models.CellMode{models.ModePlayback, models.ModeLive}
	if len(modes) != len(want) {
		t.Fatalf("mode notifications = %v, want %v", modes, want)
	}
	for i := range want {
		if modes[i] != want[i] {
			t.Errorf("modes[%d] = %v, want %v", i, modes[i], want[i])
		}
	}
}

func TestCursor_SeekRelativeClamps(t *testing.T) {
	c, _, _ := newTestCursor()

	c.SeekRelative(-time.Hour)
	if want := noon.Add(-time.Hour); !c.Position().Equal(want) {
		t.Errorf("Position() = %v, want %v", c.Position(), want)
	}

	c.SeekRelative(-48 * time.Hour)
	if want := c.Window().Start; !c.Position().Equal(want) {
		t.Errorf("Position() = %v, want window start %v", c.Position(), want)
	}

	c.SeekRelative(48 * time.Hour)
	if !c.IsLive() {
		t.Error("skipping past now should go live")
	}
}

func TestCursor_TickWhileLive(t *testing.T) {
	c, clk, tg := newTestCursor()
	before := tg.count()

	clk.Add(time.Second)
	c.Tick()
	clk.Add(time.Second)
	c.Tick()

	if got := tg.count() - before; got != 2 {
		t.Errorf("ticks notified %d times, want 2", got)
	}
	if !c.Position().Equal(noon.Add(2 * time.Second)) {
		t.Errorf("Position() = %v, want pinned to now", c.Position())
	}
	if !c.Window().End.Equal(noon.Add(2 * time.Second)) {
		t.Errorf("Window().End = %v, want now", c.Window().End)
	}
}

func TestCursor_TickInPlaybackIsQuiet(t *testing.T) {
	c, clk, tg := newTestCursor()
	c.Seek(noon.Add(-time.Hour))
	before := tg.count()

	for i := 0; i < 3; i++ {
		clk.Add(time.Second)
		c.Tick()
	}
	if got := tg.count() - before; got != 0 {
		t.Errorf("ticks in playback notified %d times, want 0", got)
	}

	// playback catching up with now goes live
	c.Advance(clk.Now().Add(-2 * time.Second))
	c.Tick()
	if !c.IsLive() {
		t.Error("IsLive() = false after playback reached now")
	}
	if got := tg.last(); !got.position.IsZero() {
		t.Errorf("target position = %v, want zero", got.position)
	}
}

func TestCursor_AdvanceIgnoredWhileLive(t *testing.T) {
	c, _, tg := newTestCursor()
	before := tg.count()
	c.Advance(noon.Add(-time.Hour))
	if !c.Position().Equal(noon) || tg.count() != before {
		t.Error("Advance moved a live cursor or notified targets")
	}
}

func TestCursor_SelectDay(t *testing.T) {
	c, _, tg := newTestCursor()

	c.SelectDay(time.Date(2026, 2, 27, 15, 30, 0, 0, time.UTC))
	start := time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)
	w := c.Window()
	if !w.Start.Equal(start) || !w.End.Equal(start.Add(24*time.Hour-time.Second)) {
		t.Errorf("Window() = %+v", w)
	}
	if c.IsLive() || !c.Position().Equal(start) {
		t.Errorf("past day: live=%v position=%v", c.IsLive(), c.Position())
	}
	if got := tg.last(); !got.window.Start.Equal(start) {
		t.Errorf("target window = %+v", got.window)
	}

	c.SelectDay(noon.Add(-time.Hour))
	if !c.IsLive() {
		t.Error("selecting today should go live")
	}
	if w := c.Window(); !w.End.Equal(noon) {
		t.Errorf("today window end = %v, want now", w.End)
	}
}

func TestCursor_Zoom(t *testing.T) {
	c, _, _ := newTestCursor()
	c.Seek(noon.Add(-6 * time.Hour))

	c.Zoom(0.5)
	w := c.Window()
	if w.Duration() != 6*time.Hour {
		t.Errorf("Duration() = %v, want 6h", w.Duration())
	}
	if !w.Contains(noon.Add(-6 * time.Hour)) {
		t.Errorf("zoomed window %+v lost the position", w)
	}

	c.Zoom(0.0001)
	if got := c.Window().Duration(); got != time.Minute {
		t.Errorf("Duration() = %v, want clamped to 1m", got)
	}

	c.Zoom(1e6)
	w = c.Window()
	if w.Duration() != 7*24*time.Hour || w.End.After(noon) {
		t.Errorf("Window() = %+v, want 7d ending no later than now", w)
	}
}

func TestCursor_Unbind(t *testing.T) {
	c, _, tg := newTestCursor()
	other := &target{}
	c.Bind(other)

	c.Unbind(tg)
	before := tg.count()
	c.Seek(noon.Add(-time.Hour))

	if tg.count() != before {
		t.Error("unbound target still notified")
	}
	if other.count() != 2 {
		t.Errorf("other target got %d updates, want 2", other.count())
	}
}

func TestCursor_Serve(t *testing.T) {
	c := NewCursor(Config{TickInterval: 5 * time.Millisecond})
	tg := &target{}
	c.Bind(tg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()

	deadline := time.Now().Add(time.Second)
	for tg.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
	if tg.count() < 3 {
		t.Errorf("ticker delivered %d updates, want at least 3", tg.count())
	}
	if c.String() != "timeline-cursor" {
		t.Errorf("String() = %q", c.String())
	}
}
