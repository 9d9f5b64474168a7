// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package cell

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/camgrid/internal/decoder"
	"github.com/tomtom215/camgrid/internal/directory"
	"github.com/tomtom215/camgrid/internal/models"
	"github.com/tomtom215/camgrid/internal/playback"
	"github.com/tomtom215/camgrid/internal/stream"
)

var (
	testNow    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testWindow = models.Window{Start: testNow.Add(-24 * time.Hour), End: testNow}
	testDevice = &models.Device{ID: "nvr1", Host: "10.0.0.5", Username: "admin", Password: "pw"}
)

func camera(id string, channel int) *models.Camera {
	return &models.Camera{ID: id, DeviceID: "nvr1", Channel: channel}
}

func streamConfig() stream.ConnectionConfig {
	return stream.ConnectionConfig{
		OpenTimeout:    time.Second,
		ReadTimeout:    time.Second,
		StopTimeout:    time.Second,
		BaseDelay:      time.Millisecond,
		MaxDelay:       4 * time.Millisecond,
		FailedCooldown: 20 * time.Millisecond,
	}
}

func cellConfig() Config {
	return Config{
		LiveThreshold: 5 * time.Second,
		Playback: playback.Config{
			StopTimeout:     time.Second,
			PrefetchMinStep: 48 * time.Hour,
		},
	}
}

type fixture struct {
	fake *decoder.Fake
	pool *stream.Pool
}

func newFixture(t *testing.T, fps float64, maxStreams int) *fixture {
	t.Helper()
	fake := decoder.NewFake(8, 8, fps)
	pool := stream.NewPool(fake, maxStreams, streamConfig())
	t.Cleanup(pool.ReleaseAll)
	return &fixture{fake: fake, pool: pool}
}

func (f *fixture) cell(t *testing.T, index int, opts ...Option) *Cell {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	c := New(index, f.pool, f.fake, cellConfig(), opts...)
	t.Cleanup(c.Close)
	return c
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDecideMode(t *testing.T) {
	now := testNow
	tests := []struct {
		name   string
		target time.Time
		want   models.CellMode
	}{
		{"unset target", time.Time{}, models.ModeLive},
		{"now", now, models.ModeLive},
		{"3s behind", now.Add(-3 * time.Second), models.ModeLive},
		{"exactly threshold", now.Add(-5 * time.Second), models.ModeLive},
		{"just past threshold", now.Add(-5*time.Second - time.Millisecond), models.ModePlayback},
		{"10s behind", now.Add(-10 * time.Second), models.ModePlayback},
		{"future", now.Add(time.Minute), models.ModeLive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := DecideMode(tt.target, now, 5*time.Second)
			second := DecideMode(tt.target, now, 5*time.Second)
			if first != tt.want {
				t.Errorf("DecideMode() = %v, want %v", first, tt.want)
			}
			if first != second {
				t.Errorf("DecideMode() not deterministic: %v then %v", first, second)
			}
		})
	}
}

func TestCell_LiveToPlaybackTransition(t *testing.T) {
	f := newFixture(t, 50, 4)
	c := f.cell(t, 0)

	c.SetCamera(camera("front", 1), testDevice)
	c.SetTimelinePosition(testNow.Add(-3*time.Second), testWindow)

	if c.Mode() != models.ModeLive {
		t.Fatalf("Mode() = %v, want live", c.Mode())
	}
	lease := c.Lease()
	if lease != "admin@10.0.0.5:554/1" {
		t.Errorf("Lease() = %q", lease)
	}
	if !f.pool.Contains(lease) {
		t.Fatal("pool does not hold the live lease")
	}
	if c.Session() != nil {
		t.Error("live cell must not own a session")
	}
	waitFor(t, time.Second, "live open", func() bool { return f.fake.OpenCount() > 0 })
	if uri := f.fake.OpenedURIs()[0]; !models.IsSubStreamURI(uri) {
		t.Errorf("live cell opened %s, want the sub stream", models.RedactURI(uri))
	}

	c.SetTimelinePosition(testNow.Add(-10*time.Second), testWindow)

	if c.Mode() != models.ModePlayback {
		t.Fatalf("Mode() = %v, want playback", c.Mode())
	}
	if c.Lease() != "" {
		t.Errorf("Lease() = %q after switching to playback, want empty", c.Lease())
	}
	if f.pool.Contains(lease) || f.pool.ActiveCount() != 0 {
		t.Error("live lease not released")
	}
	sess := c.Session()
	if sess == nil {
		t.Fatal("Session() = nil in playback mode")
	}
	if w := sess.Window(); !w.Start.Equal(testWindow.Start) || !w.End.Equal(testWindow.End) {
		t.Errorf("session window = %+v, want %+v", w, testWindow)
	}
	if !sess.Position().Equal(testNow.Add(-10 * time.Second)) {
		t.Errorf("session position = %v", sess.Position())
	}
	waitFor(t, 2*time.Second, "session playing", sess.IsPlaying)

	// back to live stops the session and leases again
	c.SetTimelinePosition(time.Time{}, models.Window{})
	if c.Mode() != models.ModeLive || c.Session() != nil || c.Lease() == "" {
		t.Errorf("after go live: mode=%v session=%v lease=%q", c.Mode(), c.Session(), c.Lease())
	}
}

func TestCell_PlaybackReusesSession(t *testing.T) {
	f := newFixture(t, 50, 4)
	c := f.cell(t, 0)
	c.SetCamera(camera("front", 1), testDevice)

	c.SetTimelinePosition(testNow.Add(-time.Hour), testWindow)
	first := c.Session()
	if first == nil {
		t.Fatal("Session() = nil")
	}

	target := testNow.Add(-2 * time.Hour)
	c.SetTimelinePosition(target, testWindow)
	if c.Session() != first {
		t.Error("seek within the same window created a new session")
	}
	if !first.Position().Equal(target) {
		t.Errorf("Position() = %v, want %v", first.Position(), target)
	}

	// a new window reloads
	other := models.Window{Start: testWindow.Start.Add(-24 * time.Hour), End: testWindow.Start}
	c.SetTimelinePosition(other.Start.Add(time.Hour), other)
	if c.Session() == first {
		t.Error("window change kept the old session")
	}
}

func TestCell_PlaybackLoadsEventsAndSegments(t *testing.T) {
	f := newFixture(t, 50, 4)
	src := directory.NewStaticEvents([]models.Event{
		{CameraID: "front", Start: testNow.Add(-3 * time.Hour), End: testNow.Add(-3*time.Hour + time.Minute)},
		{CameraID: "back", Start: testNow.Add(-2 * time.Hour), End: testNow.Add(-2*time.Hour + time.Minute)},
	})
	src.AddSegment(models.Segment{CameraID: "front", Start: testNow.Add(-30 * time.Hour), End: testNow.Add(-20 * time.Hour)})
	src.AddSegment(models.Segment{CameraID: "front", Start: testNow.Add(-6 * time.Hour), End: testNow.Add(-time.Hour)})

	c := f.cell(t, 0, WithEvents(src))
	c.SetCamera(camera("front", 1), testDevice)
	c.SetTimelinePosition(testNow.Add(-4*time.Hour), testWindow)

	sess := c.Session()
	if sess == nil {
		t.Fatal("Session() = nil")
	}
	if n := len(sess.Events()); n != 1 {
		t.Errorf("Events() len = %d, want 1", n)
	}
	segs := sess.Segments()
	if len(segs) != 2 {
		t.Fatalf("Segments() = %v, want 2 entries", segs)
	}
	// the first segment starts before the window and is clipped to it
	if !segs[0].Start.Equal(testWindow.Start) {
		t.Errorf("Segments()[0].Start = %v, want %v", segs[0].Start, testWindow.Start)
	}
}

func TestCell_LiveFramesDeliveredOnce(t *testing.T) {
	f := newFixture(t, 5, 4)
	r := NewChannelRenderer(8, 8)
	c := f.cell(t, 3, WithRenderer(r))
	c.SetCamera(camera("front", 1), testDevice)

	var got FrameUpdate
	waitFor(t, 2*time.Second, "first live frame", func() bool {
		c.Poll()
		select {
		case got = <-r.Frames():
			return true
		default:
			return false
		}
	})
	if got.Cell != 3 {
		t.Errorf("frame for cell %d, want 3", got.Cell)
	}

	// the connection produces a frame every 200ms; an immediate second poll
	// must not repeat the one already delivered
	c.Poll()
	select {
	case dup := <-r.Frames():
		if dup.Frame.Seq == got.Frame.Seq {
			t.Errorf("frame seq %d delivered twice", dup.Frame.Seq)
		}
	default:
	}

	var sawStatus bool
	for len(r.Updates()) > 0 {
		if u := <-r.Updates(); u.Kind == UpdateStatus {
			sawStatus = true
		}
	}
	if !sawStatus {
		t.Error("no status update delivered")
	}
}

func TestCell_EvictedLeaseReacquiredOnSelect(t *testing.T) {
	f := newFixture(t, 50, 1)
	a := f.cell(t, 0)
	b := f.cell(t, 1)

	a.SetCamera(camera("front", 1), testDevice)
	waitFor(t, time.Second, "a connected", func() bool {
		s, _ := a.Status()
		return s == models.StatusConnected
	})

	b.SetCamera(camera("yard", 2), testDevice)

	if !a.LeaseLost() {
		t.Fatal("LeaseLost() = false after eviction")
	}
	waitFor(t, time.Second, "a disconnected", func() bool {
		s, _ := a.Status()
		return s == models.StatusDisconnected
	})
	if f.pool.ActiveCount() != 1 || !f.pool.Contains(b.Lease()) {
		t.Fatal("pool should hold only b's stream")
	}

	a.Select(true)

	if a.LeaseLost() {
		t.Error("LeaseLost() = true after re-acquire")
	}
	if !f.pool.Contains(a.Lease()) {
		t.Error("a's stream not re-acquired")
	}
	if !b.LeaseLost() {
		t.Error("b should have been evicted by a's re-acquire")
	}
}

func TestCell_SharedCameraKeepsOneStream(t *testing.T) {
	f := newFixture(t, 50, 4)
	a := f.cell(t, 0)
	b := f.cell(t, 1)

	a.SetCamera(camera("front", 1), testDevice)
	b.SetCamera(camera("front", 1), testDevice)
	if f.pool.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1 shared stream", f.pool.ActiveCount())
	}

	a.Clear()
	if f.pool.ActiveCount() != 1 {
		t.Error("clearing one cell stopped the shared stream")
	}
	if b.LeaseLost() {
		t.Error("remaining cell lost its lease")
	}

	b.Clear()
	if f.pool.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d after clearing both, want 0", f.pool.ActiveCount())
	}
	if b.Mode() != models.ModeEmpty {
		t.Errorf("Mode() = %v, want empty", b.Mode())
	}
	if s, _ := b.Status(); s != models.StatusEmpty {
		t.Errorf("Status() = %v, want empty", s)
	}
}

func TestCell_RecordingGapShowsNoRecording(t *testing.T) {
	f := newFixture(t, 50, 4)
	f.fake.FailAllOpens(errors.New("no such track"))
	r := NewChannelRenderer(4, 16)
	c := f.cell(t, 0, WithRenderer(r))

	c.SetCamera(camera("front", 1), testDevice)
	c.SetTimelinePosition(testNow.Add(-time.Hour), testWindow)

	waitFor(t, 2*time.Second, "no_recording", func() bool {
		s, _ := c.Status()
		return s == models.StatusNoRecording
	})
	_, detail := c.Status()
	if detail == "" {
		t.Error("no_recording carries no reason")
	}

	c.Poll()
	delivered := false
	for len(r.Updates()) > 0 {
		if u := <-r.Updates(); u.Kind == UpdateStatus && u.Status == models.StatusNoRecording {
			delivered = true
		}
	}
	if !delivered {
		t.Error("no_recording status not delivered to the renderer")
	}
}

func TestCell_CloseReleasesPipelines(t *testing.T) {
	f := newFixture(t, 50, 4)
	c := New(0, f.pool, f.fake, cellConfig(), WithClock(func() time.Time { return testNow }))
	c.SetCamera(camera("front", 1), testDevice)
	c.SetTimelinePosition(testNow.Add(-time.Hour), testWindow)
	waitFor(t, 2*time.Second, "session pipeline", func() bool { return f.fake.Active() > 0 })

	c.Close()

	// the session pipeline is gone at once; the live lease stops in the background
	for _, p := range f.fake.Pipelines() {
		if strings.Contains(p.URI, "starttime=") && !p.IsReleased() {
			t.Errorf("session pipeline %s open after Close", p.URI)
		}
	}
	waitFor(t, time.Second, "all pipelines released", func() bool { return f.fake.Active() == 0 })
	if c.Camera() != nil || c.Session() != nil {
		t.Error("Close left the cell bound")
	}
}

func TestCell_TransportNeedsPlayback(t *testing.T) {
	f := newFixture(t, 50, 4)
	c := f.cell(t, 0)
	c.SetCamera(camera("front", 1), testDevice)

	for name, fn := range map[string]func() error{
		"Play":         c.Play,
		"Pause":        c.Pause,
		"TogglePlay":   c.TogglePlay,
		"StepForward":  c.StepForward,
		"StepBackward": c.StepBackward,
		"SetSpeed":     func() error { return c.SetSpeed(2) },
	} {
		if err := fn(); !errors.Is(err, ErrNotPlayback) {
			t.Errorf("%s() error = %v, want ErrNotPlayback", name, err)
		}
	}

	c.SetTimelinePosition(testNow.Add(-time.Hour), testWindow)
	if err := c.SetSpeed(4); err != nil {
		t.Fatalf("SetSpeed() error = %v", err)
	}
	if got := c.Session().Speed(); got != 4 {
		t.Errorf("Speed() = %v, want 4", got)
	}
	snap := c.Snapshot()
	if snap.Mode != models.ModePlayback || snap.Session == "" || snap.Position == nil || snap.CameraID != "front" {
		t.Errorf("Snapshot() = %+v", snap)
	}
}

func TestChannelRenderer_DropsStaleFrames(t *testing.T) {
	r := NewChannelRenderer(1, 1)

	first := models.NewFrame(2, 2, testNow)
	first.Seq = 1
	second := models.NewFrame(2, 2, testNow.Add(time.Second))
	second.Seq = 2

	r.OnFrame(0, first, first.Timestamp)
	r.OnFrame(0, second, second.Timestamp)
	r.OnStatus(0, models.StatusConnecting, "")
	r.OnStatus(0, models.StatusConnected, "")

	if got := <-r.Frames(); got.Frame.Seq != 2 {
		t.Errorf("frame seq = %d, want newest 2", got.Frame.Seq)
	}
	if got := <-r.Updates(); got.Status != models.StatusConnected {
		t.Errorf("status = %v, want newest connected", got.Status)
	}
	if len(r.Frames()) != 0 || len(r.Updates()) != 0 {
		t.Error("queues should be empty")
	}
}
