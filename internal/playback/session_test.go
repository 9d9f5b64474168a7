// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package playback

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/camgrid/internal/decoder"
	"github.com/tomtom215/camgrid/internal/metrics"
	"github.com/tomtom215/camgrid/internal/models"
)

const testURI = "rtsp://admin:pw@10.0.0.5:554/Streaming/tracks/101"

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

// observed records everything a session reports.
type observed struct {
	mu        sync.Mutex
	statuses  []models.Status
	details   []string
	frames    []time.Time
	sizes     [][2]int
	positions []time.Time
}

func (o *observed) OnPlaybackFrame(f models.Frame, ts time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames = append(o.frames, ts)
	o.sizes = append(o.sizes, [2]int{f.Width, f.Height})
}

func (o *observed) OnPlaybackStatus(s models.Status, detail string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, s)
	o.details = append(o.details, detail)
}

func (o *observed) OnPlaybackPosition(ts time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.positions = append(o.positions, ts)
}

func (o *observed) count(s models.Status) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, got := range o.statuses {
		if got == s {
			n++
		}
	}
	return n
}

func (o *observed) frameCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.frames)
}

func (o *observed) lastFrame() (time.Time, [2]int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.frames) == 0 {
		return time.Time{}, [2]int{}
	}
	return o.frames[len(o.frames)-1], o.sizes[len(o.sizes)-1]
}

func (o *observed) lastDetail(s models.Status) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.statuses) - 1; i >= 0; i-- {
		if o.statuses[i] == s {
			return o.details[i]
		}
	}
	return ""
}

func testConfig() Config {
	return Config{
		OpenTimeout:     time.Second,
		ReadTimeout:     time.Second,
		StopTimeout:     time.Second,
		ReadRetryDelay:  5 * time.Millisecond,
		MaxReadFailures: 3,
		// one thumbnail per test window unless a test says otherwise
		PrefetchMinStep: 2 * time.Hour,
		PrefetchRate:    1000,
		BreakerTimeout:  50 * time.Millisecond,
	}
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

func newTestSession(t *testing.T, cfg Config) (*Session, *decoder.Fake, *observed) {
	t.Helper()
	fake := decoder.NewFake(32, 18, 100)
	obs := &observed{}
	s := NewSession(fake, cfg, obs)
	t.Cleanup(s.Stop)
	return s, fake, obs
}

func TestSessionLoadRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		uri   string
		start time.Time
		end   time.Time
	}{
		{"empty uri", "", t0, t0.Add(time.Hour)},
		{"end before start", testURI, t0, t0.Add(-time.Hour)},
		{"empty window", testURI, t0, t0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestSession(t, testConfig())
			if err := s.Load(tt.uri, tt.start, tt.end, nil); err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if got := s.State(); got != models.SessionUnloaded {
				t.Errorf("State() = %v, want unloaded", got)
			}
		})
	}
}

func TestSessionRequiresLoad(t *testing.T) {
	s, _, _ := newTestSession(t, testConfig())

	if err := s.Play(); !errors.Is(err, models.ErrNotLoaded) {
		t.Errorf("Play() error = %v, want ErrNotLoaded", err)
	}
	if err := s.Pause(); !errors.Is(err, models.ErrNotLoaded) {
		t.Errorf("Pause() error = %v, want ErrNotLoaded", err)
	}
	if err := s.Seek(t0); !errors.Is(err, models.ErrNotLoaded) {
		t.Errorf("Seek() error = %v, want ErrNotLoaded", err)
	}
}

func TestSessionLoadEmitsLoaded(t *testing.T) {
	s, _, obs := newTestSession(t, testConfig())

	if err := s.Load(testURI, t0, t0.Add(time.Hour), nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := s.State(); got != models.SessionReady {
		t.Errorf("State() = %v, want ready", got)
	}
	if got := s.Position(); !got.Equal(t0) {
		t.Errorf("Position() = %v, want %v", got, t0)
	}
	if obs.count(models.StatusLoaded) != 1 {
		t.Errorf("loaded emitted %d times, want 1", obs.count(models.StatusLoaded))
	}
	if s.Duration() != time.Hour {
		t.Errorf("Duration() = %v, want 1h", s.Duration())
	}
}

func TestSessionSeekClampsToWindow(t *testing.T) {
	end := t0.Add(24 * time.Hour)

	tests := []struct {
		name   string
		target time.Time
		want   time.Time
	}{
		{"before start", t0.Add(-time.Hour), t0},
		{"after end", t0.Add(30 * time.Hour), end},
		{"inside", t0.Add(6 * time.Hour), t0.Add(6 * time.Hour)},
		{"at end", end, end},
	}

	s, _, _ := newTestSession(t, testConfig())
	if err := s.Load(testURI, t0, end, nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Seek(tt.target); err != nil {
				t.Fatalf("Seek() error = %v", err)
			}
			if got := s.Position(); !got.Equal(tt.want) {
				t.Errorf("Position() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSessionStopIsIdempotent(t *testing.T) {
	s, fake, obs := newTestSession(t, testConfig())
	if err := s.Load(testURI, t0, t0.Add(time.Hour), nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := s.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	waitFor(t, 2*time.Second, "frames", func() bool { return obs.frameCount() >= 3 })

	s.Stop()
	s.Stop()

	if got := s.State(); got != models.SessionUnloaded {
		t.Errorf("State() = %v, want unloaded", got)
	}
	if fake.Active() != 0 {
		t.Errorf("Active() = %d, want 0", fake.Active())
	}
	if got := obs.count(models.StatusStopped); got != 1 {
		t.Errorf("stopped emitted %d times, want 1", got)
	}
	for _, p := range fake.Pipelines() {
		if !p.IsReleased() {
			t.Errorf("pipeline %s not released", p.URI)
		}
	}
	if s.FrameCache().Len() != 0 {
		t.Errorf("frame cache len = %d after stop, want 0", s.FrameCache().Len())
	}
}

func TestSessionStopReleasesWedgedPipeline(t *testing.T) {
	cfg := testConfig()
	cfg.StopTimeout = 100 * time.Millisecond
	s, fake, _ := newTestSession(t, cfg)
	fake.HangReads()

	if err := s.Load(testURI, t0, t0.Add(time.Hour), nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := s.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	waitFor(t, 2*time.Second, "blocked reads", func() bool { return fake.HungReads() >= 2 })

	start := time.Now()
	s.Stop()
	if d := time.Since(start); d < cfg.StopTimeout {
		t.Errorf("Stop returned after %v, want at least StopTimeout", d)
	}
	s.Stop()

	// both the transport pipeline and the thumbnail grab are released
	waitFor(t, time.Second, "reads unblocked", func() bool { return fake.HungReads() == 0 })
	if fake.Active() != 0 {
		t.Errorf("Active() = %d after Stop, want 0", fake.Active())
	}
	for _, p := range fake.Pipelines() {
		if !p.IsReleased() {
			t.Errorf("pipeline %s not released", p.URI)
		}
	}
}

func TestSessionPlaybackAdvancesAndCaches(t *testing.T) {
	s, fake, obs := newTestSession(t, testConfig())
	if err := s.Load(testURI, t0, t0.Add(time.Hour), nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := s.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	waitFor(t, 2*time.Second, "cached frames", func() bool { return s.FrameCache().Len() >= 5 })

	if !s.IsPlaying() {
		t.Error("IsPlaying() = false, want true")
	}
	if !s.Position().After(t0) {
		t.Errorf("Position() = %v, want after %v", s.Position(), t0)
	}
	if _, ok := s.CurrentFrame(); !ok {
		t.Error("CurrentFrame() ok = false")
	}
	if obs.count(models.StatusPlaying) == 0 {
		t.Error("playing status never emitted")
	}

	uris := fake.OpenedURIs()
	if len(uris) == 0 || !strings.Contains(uris[len(uris)-1], "starttime=20260301T000000Z") {
		t.Errorf("OpenedURIs() = %v, want starttime of window start", uris)
	}
	buffered := false
	for _, p := range fake.Pipelines() {
		if p.BufferFrames() == 3 {
			buffered = true
		}
	}
	if !buffered {
		t.Error("transport pipeline BufferFrames != 3")
	}
}

func TestSessionPlaybackAdvancesBySpeed(t *testing.T) {
	s, _, obs := newTestSession(t, testConfig())
	if err := s.Load(testURI, t0, t0.Add(time.Hour), nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	s.SetSpeed(4)
	if err := s.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	waitFor(t, 3*time.Second, "positions", func() bool {
		obs.mu.Lock()
		defer obs.mu.Unlock()
		return len(obs.positions) >= 6
	})
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}

	obs.mu.Lock()
	positions := append([]time.Time(nil), obs.positions...)
	obs.mu.Unlock()

	// 100 fps at 4x covers 40ms of recording per frame
	want := 40 * time.Millisecond
	for i := 1; i < 6; i++ {
		if got := positions[i].Sub(positions[i-1]); got != want {
			t.Errorf("position delta %d = %v, want %v", i, got, want)
		}
	}
}

func TestSessionSeekServesCachedFrame(t *testing.T) {
	s, fake, obs := newTestSession(t, testConfig())
	if err := s.Load(testURI, t0, t0.Add(time.Hour), nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := s.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	waitFor(t, 2*time.Second, "cached frames", func() bool { return s.FrameCache().Len() >= 5 })
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	earliest, _, ok := s.CacheRange()
	if !ok {
		t.Fatal("CacheRange() ok = false")
	}
	opens := fake.OpenCount()
	frames := obs.frameCount()
	before := testutil.ToFloat64(metrics.PlaybackSeeks.WithLabelValues("cache"))

	target := earliest.Add(20 * time.Millisecond)
	if err := s.Seek(target); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}

	if got := obs.frameCount(); got != frames+1 {
		t.Errorf("frames after seek = %d, want %d (emitted synchronously)", got, frames+1)
	}
	if ts, _ := obs.lastFrame(); !ts.Equal(target) {
		t.Errorf("last frame at %v, want %v", ts, target)
	}
	if got := testutil.ToFloat64(metrics.PlaybackSeeks.WithLabelValues("cache")) - before; got != 1 {
		t.Errorf("cache seeks = %v, want 1", got)
	}

	time.Sleep(50 * time.Millisecond)
	if fake.OpenCount() != opens {
		t.Errorf("OpenCount() = %d after cache seek while paused, want %d", fake.OpenCount(), opens)
	}

	// resuming reopens at the new position
	if err := s.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	waitFor(t, 2*time.Second, "reopen after cache seek", func() bool { return fake.OpenCount() > opens })
}

func TestSessionSeekShowsThumbnailThenReopens(t *testing.T) {
	s, fake, obs := newTestSession(t, testConfig())
	if err := s.Load(testURI, t0, t0.Add(time.Hour), nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	thumbAt := t0.Add(30 * time.Minute)
	s.ThumbnailCache().Put(thumbAt, models.NewFrame(320, 180, thumbAt))
	before := testutil.ToFloat64(metrics.PlaybackSeeks.WithLabelValues("thumbnail"))

	target := thumbAt.Add(2 * time.Second)
	if err := s.Seek(target); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}

	if obs.frameCount() != 1 {
		t.Fatalf("frames after seek = %d, want 1 placeholder", obs.frameCount())
	}
	ts, size := obs.lastFrame()
	if !ts.Equal(target) {
		t.Errorf("placeholder at %v, want %v", ts, target)
	}
	if size != [2]int{160, 90} {
		t.Errorf("placeholder size = %v, want thumbnail size before any open", size)
	}
	if got := testutil.ToFloat64(metrics.PlaybackSeeks.WithLabelValues("thumbnail")) - before; got != 1 {
		t.Errorf("thumbnail seeks = %v, want 1", got)
	}

	want := models.WithStartTime(testURI, target)
	waitFor(t, 2*time.Second, "reopen at target", func() bool {
		for _, u := range fake.OpenedURIs() {
			if u == want {
				return true
			}
		}
		return false
	})
	waitFor(t, 2*time.Second, "decoded frame", func() bool {
		_, size := obs.lastFrame()
		return size == [2]int{32, 18}
	})
}

func TestSessionOpenFailureIsNotRetried(t *testing.T) {
	s, fake, obs := newTestSession(t, testConfig())
	fake.FailAllOpens(errors.New("404 no recording"))

	if err := s.Load(testURI, t0, t0.Add(time.Hour), nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := s.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	waitFor(t, 2*time.Second, "error status", func() bool { return obs.count(models.StatusError) > 0 })

	if got := s.State(); got != models.SessionError {
		t.Errorf("State() = %v, want error", got)
	}
	if d := obs.lastDetail(models.StatusError); !strings.Contains(d, "404 no recording") {
		t.Errorf("error detail = %q, want open reason", d)
	}

	// let the single prefetch attempt settle, then make sure nothing retries
	time.Sleep(50 * time.Millisecond)
	opens := fake.OpenCount()
	time.Sleep(100 * time.Millisecond)
	if fake.OpenCount() != opens {
		t.Errorf("OpenCount() grew from %d to %d without user action", opens, fake.OpenCount())
	}

	fake.FailAllOpens(nil)
	if err := s.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	waitFor(t, 2*time.Second, "playing after retry", func() bool { return s.State() == models.SessionPlaying && obs.frameCount() > 0 })
}

func TestSessionSetSpeedClamps(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.1, 0.5},
		{0.5, 0.5},
		{2, 2},
		{16, 16},
		{64, 16},
	}

	s, _, _ := newTestSession(t, testConfig())
	for _, tt := range tests {
		if got := s.SetSpeed(tt.in); got != tt.want {
			t.Errorf("SetSpeed(%v) = %v, want %v", tt.in, got, tt.want)
		}
		if got := s.Speed(); got != tt.want {
			t.Errorf("Speed() after SetSpeed(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSessionStepUsesFrameRate(t *testing.T) {
	s, _, _ := newTestSession(t, testConfig())
	if err := s.Load(testURI, t0, t0.Add(time.Hour), nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// no pipeline yet, so the default 30 fps applies
	if err := s.StepForward(); err != nil {
		t.Fatalf("StepForward() error = %v", err)
	}
	want := t0.Add(time.Second / 30)
	if got := s.Position(); !got.Equal(want) {
		t.Errorf("Position() after StepForward = %v, want %v", got, want)
	}

	if err := s.SeekRelative(10 * time.Second); err != nil {
		t.Fatalf("SeekRelative() error = %v", err)
	}
	if got := s.Position(); !got.Equal(want.Add(10 * time.Second)) {
		t.Errorf("Position() after SeekRelative = %v", got)
	}
}

func TestSessionSegmentsClipToWindow(t *testing.T) {
	s, _, _ := newTestSession(t, testConfig())
	if err := s.Load(testURI, t0, t0.Add(time.Hour), nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	s.SetSegments([]models.Window{
		{Start: t0.Add(40 * time.Minute), End: t0.Add(2 * time.Hour)},
		{Start: t0.Add(-time.Hour), End: t0.Add(10 * time.Minute)},
		{Start: t0.Add(3 * time.Hour), End: t0.Add(4 * time.Hour)},
	})

	got := s.Segments()
	want := []models.Window{
		{Start: t0, End: t0.Add(10 * time.Minute)},
		{Start: t0.Add(40 * time.Minute), End: t0.Add(time.Hour)},
	}
	if len(got) != len(want) {
		t.Fatalf("Segments() = %v, want %v", got, want)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Errorf("Segments()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// a new recording starts without coverage
	if err := s.Load(testURI, t0, t0.Add(time.Hour), nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if n := len(s.Segments()); n != 0 {
		t.Errorf("Segments() after reload len = %d, want 0", n)
	}
}

func TestSessionEventNavigation(t *testing.T) {
	events := []models.Event{
		{Start: t0.Add(30 * time.Minute), Kind: "motion"},
		{Start: t0.Add(10 * time.Minute), Kind: "motion"},
		{Start: t0.Add(20 * time.Minute), Kind: "line"},
	}

	s, _, _ := newTestSession(t, testConfig())
	if err := s.Load(testURI, t0, t0.Add(time.Hour), events); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := s.Events(); !got[0].Start.Equal(t0.Add(10 * time.Minute)) {
		t.Fatalf("Events() not sorted: %v", got)
	}

	if err := s.Seek(t0.Add(20 * time.Minute)); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}

	ev, ok := s.NextEvent()
	if !ok || !ev.Start.Equal(t0.Add(30*time.Minute)) {
		t.Errorf("NextEvent() = %v, %v, want event at +30m", ev.Start, ok)
	}
	if _, ok := s.NextEvent(); ok {
		t.Error("NextEvent() past the last event ok = true")
	}

	ev, ok = s.PrevEvent()
	if !ok || !ev.Start.Equal(t0.Add(20*time.Minute)) {
		t.Errorf("PrevEvent() = %v, %v, want event at +20m", ev.Start, ok)
	}
	ev, ok = s.PrevEvent()
	if !ok || !ev.Start.Equal(t0.Add(10*time.Minute)) {
		t.Errorf("PrevEvent() = %v, %v, want event at +10m", ev.Start, ok)
	}
	if _, ok := s.PrevEvent(); ok {
		t.Error("PrevEvent() before the first event ok = true")
	}
	if got := s.Position(); !got.Equal(t0.Add(10 * time.Minute)) {
		t.Errorf("Position() = %v, want +10m", got)
	}
}

func TestSessionEndsAtWindowEnd(t *testing.T) {
	s, _, obs := newTestSession(t, testConfig())
	end := t0.Add(100 * time.Millisecond)
	if err := s.Load(testURI, t0, end, nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	s.SetSpeed(4)
	if err := s.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	waitFor(t, 3*time.Second, "ended", func() bool { return obs.count(models.StatusEnded) > 0 })

	if got := s.Position(); !got.Equal(end) {
		t.Errorf("Position() = %v, want window end %v", got, end)
	}
	if s.IsPlaying() {
		t.Error("IsPlaying() = true after end")
	}
	if p := s.Progress(); p != 1 {
		t.Errorf("Progress() = %v, want 1", p)
	}
}

func TestSessionReadFailureBuffers(t *testing.T) {
	s, fake, obs := newTestSession(t, testConfig())
	fake.FailReadsAfter(3)

	if err := s.Load(testURI, t0, t0.Add(time.Hour), nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := s.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	waitFor(t, 2*time.Second, "buffering", func() bool { return obs.count(models.StatusBuffering) > 0 })
	// MaxReadFailures forces a fresh pipeline
	opens := fake.OpenCount()
	waitFor(t, 2*time.Second, "forced reopen", func() bool { return fake.OpenCount() > opens })
	if s.State() == models.SessionError {
		t.Error("State() = error, read failures must not park the session")
	}
}

func TestSessionPrefetchFillsThumbnails(t *testing.T) {
	cfg := testConfig()
	cfg.PrefetchMinStep = 10 * time.Minute
	s, fake, _ := newTestSession(t, cfg)

	if err := s.Load(testURI, t0, t0.Add(time.Hour), nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// t0, +10m ... +50m
	waitFor(t, 3*time.Second, "thumbnails", func() bool { return s.ThumbnailCache().Len() == 6 })

	if _, ok := s.Thumbnail(t0.Add(20*time.Minute + 3*time.Second)); !ok {
		t.Error("Thumbnail() near +20m ok = false")
	}
	if f, _ := s.Thumbnail(t0); f.Width != 160 || f.Height != 90 {
		t.Errorf("thumbnail size = %dx%d, want 160x90", f.Width, f.Height)
	}
	waitFor(t, time.Second, "thumbnail pipelines released", func() bool { return fake.Active() == 0 })
}

func TestSessionPrefetchBreakerStopsHammering(t *testing.T) {
	cfg := testConfig()
	cfg.PrefetchMinStep = time.Minute
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Hour
	s, fake, _ := newTestSession(t, cfg)
	fake.FailAllOpens(decoder.ErrFakeOpen)

	if err := s.Load(testURI, t0, t0.Add(time.Hour), nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	waitFor(t, 2*time.Second, "breaker trips", func() bool { return fake.OpenCount() >= 2 })
	time.Sleep(100 * time.Millisecond)
	if got := fake.OpenCount(); got != 2 {
		t.Errorf("OpenCount() = %d, want 2 before the breaker opened", got)
	}
}
