// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marusama/semaphore/v2"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/camgrid/internal/cache"
	"github.com/tomtom215/camgrid/internal/decoder"
	"github.com/tomtom215/camgrid/internal/logging"
	"github.com/tomtom215/camgrid/internal/metrics"
	"github.com/tomtom215/camgrid/internal/models"
)

// DefaultThumbnailSlots bounds concurrent thumbnail pipelines per session
// when no shared semaphore is supplied.
const DefaultThumbnailSlots = 2

// Option customizes a Session.
type Option func(*Session)

// WithThumbnailSlots shares a semaphore that bounds concurrent thumbnail
// pipelines across every session of the process.
func WithThumbnailSlots(sem semaphore.Semaphore) Option {
	return func(s *Session) {
		if sem != nil {
			s.thumbSlots = sem
		}
	}
}

// Session plays recorded media from one camera over a time window.
//
// State machine:
//
//	unloaded -> loading -> ready
//	ready <-> playing <-> paused
//	any -> error      (pipeline open failed, until the next seek, load or play)
//	any -> unloaded   (Stop)
//
// Two goroutines run while loaded: the transport loop, which owns the
// pipeline, and the thumbnail prefetcher. Seek never blocks on either.
type Session struct {
	id  string
	dec decoder.Decoder
	cfg Config
	obs Observer
	log zerolog.Logger

	frames     *cache.FrameCache
	thumbs     *cache.ThumbnailCache
	thumbSlots semaphore.Semaphore
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[models.Frame]

	// lifeMu serializes Load and Stop
	lifeMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     models.SessionState
	uri       string
	window    models.Window
	events    []models.Event
	segments  []models.Window
	position  time.Time
	speed     float64
	playing   bool
	failed    bool
	buffering bool
	fps       float64
	frameW    int
	frameH    int
	current   models.Frame

	pipeMu    sync.Mutex
	pipe      decoder.Pipeline
	pipeStale bool
	closed    bool

	seekCh chan time.Time
	kickCh chan struct{}
}

// NewSession creates an unloaded session. obs may be nil.
func NewSession(dec decoder.Decoder, cfg Config, obs Observer, opts ...Option) *Session {
	cfg = cfg.withDefaults()
	if obs == nil {
		obs = ObserverFuncs{}
	}

	s := &Session{
		id:      uuid.NewString(),
		dec:     dec,
		cfg:     cfg,
		obs:     obs,
		frames:  cache.NewFrameCache(cfg.FrameCacheSize),
		thumbs:  cache.NewThumbnailCache(cfg.ThumbnailCacheSize, cfg.ThumbnailWidth, cfg.ThumbnailHeight),
		limiter: rate.NewLimiter(rate.Limit(cfg.PrefetchRate), 1),
		speed:   1,
		fps:     cfg.DefaultFPS,
		closed:  true,
		seekCh:  make(chan time.Time, 1),
		kickCh:  make(chan struct{}, 1),
	}
	s.log = logging.Component("playback").With().Str("session_id", s.id).Logger()
	s.thumbSlots = semaphore.New(DefaultThumbnailSlots)
	s.breaker = gobreaker.NewCircuitBreaker[models.Frame](gobreaker.Settings{
		Name:        "thumbnails-" + s.id[:8],
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.log.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Thumbnail breaker state changed")
		},
	})

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Load binds the session to a recording and starts thumbnail prefetch.
// Any previous recording is stopped and both caches are cleared. The
// pipeline itself is opened lazily by the first Play or Seek.
func (s *Session) Load(uri string, start, end time.Time, events []models.Event) error {
	if uri == "" {
		return fmt.Errorf("load: %w", models.ErrInvalidDescriptor)
	}
	if !end.After(start) {
		return fmt.Errorf("load: window end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	s.Stop()

	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.frames.Clear()
	s.thumbs.Clear()

	sorted := append([]models.Event(nil), events...)
	models.SortEvents(sorted)

	window := models.Window{Start: start, End: end}
	s.mu.Lock()
	s.state = models.SessionLoading
	s.uri = uri
	s.window = window
	s.events = sorted
	s.segments = nil
	s.position = start
	s.playing = false
	s.failed = false
	s.buffering = false
	s.fps = s.cfg.DefaultFPS
	s.current = models.Frame{}
	s.mu.Unlock()

	s.pipeMu.Lock()
	s.closed = false
	s.pipeStale = false
	s.pipeMu.Unlock()
	drain(s.seekCh)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(2)
	go s.transport(ctx)
	go s.prefetch(ctx, uri, window)

	s.setState(models.SessionReady)
	metrics.PlaybackSessionsActive.Inc()

	s.log.Info().
		Str("uri", models.RedactURI(uri)).
		Time("start", start).
		Time("end", end).
		Int("events", len(sorted)).
		Msg("Recording loaded")
	s.emitStatus(models.StatusLoaded, "")
	return nil
}

// Stop cancels both workers, waits up to StopTimeout for them and releases
// the pipeline. Safe to call repeatedly.
func (s *Session) Stop() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	wasLoaded := s.cancel != nil
	if wasLoaded {
		s.cancel()
		s.cancel = nil

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		timer := time.NewTimer(s.cfg.StopTimeout)
		select {
		case <-done:
		case <-timer.C:
			s.log.Warn().Dur("timeout", s.cfg.StopTimeout).Msg("Playback workers did not exit in time, releasing pipeline anyway")
		}
		timer.Stop()
	}

	s.pipeMu.Lock()
	s.closed = true
	p := s.pipe
	s.pipe = nil
	s.pipeMu.Unlock()
	if p != nil {
		_ = p.Release()
	}

	s.mu.Lock()
	s.state = models.SessionUnloaded
	s.playing = false
	s.current = models.Frame{}
	s.mu.Unlock()

	if wasLoaded {
		s.frames.Clear()
		s.thumbs.Clear()
		metrics.PlaybackSessionsActive.Dec()
		s.log.Debug().Msg("Playback stopped")
		s.emitStatus(models.StatusStopped, "")
	}
}

// Play starts or resumes playback. An earlier open failure is retried.
func (s *Session) Play() error {
	s.mu.Lock()
	if s.state == models.SessionUnloaded {
		s.mu.Unlock()
		return models.ErrNotLoaded
	}
	s.failed = false
	s.playing = true
	s.state = models.SessionPlaying
	s.mu.Unlock()

	s.kick()
	s.emitStatus(models.StatusPlaying, "")
	return nil
}

// Pause stops advancing the position. The pipeline stays open.
func (s *Session) Pause() error {
	s.mu.Lock()
	if s.state == models.SessionUnloaded {
		s.mu.Unlock()
		return models.ErrNotLoaded
	}
	s.playing = false
	if s.state != models.SessionError {
		s.state = models.SessionPaused
	}
	s.mu.Unlock()

	s.kick()
	s.emitStatus(models.StatusPaused, "")
	return nil
}

// TogglePlay flips between playing and paused.
func (s *Session) TogglePlay() error {
	if s.IsPlaying() {
		return s.Pause()
	}
	return s.Play()
}

// Seek moves to t, clamped into the window. A cached frame within
// FrameTolerance is shown immediately; otherwise the nearest thumbnail
// within ThumbnailTolerance is shown upscaled and the pipeline is reopened
// at t in the background.
func (s *Session) Seek(t time.Time) error {
	s.mu.Lock()
	if s.state == models.SessionUnloaded {
		s.mu.Unlock()
		return models.ErrNotLoaded
	}
	t = s.window.Clamp(t)
	s.position = t
	s.failed = false
	if s.state == models.SessionError {
		s.state = models.SessionPaused
		if s.playing {
			s.state = models.SessionPlaying
		}
	}
	w, h := s.frameW, s.frameH
	s.mu.Unlock()

	if _, frame, ok := s.frames.GetNearest(t, s.cfg.FrameTolerance); ok {
		metrics.RecordCacheLookup("frame", true)
		metrics.RecordSeek("cache")
		s.setCurrent(frame)
		s.markStale()
		s.emitFrame(frame, t)
		s.emitPosition(t)
		return nil
	}
	metrics.RecordCacheLookup("frame", false)

	if _, thumb, ok := s.thumbs.GetNearest(t, s.cfg.ThumbnailTolerance); ok {
		metrics.RecordCacheLookup("thumbnail", true)
		metrics.RecordSeek("thumbnail")
		if w > 0 && h > 0 {
			thumb = cache.Upscale(thumb, w, h)
		}
		s.emitFrame(thumb, t)
	} else {
		metrics.RecordCacheLookup("thumbnail", false)
		metrics.RecordSeek("reopen")
	}

	s.requestReopen(t)
	s.emitPosition(t)
	return nil
}

// SeekRelative seeks by delta from the current position.
func (s *Session) SeekRelative(delta time.Duration) error {
	return s.Seek(s.Position().Add(delta))
}

// StepForward seeks one frame ahead.
func (s *Session) StepForward() error {
	return s.SeekRelative(s.frameDuration())
}

// StepBackward seeks one frame back.
func (s *Session) StepBackward() error {
	return s.SeekRelative(-s.frameDuration())
}

// SetSpeed sets the playback rate, clamped to [MinSpeed, MaxSpeed], and
// returns the applied value.
func (s *Session) SetSpeed(speed float64) float64 {
	if speed < s.cfg.MinSpeed {
		speed = s.cfg.MinSpeed
	}
	if speed > s.cfg.MaxSpeed {
		speed = s.cfg.MaxSpeed
	}
	s.mu.Lock()
	s.speed = speed
	s.mu.Unlock()
	s.kick()
	return speed
}

// NextEvent seeks to the first event starting strictly after the position.
func (s *Session) NextEvent() (models.Event, bool) {
	s.mu.Lock()
	pos := s.position
	var target models.Event
	found := false
	i := sort.Search(len(s.events), func(i int) bool { return s.events[i].Start.After(pos) })
	if i < len(s.events) {
		target, found = s.events[i], true
	}
	s.mu.Unlock()

	if found {
		_ = s.Seek(target.Start)
	}
	return target, found
}

// PrevEvent seeks to the last event starting strictly before the position.
func (s *Session) PrevEvent() (models.Event, bool) {
	s.mu.Lock()
	pos := s.position
	var target models.Event
	found := false
	i := sort.Search(len(s.events), func(i int) bool { return !s.events[i].Start.Before(pos) })
	if i > 0 {
		target, found = s.events[i-1], true
	}
	s.mu.Unlock()

	if found {
		_ = s.Seek(target.Start)
	}
	return target, found
}

// Thumbnail returns the nearest prefetched thumbnail to ts, for timeline
// hover previews.
func (s *Session) Thumbnail(ts time.Time) (models.Frame, bool) {
	_, frame, ok := s.thumbs.GetNearest(ts, s.cfg.ThumbnailTolerance)
	return frame, ok
}

// Position returns the current playback position.
func (s *Session) Position() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Window returns the loaded time window.
func (s *Session) Window() models.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

// Duration returns the window length.
func (s *Session) Duration() time.Duration {
	return s.Window().Duration()
}

// Progress returns the position as a fraction of the window in [0, 1].
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.window.Duration()
	if d <= 0 {
		return 0
	}
	return float64(s.position.Sub(s.window.Start)) / float64(d)
}

// SetSegments records which parts of the window hold recordings, for
// timeline decoration. Segments are clipped to the window, sorted by
// start, and those falling outside it are dropped.
func (s *Session) SetSegments(segments []models.Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Window, 0, len(segments))
	for _, seg := range segments {
		if !seg.End.After(s.window.Start) || !seg.Start.Before(s.window.End) {
			continue
		}
		out = append(out, models.Window{
			Start: s.window.Clamp(seg.Start),
			End:   s.window.Clamp(seg.End),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	s.segments = out
}

// Segments returns the recorded segments set since the last Load.
func (s *Session) Segments() []models.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Window(nil), s.segments...)
}

// Events returns the loaded events sorted by start.
func (s *Session) Events() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Event(nil), s.events...)
}

func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *Session) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// CurrentFrame returns a copy of the frame last shown.
func (s *Session) CurrentFrame() (models.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.IsZero() {
		return models.Frame{}, false
	}
	return s.current.Clone(), true
}

// CacheRange returns the span of decoded frames currently cached.
func (s *Session) CacheRange() (time.Time, time.Time, bool) {
	return s.frames.Range()
}

// FrameCache exposes the decoded frame cache, mainly for tests and stats.
func (s *Session) FrameCache() *cache.FrameCache { return s.frames }

// ThumbnailCache exposes the thumbnail cache.
func (s *Session) ThumbnailCache() *cache.ThumbnailCache { return s.thumbs }

func (s *Session) frameDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	fps := s.fps
	if fps <= 0 {
		fps = s.cfg.DefaultFPS
	}
	return time.Duration(float64(time.Second) / fps)
}

func (s *Session) setState(st models.SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) setCurrent(frame models.Frame) {
	s.mu.Lock()
	s.current = frame
	if !frame.IsZero() {
		s.frameW, s.frameH = frame.Width, frame.Height
	}
	s.mu.Unlock()
}

// requestReopen hands t to the transport loop, replacing any pending target.
func (s *Session) requestReopen(t time.Time) {
	drain(s.seekCh)
	select {
	case s.seekCh <- t:
	default:
	}
	s.kick()
}

func (s *Session) kick() {
	select {
	case s.kickCh <- struct{}{}:
	default:
	}
}

// markStale makes the transport loop reopen at the current position
// before it reads again.
func (s *Session) markStale() {
	s.pipeMu.Lock()
	s.pipeStale = true
	s.pipeMu.Unlock()
}

func drain(ch chan time.Time) {
	select {
	case <-ch:
	default:
	}
}

func (s *Session) emitFrame(frame models.Frame, ts time.Time) {
	defer logging.Recover("playback", "on_frame")
	s.obs.OnPlaybackFrame(frame, ts)
}

func (s *Session) emitStatus(status models.Status, detail string) {
	defer logging.Recover("playback", "on_status")
	s.obs.OnPlaybackStatus(status, detail)
}

func (s *Session) emitPosition(ts time.Time) {
	defer logging.Recover("playback", "on_position")
	s.obs.OnPlaybackPosition(ts)
}

// isEOF reports whether err marks the end of the recording.
func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
