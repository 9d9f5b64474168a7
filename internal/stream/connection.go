// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package stream

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/tomtom215/camgrid/internal/decoder"
	"github.com/tomtom215/camgrid/internal/logging"
	"github.com/tomtom215/camgrid/internal/metrics"
	"github.com/tomtom215/camgrid/internal/models"
)

// ConnectionConfig holds the timing knobs of a live connection.
type ConnectionConfig struct {
	// OpenTimeout bounds a single pipeline open.
	OpenTimeout time.Duration

	// ReadTimeout bounds a single frame read on an open pipeline.
	ReadTimeout time.Duration

	// StopTimeout bounds how long Stop waits for the capture goroutine.
	StopTimeout time.Duration

	// BaseDelay and MaxDelay shape the reconnect backoff:
	// min(BaseDelay * 2^(attempt-1), MaxDelay).
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// MaxReconnectAttempts consecutive open failures put the connection
	// into the failed state for FailedCooldown.
	MaxReconnectAttempts int
	FailedCooldown       time.Duration

	// FPSWindow is the measurement window of the frame rate estimate.
	FPSWindow time.Duration

	// BufferFrames is the decoder-side queue depth. Live view wants 1.
	BufferFrames int
}

// DefaultConnectionConfig returns the production defaults.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		OpenTimeout:          5 * time.Second,
		ReadTimeout:          10 * time.Second,
		StopTimeout:          2 * time.Second,
		BaseDelay:            time.Second,
		MaxDelay:             30 * time.Second,
		MaxReconnectAttempts: 10,
		FailedCooldown:       10 * time.Second,
		FPSWindow:            time.Second,
		BufferFrames:         1,
	}
}

func (c ConnectionConfig) withDefaults() ConnectionConfig {
	def := DefaultConnectionConfig()
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = def.OpenTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = def.StopTimeout
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if c.FailedCooldown <= 0 {
		c.FailedCooldown = def.FailedCooldown
	}
	if c.FPSWindow <= 0 {
		c.FPSWindow = def.FPSWindow
	}
	if c.BufferFrames <= 0 {
		c.BufferFrames = def.BufferFrames
	}
	return c
}

// Connection owns one live pipeline and the goroutine that reads it.
//
// State machine:
//
//	idle -> connecting -> connected
//	connected -> reconnecting -> connecting      (read failure)
//	connecting -> reconnecting -> connecting     (open failure, with backoff)
//	reconnecting -> failed -> connecting         (attempts exhausted, after cooldown)
//	any -> idle                                  (Stop)
//
// Start and Stop are idempotent. Stop always releases the pipeline even if
// the capture goroutine does not exit within StopTimeout.
type Connection struct {
	desc models.SourceDescriptor
	dec  decoder.Decoder
	cfg  ConnectionConfig
	log  zerolog.Logger

	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	pipeMu  sync.Mutex
	pipe    decoder.Pipeline
	stopped bool

	frameMu     sync.RWMutex
	frame       models.Frame
	lastFrameAt time.Time
	frameCount  uint64

	state   atomic.Int32
	attempt atomic.Int32
	fpsBits atomic.Uint64

	listenersMu sync.RWMutex
	listeners   map[string]Listener
}

// NewConnection creates an idle connection. Nothing is opened until Start.
func NewConnection(desc models.SourceDescriptor, dec decoder.Decoder, cfg ConnectionConfig) *Connection {
	return &Connection{
		desc:      desc,
		dec:       dec,
		cfg:       cfg.withDefaults(),
		log:       logging.Component("stream").With().Str("identity", desc.Identity).Logger(),
		listeners: make(map[string]Listener),
	}
}

// Descriptor returns the source this connection reads.
func (c *Connection) Descriptor() models.SourceDescriptor { return c.desc }

// AddListener registers l under owner, replacing any previous listener of
// the same owner.
func (c *Connection) AddListener(owner string, l Listener) {
	if l == nil {
		return
	}
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners[owner] = l
}

// RemoveListener unregisters owner.
func (c *Connection) RemoveListener(owner string) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	delete(c.listeners, owner)
}

// ListenerCount returns the number of registered owners.
func (c *Connection) ListenerCount() int {
	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	return len(c.listeners)
}

// Start launches the capture goroutine. No-op if already running.
func (c *Connection) Start() {
	c.startAfter(nil)
}

// startAfter launches the capture goroutine, which opens nothing until
// every channel in wait is closed.
func (c *Connection) startAfter(wait []<-chan struct{}) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.running {
		return
	}

	c.pipeMu.Lock()
	c.stopped = false
	c.pipeMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.run(ctx, c.done, wait)
}

// Stop cancels the capture goroutine, waits up to StopTimeout for it to
// exit and releases the pipeline. Safe to call repeatedly.
func (c *Connection) Stop() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	wasRunning := c.running
	if c.running {
		c.cancel()
		timer := time.NewTimer(c.cfg.StopTimeout)
		select {
		case <-c.done:
		case <-timer.C:
			c.log.Warn().Dur("timeout", c.cfg.StopTimeout).Msg("Capture loop did not exit in time, releasing pipeline anyway")
		}
		timer.Stop()
		c.running = false
	}

	c.pipeMu.Lock()
	c.stopped = true
	p := c.pipe
	c.pipe = nil
	c.pipeMu.Unlock()
	if p != nil {
		if err := p.Release(); err != nil {
			c.log.Debug().Err(err).Msg("Pipeline release reported an error")
		}
	}

	c.frameMu.Lock()
	c.frame = models.Frame{}
	c.frameMu.Unlock()
	c.fpsBits.Store(0)
	c.attempt.Store(0)
	c.state.Store(int32(models.ConnIdle))

	if wasRunning {
		c.log.Debug().Msg("Stream stopped")
		c.notifyStatus(models.StatusDisconnected)
	}
}

// IsRunning reports whether the capture goroutine is active.
func (c *Connection) IsRunning() bool {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	return c.running
}

// State returns the current connection state.
func (c *Connection) State() models.ConnState {
	return models.ConnState(c.state.Load())
}

// ReconnectAttempt returns the current consecutive failure count.
func (c *Connection) ReconnectAttempt() int {
	return int(c.attempt.Load())
}

// LatestFrame returns a copy of the most recent frame, if any.
func (c *Connection) LatestFrame() (models.Frame, bool) {
	c.frameMu.RLock()
	defer c.frameMu.RUnlock()
	if c.frame.IsZero() {
		return models.Frame{}, false
	}
	return c.frame.Clone(), true
}

// FPS returns the measured frame rate, falling back to the pipeline's
// nominal rate before the first measurement. Zero unless connected.
func (c *Connection) FPS() float64 {
	if c.State() != models.ConnConnected {
		return 0
	}
	if fps := math.Float64frombits(c.fpsBits.Load()); fps > 0 {
		return fps
	}
	c.pipeMu.Lock()
	defer c.pipeMu.Unlock()
	if c.pipe != nil {
		return c.pipe.FPS()
	}
	return 0
}

// Resolution returns the pipeline geometry, zero unless connected.
func (c *Connection) Resolution() (int, int) {
	if c.State() != models.ConnConnected {
		return 0, 0
	}
	c.pipeMu.Lock()
	defer c.pipeMu.Unlock()
	if c.pipe != nil {
		return c.pipe.Resolution()
	}
	return 0, 0
}

// Info returns a snapshot for introspection.
func (c *Connection) Info() models.StreamInfo {
	w, h := c.Resolution()

	c.frameMu.RLock()
	lastAt, count := c.lastFrameAt, c.frameCount
	c.frameMu.RUnlock()

	return models.StreamInfo{
		Identity:         c.desc.Identity,
		URI:              c.desc.URI,
		Quality:          c.desc.Quality,
		IsSubStream:      c.desc.Quality == models.QualitySub || models.IsSubStreamURI(c.desc.URI),
		State:            c.State().String(),
		Running:          c.IsRunning(),
		FPS:              c.FPS(),
		Width:            w,
		Height:           h,
		FrameCount:       count,
		LastFrameAt:      lastAt,
		ReconnectAttempt: c.ReconnectAttempt(),
	}
}

// run is the capture goroutine.
func (c *Connection) run(ctx context.Context, done chan struct{}, wait []<-chan struct{}) {
	defer close(done)

	for _, ch := range wait {
		select {
		case <-ch:
		case <-ctx.Done():
			return
		}
	}

	bo := newReconnectBackOff(c.cfg.BaseDelay, c.cfg.MaxDelay)

	for ctx.Err() == nil {
		pipe, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.afterOpenFailure(ctx, bo, err)
			continue
		}

		c.attempt.Store(0)
		bo.Reset()
		c.setState(models.ConnConnected)
		c.log.Info().Str("uri", models.RedactURI(c.desc.URI)).Msg("Stream connected")

		c.readLoop(ctx, pipe)
		c.releasePipeline()
	}
}

var errStopped = errors.New("connection stopped")

// connect opens the pipeline and performs a test read.
func (c *Connection) connect(ctx context.Context) (decoder.Pipeline, error) {
	c.setState(models.ConnConnecting)

	openCtx, cancel := context.WithTimeout(ctx, c.cfg.OpenTimeout)
	pipe, err := c.dec.Open(openCtx, c.desc.URI)
	cancel()
	if err != nil {
		return nil, err
	}

	_ = pipe.SetProperty(decoder.PropBufferFrames, float64(c.cfg.BufferFrames))
	_ = pipe.SetProperty(decoder.PropReadTimeout, c.cfg.ReadTimeout.Seconds())

	if !c.adopt(pipe) {
		return nil, errStopped
	}

	frame, err := pipe.Read(ctx)
	if err != nil {
		c.releasePipeline()
		return nil, err
	}
	c.storeFrame(frame)
	return pipe, nil
}

// adopt installs pipe as the current pipeline unless Stop already ran, in
// which case the pipe is released immediately.
func (c *Connection) adopt(pipe decoder.Pipeline) bool {
	c.pipeMu.Lock()
	if c.stopped {
		c.pipeMu.Unlock()
		_ = pipe.Release()
		return false
	}
	c.pipe = pipe
	c.pipeMu.Unlock()
	return true
}

func (c *Connection) releasePipeline() {
	c.pipeMu.Lock()
	p := c.pipe
	c.pipe = nil
	c.pipeMu.Unlock()
	if p != nil {
		_ = p.Release()
	}
}

func (c *Connection) afterOpenFailure(ctx context.Context, bo *backoff.ExponentialBackOff, err error) {
	attempt := int(c.attempt.Add(1))

	if attempt > c.cfg.MaxReconnectAttempts {
		c.setState(models.ConnFailed)
		c.log.Warn().
			Err(err).
			Int("attempts", attempt).
			Dur("cooldown", c.cfg.FailedCooldown).
			Msg("Reconnect attempts exhausted, cooling down")

		if !sleepContext(ctx, c.cfg.FailedCooldown) {
			return
		}
		c.attempt.Store(0)
		bo.Reset()
		return
	}

	delay := bo.NextBackOff()
	metrics.StreamReconnects.Inc()
	c.setState(models.ConnReconnecting)
	c.log.Warn().
		Err(err).
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("Stream open failed, retrying")

	sleepContext(ctx, delay)
}

func (c *Connection) readLoop(ctx context.Context, pipe decoder.Pipeline) {
	windowStart := time.Now()
	windowFrames := 0

	for ctx.Err() == nil {
		frame, err := pipe.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(err).Msg("Stream read failed, reconnecting")
			c.setState(models.ConnReconnecting)
			return
		}

		c.storeFrame(frame)
		metrics.StreamFramesCaptured.Inc()

		windowFrames++
		if elapsed := time.Since(windowStart); elapsed >= c.cfg.FPSWindow {
			c.fpsBits.Store(math.Float64bits(float64(windowFrames) / elapsed.Seconds()))
			windowStart = time.Now()
			windowFrames = 0
		}

		c.notifyFrame(frame)
	}
}

func (c *Connection) storeFrame(frame models.Frame) {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()
	c.frame = frame
	c.lastFrameAt = time.Now()
	c.frameCount++
}

func (c *Connection) setState(s models.ConnState) {
	if models.ConnState(c.state.Swap(int32(s))) == s {
		return
	}
	metrics.RecordStreamState(s.String())
	c.notifyStatus(models.StatusForConn(s))
}

func (c *Connection) snapshotListeners() []Listener {
	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	out := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		out = append(out, l)
	}
	return out
}

func (c *Connection) notifyFrame(frame models.Frame) {
	for _, l := range c.snapshotListeners() {
		func() {
			defer logging.Recover("stream", "on_frame")
			l.OnStreamFrame(c.desc.Identity, frame)
		}()
	}
}

func (c *Connection) notifyStatus(status models.Status) {
	for _, l := range c.snapshotListeners() {
		func() {
			defer logging.Recover("stream", "on_status")
			l.OnStreamStatus(c.desc.Identity, status)
		}()
	}
}

// newReconnectBackOff yields base, 2*base, 4*base, ... capped at max, with
// no jitter and no overall deadline.
func newReconnectBackOff(base, maxDelay time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = maxDelay
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// sleepContext waits for d or until ctx is done. It reports whether the
// full duration elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
