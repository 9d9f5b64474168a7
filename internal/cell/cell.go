// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package cell

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marusama/semaphore/v2"
	"github.com/rs/zerolog"

	"github.com/tomtom215/camgrid/internal/decoder"
	"github.com/tomtom215/camgrid/internal/directory"
	"github.com/tomtom215/camgrid/internal/logging"
	"github.com/tomtom215/camgrid/internal/metrics"
	"github.com/tomtom215/camgrid/internal/models"
	"github.com/tomtom215/camgrid/internal/playback"
	"github.com/tomtom215/camgrid/internal/stream"
)

// ErrNotPlayback is returned by transport controls on a cell that has no
// playback session.
var ErrNotPlayback = errors.New("cell is not in playback mode")

// Config holds cell behaviour shared by every cell of a grid.
type Config struct {
	LiveThreshold time.Duration
	Playback      playback.Config

	// EventTimeout bounds the event lookup made when playback starts.
	EventTimeout time.Duration
}

// Option customizes a Cell.
type Option func(*Cell)

// WithRenderer sets the renderer Poll delivers to.
func WithRenderer(r Renderer) Option {
	return func(c *Cell) {
		if r != nil {
			c.renderer = r
		}
	}
}

// WithEvents supplies event markers to playback sessions.
func WithEvents(src directory.EventSource) Option {
	return func(c *Cell) { c.events = src }
}

// WithThumbnailSlots shares a thumbnail semaphore across the sessions this
// cell creates.
func WithThumbnailSlots(sem semaphore.Semaphore) Option {
	return func(c *Cell) { c.thumbSlots = sem }
}

// WithClock replaces time.Now for mode decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Cell) {
		if now != nil {
			c.now = now
		}
	}
}

// Cell binds one display slot to either a pooled live stream or a
// playback session, never both.
//
// Control methods (SetCamera, SetTimelinePosition, Select, Clear) are
// serialized by mu. Stream and session callbacks arrive on worker
// goroutines, sometimes while the pool lock is held, so they only touch
// the slot and never mu or the pool.
type Cell struct {
	index      int
	owner      string
	cfg        Config
	pool       *stream.Pool
	dec        decoder.Decoder
	events     directory.EventSource
	thumbSlots semaphore.Semaphore
	renderer   Renderer
	now        func() time.Time
	log        zerolog.Logger

	mu       sync.Mutex
	camera   *models.Camera
	device   *models.Device
	target   time.Time
	window   models.Window
	session  *playback.Session
	selected bool

	slot   slot
	pollMu sync.Mutex
	stops  sync.WaitGroup
}

// slot is what callbacks write and Poll reads.
type slot struct {
	mu sync.Mutex

	// gen changes on every retarget; callbacks carrying an older gen
	// are dropped.
	gen   uint64
	mode  models.CellMode
	lease string

	status      models.Status
	detail      string
	statusDirty bool

	position      time.Time
	positionDirty bool

	frame      models.Frame
	frameTs    time.Time
	frameDirty bool

	leaseLost bool
	lastSeq   uint64
	lastTs    time.Time
}

// New creates an empty cell.
func New(index int, pool *stream.Pool, dec decoder.Decoder, cfg Config, opts ...Option) *Cell {
	if cfg.LiveThreshold <= 0 {
		cfg.LiveThreshold = DefaultLiveThreshold
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 2 * time.Second
	}
	c := &Cell{
		index:    index,
		owner:    fmt.Sprintf("cell-%d", index),
		cfg:      cfg,
		pool:     pool,
		dec:      dec,
		renderer: nopRenderer{},
		now:      time.Now,
		log:      logging.Component("cell").With().Int("cell", index).Logger(),
	}
	c.slot.mode = models.ModeEmpty
	c.slot.status = models.StatusEmpty
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Index returns the cell's position in the grid.
func (c *Cell) Index() int { return c.index }

// SetCamera binds the cell to a camera and picks a mode for the current
// timeline target. A nil camera or device clears the cell.
func (c *Cell) SetCamera(cam *models.Camera, dev *models.Device) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cam == nil || dev == nil {
		c.clearLocked()
		return
	}
	if c.camera != nil && c.camera.ID == cam.ID && c.device.ID == dev.ID {
		c.applyModeLocked()
		return
	}

	c.teardownLocked()
	camCopy, devCopy := *cam, *dev
	c.camera, c.device = &camCopy, &devCopy
	c.log.Info().Str("camera", cam.ID).Msg("Camera assigned")
	c.applyModeLocked()
}

// SetTimelinePosition retargets the cell. A zero position means live; a
// zero window keeps the previous one.
func (c *Cell) SetTimelinePosition(position time.Time, window models.Window) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.target = position
	if !window.IsZero() {
		c.window = window
	}
	if c.camera == nil {
		return
	}
	c.applyModeLocked()
}

// SwitchToLive forces live mode. It is a no-op when the cell already holds
// a live lease that has not been evicted.
func (c *Cell) SwitchToLive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.switchToLiveLocked()
}

// SwitchToPlayback forces playback mode at the current target.
func (c *Cell) SwitchToPlayback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.switchToPlaybackLocked()
}

// Select marks the cell as selected. Selecting a live cell refreshes its
// lease in the pool, re-acquiring it if it was evicted.
func (c *Cell) Select(selected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.selected = selected
	if !selected || c.camera == nil {
		return
	}

	lease, lost := c.leaseState()
	if c.mode() != models.ModeLive {
		return
	}
	if lease == "" || lost || !c.pool.Touch(lease) {
		c.switchToLiveLocked()
	}
}

// Clear unbinds the camera and releases whatever the cell holds.
func (c *Cell) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// Close clears the cell and waits for any session it was stopping.
func (c *Cell) Close() {
	c.Clear()
	c.stops.Wait()
}

func (c *Cell) clearLocked() {
	c.teardownLocked()
	c.camera, c.device = nil, nil
	c.slot.mu.Lock()
	c.slot.setStatusLocked(models.StatusEmpty, "")
	c.slot.mu.Unlock()
}

func (c *Cell) applyModeLocked() {
	switch DecideMode(c.target, c.now(), c.cfg.LiveThreshold) {
	case models.ModeLive:
		c.switchToLiveLocked()
	default:
		c.switchToPlaybackLocked()
	}
}

func (c *Cell) switchToLiveLocked() {
	if c.camera == nil {
		return
	}
	lease, lost := c.leaseState()
	if c.mode() == models.ModeLive && lease != "" && !lost {
		return
	}

	c.stopSessionLocked()

	desc := models.LiveDescriptor(c.camera, c.device, models.QualitySub)
	gen := c.retarget(models.ModeLive, "", models.StatusConnecting)

	if !c.pool.Acquire(desc, c.owner, &liveListener{cell: c, gen: gen}) {
		c.log.Warn().Str("camera", c.camera.ID).Msg("Live descriptor rejected")
		c.setStatus(gen, models.StatusFailed, "invalid stream descriptor")
		return
	}

	c.slot.mu.Lock()
	if c.slot.gen == gen {
		c.slot.lease = desc.Identity
	}
	c.slot.mu.Unlock()

	if info, ok := c.pool.StreamInfo(desc.Identity); ok && info.State == models.ConnConnected.String() {
		c.setStatus(gen, models.StatusConnected, "")
	}

	c.log.Debug().Str("identity", desc.Identity).Msg("Switched to live")
}

func (c *Cell) switchToPlaybackLocked() {
	if c.camera == nil {
		return
	}

	if c.mode() == models.ModePlayback && c.session != nil &&
		(c.window.IsZero() || sameWindow(c.session.Window(), c.window)) {
		_ = c.session.Seek(c.target)
		return
	}

	c.releaseLeaseLocked()
	c.stopSessionLocked()

	window := c.window
	if window.IsZero() {
		window = models.LastDay(c.now())
	}

	gen := c.retarget(models.ModePlayback, "", models.StatusConnecting)
	obs := &sessionObserver{cell: c, gen: gen}
	var opts []playback.Option
	if c.thumbSlots != nil {
		opts = append(opts, playback.WithThumbnailSlots(c.thumbSlots))
	}
	sess := playback.NewSession(c.dec, c.cfg.Playback, obs, opts...)

	uri := models.PlaybackURI(c.camera, c.device)
	if err := sess.Load(uri, window.Start, window.End, c.fetchEvents(window)); err != nil {
		c.log.Warn().Err(err).Str("camera", c.camera.ID).Msg("Failed to load recording")
		c.setStatus(gen, models.StatusError, err.Error())
		return
	}
	sess.SetSegments(c.fetchSegments(window))
	c.session = sess

	_ = sess.Seek(c.target)
	_ = sess.Play()

	c.log.Debug().
		Str("session_id", sess.ID()).
		Time("target", c.target).
		Msg("Switched to playback")
}

func (c *Cell) fetchEvents(window models.Window) []models.Event {
	if c.events == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.EventTimeout)
	defer cancel()
	events, err := c.events.Events(ctx, c.camera.ID, window.Start, window.End)
	if err != nil {
		c.log.Warn().Err(err).Msg("Event lookup failed, continuing without markers")
		return nil
	}
	return events
}

func (c *Cell) fetchSegments(window models.Window) []models.Window {
	src, ok := c.events.(directory.SegmentSource)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.EventTimeout)
	defer cancel()
	segments, err := src.Segments(ctx, c.camera.ID, window.Start, window.End)
	if err != nil {
		c.log.Warn().Err(err).Msg("Segment lookup failed, continuing without coverage")
		return nil
	}
	return segments
}

func (c *Cell) teardownLocked() {
	c.releaseLeaseLocked()
	c.stopSessionLocked()
	c.retarget(models.ModeEmpty, "", models.StatusEmpty)
}

func (c *Cell) releaseLeaseLocked() {
	lease, _ := c.leaseState()
	if lease == "" {
		return
	}
	// detach before the stop so this cell does not hear its own disconnect
	c.retarget(c.mode(), "", "")
	c.pool.ReleaseLease(lease, c.owner)
}

// stopSessionLocked hands the session to a background stop so control
// calls never wait on pipeline teardown.
func (c *Cell) stopSessionLocked() {
	if c.session == nil {
		return
	}
	sess := c.session
	c.session = nil
	c.retarget(c.mode(), "", "")

	c.stops.Add(1)
	go func() {
		defer c.stops.Done()
		sess.Stop()
	}()
}

// retarget starts a new callback generation. An empty status leaves the
// current one in place.
func (c *Cell) retarget(mode models.CellMode, lease string, status models.Status) uint64 {
	c.slot.mu.Lock()
	defer c.slot.mu.Unlock()

	if c.slot.mode != mode {
		metrics.RecordCellMode(string(mode))
	}
	c.slot.gen++
	c.slot.mode = mode
	c.slot.lease = lease
	c.slot.leaseLost = false
	c.slot.lastSeq = 0
	c.slot.lastTs = time.Time{}
	c.slot.frame = models.Frame{}
	c.slot.frameDirty = false
	c.slot.positionDirty = false
	if status != "" {
		c.slot.setStatusLocked(status, "")
	}
	return c.slot.gen
}

func (c *Cell) setStatus(gen uint64, status models.Status, detail string) {
	c.slot.mu.Lock()
	defer c.slot.mu.Unlock()
	if c.slot.gen != gen {
		return
	}
	c.slot.setStatusLocked(status, detail)
}

func (s *slot) setStatusLocked(status models.Status, detail string) {
	if s.status == status && s.detail == detail {
		return
	}
	s.status = status
	s.detail = detail
	s.statusDirty = true
}

func (c *Cell) mode() models.CellMode {
	c.slot.mu.Lock()
	defer c.slot.mu.Unlock()
	return c.slot.mode
}

func (c *Cell) leaseState() (string, bool) {
	c.slot.mu.Lock()
	defer c.slot.mu.Unlock()
	return c.slot.lease, c.slot.leaseLost
}

// Poll delivers pending updates to the renderer: the status if it changed,
// the newest frame if it has not been delivered yet, and the position.
// Meant to be called from one ticker at roughly 30Hz.
func (c *Cell) Poll() {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	c.slot.mu.Lock()
	mode, lease := c.slot.mode, c.slot.lease
	status, detail, sendStatus := c.slot.status, c.slot.detail, c.slot.statusDirty
	c.slot.statusDirty = false
	position, sendPosition := c.slot.position, c.slot.positionDirty
	c.slot.positionDirty = false
	frame, frameTs, sendFrame := c.slot.frame, c.slot.frameTs, c.slot.frameDirty
	c.slot.frameDirty = false
	c.slot.frame = models.Frame{}
	c.slot.mu.Unlock()

	if mode == models.ModeLive && lease != "" {
		if latest, ok := c.pool.LatestFrame(lease); ok {
			c.slot.mu.Lock()
			fresh := c.slot.lease == lease && (latest.Seq != c.slot.lastSeq || !latest.Timestamp.Equal(c.slot.lastTs))
			if fresh {
				c.slot.lastSeq, c.slot.lastTs = latest.Seq, latest.Timestamp
			}
			c.slot.mu.Unlock()
			if fresh {
				frame, frameTs, sendFrame = latest, latest.Timestamp, true
			}
		}
	}

	if sendStatus {
		c.deliverStatus(status, detail)
	}
	if sendFrame {
		c.deliverFrame(frame, frameTs)
	}
	if sendPosition {
		c.deliverPosition(position)
	}
}

func (c *Cell) deliverStatus(status models.Status, detail string) {
	defer logging.Recover("cell", "on_status")
	c.renderer.OnStatus(c.index, status, detail)
}

func (c *Cell) deliverFrame(frame models.Frame, ts time.Time) {
	defer logging.Recover("cell", "on_frame")
	c.renderer.OnFrame(c.index, frame, ts)
}

func (c *Cell) deliverPosition(ts time.Time) {
	defer logging.Recover("cell", "on_position")
	c.renderer.OnPosition(c.index, ts)
}

// Mode returns what the cell is showing.
func (c *Cell) Mode() models.CellMode { return c.mode() }

// Status returns the current status and its detail.
func (c *Cell) Status() (models.Status, string) {
	c.slot.mu.Lock()
	defer c.slot.mu.Unlock()
	return c.slot.status, c.slot.detail
}

// Lease returns the pooled identity held in live mode.
func (c *Cell) Lease() string {
	lease, _ := c.leaseState()
	return lease
}

// LeaseLost reports whether the live lease was evicted from the pool.
func (c *Cell) LeaseLost() bool {
	_, lost := c.leaseState()
	return lost
}

// Session returns the playback session, or nil in live mode.
func (c *Cell) Session() *playback.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Camera returns the bound camera, or nil.
func (c *Cell) Camera() *models.Camera {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.camera == nil {
		return nil
	}
	cam := *c.camera
	return &cam
}

// Device returns the bound camera's device, or nil.
func (c *Cell) Device() *models.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return nil
	}
	dev := *c.device
	return &dev
}

// Target returns the timeline position the cell follows.
func (c *Cell) Target() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Play resumes the playback session.
func (c *Cell) Play() error {
	return c.withSession(func(s *playback.Session) error { return s.Play() })
}

// Pause pauses the playback session.
func (c *Cell) Pause() error {
	return c.withSession(func(s *playback.Session) error { return s.Pause() })
}

// TogglePlay flips the playback session between playing and paused.
func (c *Cell) TogglePlay() error {
	return c.withSession(func(s *playback.Session) error { return s.TogglePlay() })
}

// SetSpeed sets the playback rate.
func (c *Cell) SetSpeed(speed float64) error {
	return c.withSession(func(s *playback.Session) error {
		s.SetSpeed(speed)
		return nil
	})
}

// StepForward advances one frame.
func (c *Cell) StepForward() error {
	return c.withSession(func(s *playback.Session) error { return s.StepForward() })
}

// StepBackward goes back one frame.
func (c *Cell) StepBackward() error {
	return c.withSession(func(s *playback.Session) error { return s.StepBackward() })
}

func (c *Cell) withSession(fn func(*playback.Session) error) error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return ErrNotPlayback
	}
	return fn(sess)
}

// Snapshot returns the API view of the cell.
func (c *Cell) Snapshot() models.CellSnapshot {
	c.mu.Lock()
	snap := models.CellSnapshot{Index: c.index, Selected: c.selected}
	if c.camera != nil {
		snap.CameraID = c.camera.ID
	}
	sess := c.session
	c.mu.Unlock()

	c.slot.mu.Lock()
	snap.Mode = c.slot.mode
	snap.Status = c.slot.status
	snap.Lease = c.slot.lease
	c.slot.mu.Unlock()

	if sess != nil {
		pos := sess.Position()
		snap.Position = &pos
		snap.Session = sess.ID()
		snap.Speed = sess.Speed()
		snap.Playing = sess.IsPlaying()
	}
	return snap
}

func sameWindow(a, b models.Window) bool {
	return a.Start.Equal(b.Start) && a.End.Equal(b.End)
}

// liveListener receives status from the pooled connection.
type liveListener struct {
	cell *Cell
	gen  uint64
}

// OnStreamFrame is a no-op: Poll pulls the newest frame from the pool.
func (l *liveListener) OnStreamFrame(string, models.Frame) {}

func (l *liveListener) OnStreamStatus(_ string, status models.Status) {
	s := &l.cell.slot
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != l.gen {
		return
	}
	if status == models.StatusDisconnected {
		// evicted or shut down; re-acquired on the next mode decision or select
		s.leaseLost = true
	}
	s.setStatusLocked(status, "")
}

// sessionObserver receives everything from the cell's playback session.
type sessionObserver struct {
	cell *Cell
	gen  uint64
}

func (o *sessionObserver) OnPlaybackFrame(frame models.Frame, ts time.Time) {
	s := &o.cell.slot
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != o.gen {
		return
	}
	s.frame, s.frameTs, s.frameDirty = frame, ts, true
}

func (o *sessionObserver) OnPlaybackStatus(status models.Status, detail string) {
	s := &o.cell.slot
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != o.gen {
		return
	}
	if status == models.StatusError {
		status = models.StatusNoRecording
	}
	s.setStatusLocked(status, detail)
}

func (o *sessionObserver) OnPlaybackPosition(ts time.Time) {
	s := &o.cell.slot
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != o.gen {
		return
	}
	s.position, s.positionDirty = ts, true
}
