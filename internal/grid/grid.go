// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package grid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marusama/semaphore/v2"
	"github.com/rs/zerolog"

	"github.com/tomtom215/camgrid/internal/cell"
	"github.com/tomtom215/camgrid/internal/decoder"
	"github.com/tomtom215/camgrid/internal/directory"
	"github.com/tomtom215/camgrid/internal/logging"
	"github.com/tomtom215/camgrid/internal/models"
	"github.com/tomtom215/camgrid/internal/stream"
	"github.com/tomtom215/camgrid/internal/timeline"
	"github.com/tomtom215/camgrid/internal/websocket"
)

// ErrLive is returned by transport controls while the timeline is live.
var ErrLive = errors.New("timeline is live")

// ErrInvalidLayout is returned by SetLayout for an empty or oversized grid.
var ErrInvalidLayout = errors.New("invalid grid layout")

// Config holds grid layout and display settings.
type Config struct {
	Rows     int
	Cols     int
	MaxCells int

	// PollInterval is the display refresh period.
	PollInterval time.Duration

	// PositionInterval throttles cell_position pushes per cell.
	PositionInterval time.Duration

	// ThumbnailSlots caps thumbnail pipelines across every session.
	ThumbnailSlots int

	Cell cell.Config
}

// DefaultConfig returns a 2x2 grid refreshed at ~30Hz.
func DefaultConfig() Config {
	return Config{
		Rows:             2,
		Cols:             2,
		MaxCells:         64,
		PollInterval:     33 * time.Millisecond,
		PositionInterval: 250 * time.Millisecond,
		ThumbnailSlots:   4,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Rows <= 0 {
		c.Rows = def.Rows
	}
	if c.Cols <= 0 {
		c.Cols = def.Cols
	}
	if c.MaxCells <= 0 {
		c.MaxCells = def.MaxCells
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.PositionInterval <= 0 {
		c.PositionInterval = def.PositionInterval
	}
	if c.ThumbnailSlots <= 0 {
		c.ThumbnailSlots = def.ThumbnailSlots
	}
	return c
}

// Publisher receives grid events for remote renderers. *websocket.Hub
// implements it.
type Publisher interface {
	Publish(messageType string, data interface{})
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, interface{}) {}

// Option customizes a Grid.
type Option func(*Grid)

// WithPublisher sends status, position and mode events to p.
func WithPublisher(p Publisher) Option {
	return func(g *Grid) {
		if p != nil {
			g.pub = p
		}
	}
}

// WithRenderer adds a local renderer that receives every cell's output.
func WithRenderer(r cell.Renderer) Option {
	return func(g *Grid) { g.renderer = r }
}

// WithEvents supplies event markers to playback sessions.
func WithEvents(src directory.EventSource) Option {
	return func(g *Grid) { g.events = src }
}

// WithClock replaces time.Now for cell mode decisions and throttling.
func WithClock(now func() time.Time) Option {
	return func(g *Grid) {
		if now != nil {
			g.now = now
		}
	}
}

// Grid owns the display cells and keeps them bound to the shared cursor.
//
// Lock order is grid, then cursor, then cell. Cell output reaches the
// grid only through Poll, which runs without the grid lock.
type Grid struct {
	cfg        Config
	pool       *stream.Pool
	dec        decoder.Decoder
	dir        directory.Directory
	events     directory.EventSource
	cursor     *timeline.Cursor
	pub        Publisher
	renderer   cell.Renderer
	thumbSlots semaphore.Semaphore
	now        func() time.Time
	log        zerolog.Logger

	mu    sync.Mutex
	cells []*cell.Cell
	rows  int
	cols  int

	selected atomic.Int64
	feed     *feed
}

// New creates a grid with cfg.Rows x cfg.Cols empty cells bound to cursor.
func New(pool *stream.Pool, dec decoder.Decoder, dir directory.Directory, cursor *timeline.Cursor, cfg Config, opts ...Option) *Grid {
	cfg = cfg.withDefaults()
	g := &Grid{
		cfg:        cfg,
		pool:       pool,
		dec:        dec,
		dir:        dir,
		cursor:     cursor,
		pub:        nopPublisher{},
		thumbSlots: semaphore.New(cfg.ThumbnailSlots),
		now:        time.Now,
		log:        logging.Component("grid"),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.selected.Store(-1)
	g.feed = newFeed(g.pub, cursor, &g.selected, cfg.PositionInterval, g.now)

	cursor.OnModeChange(func(mode models.CellMode) {
		g.pub.Publish(websocket.MessageTypeTimelineMode, models.TimelineModeEvent{
			Mode:     mode,
			Position: cursor.Position(),
		})
	})

	g.mu.Lock()
	g.resizeLocked(cfg.Rows, cfg.Cols)
	g.mu.Unlock()
	return g
}

// SetLayout resizes the grid. Cells that survive keep their camera;
// cameras from removed cells move to the first empty surviving cells and
// are dropped when none are left.
func (g *Grid) SetLayout(rows, cols int) error {
	if rows <= 0 || cols <= 0 || rows*cols > g.cfg.MaxCells {
		return fmt.Errorf("%w: %dx%d must be between 1 and %d cells", ErrInvalidLayout, rows, cols, g.cfg.MaxCells)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.resizeLocked(rows, cols)
	return nil
}

func (g *Grid) resizeLocked(rows, cols int) {
	count := rows * cols
	type binding struct {
		cam *models.Camera
		dev *models.Device
	}
	var displaced []binding

	if count < len(g.cells) {
		for _, c := range g.cells[count:] {
			if cam := c.Camera(); cam != nil {
				displaced = append(displaced, binding{cam, c.Device()})
			}
			g.cursor.Unbind(c)
			c.Close()
		}
		g.cells = g.cells[:count]
	}
	for i := len(g.cells); i < count; i++ {
		c := cell.New(i, g.pool, g.dec, g.cfg.Cell, g.cellOptions()...)
		g.cells = append(g.cells, c)
		g.cursor.Bind(c)
	}

	for _, b := range displaced {
		idx := g.firstEmptyLocked()
		if idx < 0 {
			g.log.Warn().Str("camera", b.cam.ID).Msg("No room for camera after layout change")
			continue
		}
		g.cells[idx].SetCamera(b.cam, b.dev)
	}

	if int(g.selected.Load()) >= count {
		g.selected.Store(-1)
	}
	g.rows, g.cols = rows, cols
	g.log.Info().Int("rows", rows).Int("cols", cols).Msg("Grid layout set")
}

func (g *Grid) cellOptions() []cell.Option {
	renderer := cell.Renderer(g.feed)
	if g.renderer != nil {
		renderer = cell.MultiRenderer{g.feed, g.renderer}
	}
	opts := []cell.Option{
		cell.WithRenderer(renderer),
		cell.WithThumbnailSlots(g.thumbSlots),
		cell.WithClock(g.now),
	}
	if g.events != nil {
		opts = append(opts, cell.WithEvents(g.events))
	}
	return opts
}

// Layout returns the grid dimensions.
func (g *Grid) Layout() (rows, cols int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rows, g.cols
}

// AddCamera places a camera in a cell and returns the index used. A
// negative index picks the selected cell if it is empty, then the first
// empty cell, then cell 0.
func (g *Grid) AddCamera(cameraID string, index int) (int, error) {
	cam, dev, err := directory.Resolve(g.dir, cameraID)
	if err != nil {
		return -1, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if index >= len(g.cells) {
		return -1, fmt.Errorf("%w: %d", models.ErrCellIndex, index)
	}
	if index < 0 {
		index = g.pickCellLocked()
	}
	g.cells[index].SetCamera(cam, dev)
	g.log.Info().Str("camera", cameraID).Int("cell", index).Msg("Camera added to grid")
	return index, nil
}

func (g *Grid) pickCellLocked() int {
	if sel := int(g.selected.Load()); sel >= 0 && sel < len(g.cells) && g.cells[sel].Camera() == nil {
		return sel
	}
	if idx := g.firstEmptyLocked(); idx >= 0 {
		return idx
	}
	return 0
}

func (g *Grid) firstEmptyLocked() int {
	for i, c := range g.cells {
		if c.Camera() == nil {
			return i
		}
	}
	return -1
}

// RemoveCamera clears a cell.
func (g *Grid) RemoveCamera(index int) error {
	c, err := g.Cell(index)
	if err != nil {
		return err
	}
	c.Clear()
	return nil
}

// SwapCells exchanges the cameras of two cells.
func (g *Grid) SwapCells(from, to int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkIndexLocked(from); err != nil {
		return err
	}
	if err := g.checkIndexLocked(to); err != nil {
		return err
	}
	if from == to {
		return nil
	}

	a, b := g.cells[from], g.cells[to]
	camA, devA := a.Camera(), a.Device()
	camB, devB := b.Camera(), b.Device()
	a.SetCamera(camB, devB)
	b.SetCamera(camA, devA)
	return nil
}

// SelectCell selects a cell and refreshes its live lease. A negative
// index clears the selection.
func (g *Grid) SelectCell(index int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if index >= len(g.cells) {
		return fmt.Errorf("%w: %d", models.ErrCellIndex, index)
	}
	if index < 0 {
		index = -1
	}

	prev := int(g.selected.Swap(int64(index)))
	if prev >= 0 && prev < len(g.cells) && prev != index {
		g.cells[prev].Select(false)
	}
	if index >= 0 {
		g.cells[index].Select(true)
	}
	return nil
}

// Selected returns the selected cell index, or -1.
func (g *Grid) Selected() int {
	return int(g.selected.Load())
}

// TogglePlay flips every playback cell between playing and paused. It
// fails while the timeline is live.
func (g *Grid) TogglePlay() error {
	if g.cursor.IsLive() {
		return ErrLive
	}
	for _, c := range g.snapshotCells() {
		if c.Mode() != models.ModePlayback {
			continue
		}
		if err := c.TogglePlay(); err != nil && !errors.Is(err, cell.ErrNotPlayback) {
			return fmt.Errorf("cell %d: %w", c.Index(), err)
		}
	}
	return nil
}

// SetSpeed sets the rate of every playback cell and returns how many
// cells took it.
func (g *Grid) SetSpeed(speed float64) int {
	n := 0
	for _, c := range g.snapshotCells() {
		if err := c.SetSpeed(speed); err == nil {
			n++
		}
	}
	return n
}

// CameraCount returns how many cells have a camera.
func (g *Grid) CameraCount() int {
	n := 0
	for _, c := range g.snapshotCells() {
		if c.Camera() != nil {
			n++
		}
	}
	return n
}

// Cell returns the cell at index.
func (g *Grid) Cell(index int) (*cell.Cell, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkIndexLocked(index); err != nil {
		return nil, err
	}
	return g.cells[index], nil
}

// Cells returns a snapshot of every cell.
func (g *Grid) Cells() []models.CellSnapshot {
	cells := g.snapshotCells()
	out := make([]models.CellSnapshot, len(cells))
	for i, c := range cells {
		out[i] = c.Snapshot()
	}
	return out
}

// Snapshot returns the API view of the grid.
func (g *Grid) Snapshot() models.LayoutSnapshot {
	rows, cols := g.Layout()
	cells := g.Cells()
	cameras := 0
	for _, c := range cells {
		if c.CameraID != "" {
			cameras++
		}
	}
	return models.LayoutSnapshot{
		Rows:     rows,
		Cols:     cols,
		Selected: g.Selected(),
		Cameras:  cameras,
		Cells:    cells,
	}
}

// Cursor returns the shared timeline cursor.
func (g *Grid) Cursor() *timeline.Cursor { return g.cursor }

// Poll lets every cell deliver its pending output.
func (g *Grid) Poll() {
	for _, c := range g.snapshotCells() {
		c.Poll()
	}
}

// Serve polls cells every PollInterval until ctx is done. It implements
// suture.Service.
func (g *Grid) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	g.log.Debug().Dur("interval", g.cfg.PollInterval).Msg("Grid display poller started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.Poll()
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (g *Grid) String() string {
	return "grid-display"
}

// StopAll clears every cell and releases every pooled stream.
func (g *Grid) StopAll() {
	for _, c := range g.snapshotCells() {
		c.Close()
	}
	g.pool.ReleaseAll()
	g.log.Info().Msg("All cells stopped")
}

func (g *Grid) snapshotCells() []*cell.Cell {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*cell.Cell(nil), g.cells...)
}

func (g *Grid) checkIndexLocked(index int) error {
	if index < 0 || index >= len(g.cells) {
		return fmt.Errorf("%w: %d", models.ErrCellIndex, index)
	}
	return nil
}
