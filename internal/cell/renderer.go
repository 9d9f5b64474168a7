// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package cell

import (
	"time"

	"github.com/tomtom215/camgrid/internal/models"
)

// Renderer displays what cells decide to show. Cells only call it from
// Poll, so a renderer sees each cell's updates on a single goroutine.
type Renderer interface {
	OnFrame(cell int, frame models.Frame, ts time.Time)
	OnStatus(cell int, status models.Status, detail string)
	OnPosition(cell int, ts time.Time)
}

// UpdateKind tags a non-frame update.
type UpdateKind int

const (
	UpdateStatus UpdateKind = iota
	UpdatePosition
)

// FrameUpdate is a frame delivered through a ChannelRenderer.
type FrameUpdate struct {
	Cell      int
	Frame     models.Frame
	Timestamp time.Time
}

// Update is a status or position change delivered through a ChannelRenderer.
type Update struct {
	Kind      UpdateKind
	Cell      int
	Status    models.Status
	Detail    string
	Timestamp time.Time
}

// ChannelRenderer queues renderer calls on bounded channels. When a
// channel is full the oldest queued item is dropped, so a slow consumer
// sees fresh frames rather than blocking the poller.
type ChannelRenderer struct {
	frames  chan FrameUpdate
	updates chan Update
}

// NewChannelRenderer creates a renderer with the given queue depths.
func NewChannelRenderer(frameDepth, updateDepth int) *ChannelRenderer {
	if frameDepth < 1 {
		frameDepth = 1
	}
	if updateDepth < 1 {
		updateDepth = 1
	}
	return &ChannelRenderer{
		frames:  make(chan FrameUpdate, frameDepth),
		updates: make(chan Update, updateDepth),
	}
}

// Frames returns the frame queue.
func (r *ChannelRenderer) Frames() <-chan FrameUpdate { return r.frames }

// Updates returns the status and position queue.
func (r *ChannelRenderer) Updates() <-chan Update { return r.updates }

func (r *ChannelRenderer) OnFrame(cell int, frame models.Frame, ts time.Time) {
	pushLatest(r.frames, FrameUpdate{Cell: cell, Frame: frame, Timestamp: ts})
}

func (r *ChannelRenderer) OnStatus(cell int, status models.Status, detail string) {
	pushLatest(r.updates, Update{Kind: UpdateStatus, Cell: cell, Status: status, Detail: detail})
}

func (r *ChannelRenderer) OnPosition(cell int, ts time.Time) {
	pushLatest(r.updates, Update{Kind: UpdatePosition, Cell: cell, Timestamp: ts})
}

// pushLatest sends v, dropping the oldest item when ch is full.
func pushLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// MultiRenderer fans every call out to each renderer in order.
type MultiRenderer []Renderer

func (m MultiRenderer) OnFrame(cell int, frame models.Frame, ts time.Time) {
	for _, r := range m {
		r.OnFrame(cell, frame, ts)
	}
}

func (m MultiRenderer) OnStatus(cell int, status models.Status, detail string) {
	for _, r := range m {
		r.OnStatus(cell, status, detail)
	}
}

func (m MultiRenderer) OnPosition(cell int, ts time.Time) {
	for _, r := range m {
		r.OnPosition(cell, ts)
	}
}

// nopRenderer discards everything.
type nopRenderer struct{}

func (nopRenderer) OnFrame(int, models.Frame, time.Time) {}
func (nopRenderer) OnStatus(int, models.Status, string) {}
func (nopRenderer) OnPosition(int, time.Time) {}
