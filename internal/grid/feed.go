// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package grid

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/camgrid/internal/models"
	"github.com/tomtom215/camgrid/internal/timeline"
	"github.com/tomtom215/camgrid/internal/websocket"
)

// feed is the cell renderer that forwards status and position to the
// publisher and lets the cursor follow the selected cell.
type feed struct {
	pub      Publisher
	cursor   *timeline.Cursor
	selected *atomic.Int64
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	sent map[int]time.Time
}

func newFeed(pub Publisher, cursor *timeline.Cursor, selected *atomic.Int64, interval time.Duration, now func() time.Time) *feed {
	return &feed{
		pub:      pub,
		cursor:   cursor,
		selected: selected,
		interval: interval,
		now:      now,
		sent:     make(map[int]time.Time),
	}
}

// OnFrame is a no-op: pixels stay with local renderers.
func (f *feed) OnFrame(int, models.Frame, time.Time) {}

func (f *feed) OnStatus(index int, status models.Status, detail string) {
	f.pub.Publish(websocket.MessageTypeCellStatus, models.CellStatusEvent{
		Index:  index,
		Status: status,
		Detail: detail,
	})
}

func (f *feed) OnPosition(index int, ts time.Time) {
	if int(f.selected.Load()) == index {
		f.cursor.Advance(ts)
	}

	now := f.now()
	f.mu.Lock()
	last, ok := f.sent[index]
	if ok && now.Sub(last) < f.interval {
		f.mu.Unlock()
		return
	}
	f.sent[index] = now
	f.mu.Unlock()

	f.pub.Publish(websocket.MessageTypeCellPosition, models.CellPositionEvent{
		Index:    index,
		Position: ts,
	})
}
