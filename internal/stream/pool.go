// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package stream

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/camgrid/internal/decoder"
	"github.com/tomtom215/camgrid/internal/logging"
	"github.com/tomtom215/camgrid/internal/metrics"
	"github.com/tomtom215/camgrid/internal/models"
	"github.com/tomtom215/camgrid/internal/validation"
)

// DefaultMaxStreams bounds concurrent live pipelines.
const DefaultMaxStreams = 16

// poolEntry is a node in the pool's recency list.
type poolEntry struct {
	identity string
	conn     *Connection
	prev     *poolEntry
	next     *poolEntry
}

// Pool holds at most MaxStreams live connections keyed by identity and
// evicts the least recently used one to make room.
//
// Key features:
//   - Acquire on an existing identity reuses the connection and promotes it
//   - Evicted and released connections stop in the background; a new
//     connection opens nothing until enough of them have released their
//     pipelines to stay within MaxStreams
//   - Structural changes serialize on one lock; frame reads bypass it
//
// Cells hold only the identity string; the pool owns every pipeline.
type Pool struct {
	mu sync.Mutex

	max int
	dec decoder.Decoder
	cfg ConnectionConfig
	log zerolog.Logger

	items map[string]*poolEntry

	// head.next is the most recently used, tail.prev the least
	head *poolEntry
	tail *poolEntry

	// index mirrors items for the lock-free frame read path
	index sync.Map

	// retiring holds connections removed from the pool whose Stop has not
	// returned yet
	retiring map[chan struct{}]struct{}
}

// NewPool creates a pool. maxStreams <= 0 selects DefaultMaxStreams.
func NewPool(dec decoder.Decoder, maxStreams int, cfg ConnectionConfig) *Pool {
	if maxStreams <= 0 {
		maxStreams = DefaultMaxStreams
	}
	p := &Pool{
		max:   maxStreams,
		dec:   dec,
		cfg:   cfg.withDefaults(),
		log:   logging.Component("stream_pool"),
		items: make(map[string]*poolEntry, maxStreams),
		head:  &poolEntry{},
		tail:  &poolEntry{},

		retiring: make(map[chan struct{}]struct{}),
	}
	p.head.next = p.tail
	p.tail.prev = p.head
	return p
}

// MaxStreams returns the pool capacity.
func (p *Pool) MaxStreams() int { return p.max }

// Acquire leases the stream described by desc for owner. If the identity is
// already pooled the connection is promoted and l is attached to it;
// otherwise least recently used connections are evicted until there is
// room and a new connection is started. It returns false only when desc is
// invalid.
func (p *Pool) Acquire(desc models.SourceDescriptor, owner string, l Listener) bool {
	if err := validation.ValidateStruct(&desc); err != nil {
		p.log.Warn().Err(err).Str("identity", desc.Identity).Msg("Rejected invalid source descriptor")
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, exists := p.items[desc.Identity]; exists {
		p.moveToFront(entry)
		entry.conn.AddListener(owner, l)
		return true
	}

	for len(p.items) >= p.max {
		p.evictOldest()
	}

	conn := NewConnection(desc, p.dec, p.cfg)
	conn.AddListener(owner, l)

	entry := &poolEntry{identity: desc.Identity, conn: conn}
	p.addToFront(entry)
	p.items[desc.Identity] = entry
	p.index.Store(desc.Identity, conn)
	metrics.StreamsActive.Set(float64(len(p.items)))

	var wait []<-chan struct{}
	if len(p.items)+len(p.retiring) > p.max {
		wait = p.retiringLocked()
	}
	conn.startAfter(wait)

	p.log.Info().
		Str("identity", desc.Identity).
		Str("quality", string(desc.Quality)).
		Int("active", len(p.items)).
		Msg("Stream acquired")
	return true
}

// Release removes the connection for identity and stops it in the
// background. It reports whether the identity was pooled.
func (p *Pool) Release(identity string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, exists := p.items[identity]
	if !exists {
		return false
	}
	p.retireLocked(entry)
	metrics.StreamsActive.Set(float64(len(p.items)))

	p.log.Debug().Str("identity", identity).Int("active", len(p.items)).Msg("Stream released")
	return true
}

// Detach removes owner's listener without stopping the shared connection.
func (p *Pool) Detach(identity, owner string) {
	if conn, ok := p.lookup(identity); ok {
		conn.RemoveListener(owner)
	}
}

// ReleaseLease detaches owner from identity and stops the connection once
// no other owner holds it. It reports whether the connection was stopped.
func (p *Pool) ReleaseLease(identity, owner string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, exists := p.items[identity]
	if !exists {
		return false
	}
	entry.conn.RemoveListener(owner)
	if entry.conn.ListenerCount() > 0 {
		p.log.Debug().Str("identity", identity).Str("owner", owner).Msg("Lease dropped, stream still shared")
		return false
	}
	p.retireLocked(entry)
	metrics.StreamsActive.Set(float64(len(p.items)))

	p.log.Debug().Str("identity", identity).Int("active", len(p.items)).Msg("Stream released")
	return true
}

// ReleaseAll stops every pooled connection and waits until every
// pipeline, including those already stopping, has been released.
func (p *Pool) ReleaseAll() {
	p.mu.Lock()
	for entry := p.head.next; entry != p.tail; {
		next := entry.next
		p.retireLocked(entry)
		entry = next
	}
	pending := p.retiringLocked()
	metrics.StreamsActive.Set(0)
	p.mu.Unlock()

	for _, ch := range pending {
		<-ch
	}
	p.log.Info().Msg("All streams released")
}

// Touch marks identity as recently used. It reports whether it was pooled.
func (p *Pool) Touch(identity string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, exists := p.items[identity]
	if !exists {
		return false
	}
	p.moveToFront(entry)
	return true
}

// Contains reports whether identity is pooled.
func (p *Pool) Contains(identity string) bool {
	_, ok := p.lookup(identity)
	return ok
}

// LatestFrame returns a copy of the newest frame for identity without
// taking the pool lock.
func (p *Pool) LatestFrame(identity string) (models.Frame, bool) {
	conn, ok := p.lookup(identity)
	if !ok {
		return models.Frame{}, false
	}
	return conn.LatestFrame()
}

// StreamInfo returns a snapshot of the connection for identity.
func (p *Pool) StreamInfo(identity string) (models.StreamInfo, bool) {
	conn, ok := p.lookup(identity)
	if !ok {
		return models.StreamInfo{}, false
	}
	return conn.Info(), true
}

// ActiveCount returns the number of pooled connections.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Identities returns pooled identities from most to least recently used.
func (p *Pool) Identities() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.items))
	for entry := p.head.next; entry != p.tail; entry = entry.next {
		out = append(out, entry.identity)
	}
	return out
}

// Infos returns snapshots of every pooled connection, most recent first.
func (p *Pool) Infos() []models.StreamInfo {
	p.mu.Lock()
	conns := make([]*Connection, 0, len(p.items))
	for entry := p.head.next; entry != p.tail; entry = entry.next {
		conns = append(conns, entry.conn)
	}
	p.mu.Unlock()

	out := make([]models.StreamInfo, len(conns))
	for i, c := range conns {
		out[i] = c.Info()
	}
	return out
}

// String implements fmt.Stringer for log lines.
func (p *Pool) String() string {
	return fmt.Sprintf("StreamPool(%d/%d)", p.ActiveCount(), p.max)
}

func (p *Pool) lookup(identity string) (*Connection, bool) {
	v, ok := p.index.Load(identity)
	if !ok {
		return nil, false
	}
	return v.(*Connection), true
}

// Internal methods (must be called with lock held)

func (p *Pool) addToFront(entry *poolEntry) {
	entry.prev = p.head
	entry.next = p.head.next
	p.head.next.prev = entry
	p.head.next = entry
}

func (p *Pool) moveToFront(entry *poolEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	p.addToFront(entry)
}

func (p *Pool) removeEntry(entry *poolEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(p.items, entry.identity)
	p.index.Delete(entry.identity)
}

func (p *Pool) evictOldest() {
	oldest := p.tail.prev
	if oldest == p.head {
		return
	}
	p.retireLocked(oldest)
	metrics.StreamEvictions.Inc()

	p.log.Info().Str("identity", oldest.identity).Msg("Evicted least recently used stream")
}

// retireLocked removes entry and stops its connection in the background.
func (p *Pool) retireLocked(entry *poolEntry) {
	p.removeEntry(entry)
	done := make(chan struct{})
	p.retiring[done] = struct{}{}
	go func() {
		entry.conn.Stop()
		p.mu.Lock()
		delete(p.retiring, done)
		p.mu.Unlock()
		close(done)
	}()
}

func (p *Pool) retiringLocked() []<-chan struct{} {
	out := make([]<-chan struct{}, 0, len(p.retiring))
	for ch := range p.retiring {
		out = append(out, ch)
	}
	return out
}
