// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/camgrid/internal/models"
)

// ErrFakeOpen is the default error returned by a Fake told to fail opens.
var ErrFakeOpen = errors.New("fake decoder: open failed")

// Fake is a scripted in-memory decoder. It backs the demo mode of the
// server and stands in for ffmpeg in tests.
//
// Frames are solid colour pictures whose first byte cycles with the frame
// sequence number, paced at FrameInterval.
type Fake struct {
	Width         int
	Height        int
	Rate          float64
	FrameInterval time.Duration
	OpenDelay     time.Duration

	mu          sync.Mutex
	failOpens   int
	openErr     error
	openHook    func(uri string) error
	readFailAt  int
	frameLimit  int
	hangReads   bool
	opened      []string
	pipelines   []*FakePipeline
	activeCount atomic.Int32
	released    atomic.Int32
	hung        atomic.Int32
}

// NewFake creates a fake decoder producing width x height frames at fps.
func NewFake(width, height int, fps float64) *Fake {
	interval := time.Duration(0)
	if fps > 0 {
		interval = time.Duration(float64(time.Second) / fps)
	}
	return &Fake{
		Width:         width,
		Height:        height,
		Rate:          fps,
		FrameInterval: interval,
	}
}

// FailNextOpens makes the next n Open calls fail.
func (f *Fake) FailNextOpens(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOpens = n
}

// FailAllOpens makes every Open fail with err until cleared with nil.
func (f *Fake) FailAllOpens(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr = err
}

// SetOpenHook installs a per-URI open check. A non-nil return fails the open.
func (f *Fake) SetOpenHook(hook func(uri string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openHook = hook
}

// FailReadsAfter makes every new pipeline fail its Read after n frames.
// Zero disables the failure.
func (f *Fake) FailReadsAfter(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readFailAt = n
}

// EndAfter makes new pipelines return io.EOF after n frames.
func (f *Fake) EndAfter(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frameLimit = n
}

// HangReads makes Read on new pipelines block until Release, ignoring its
// context, the way a wedged native decoder does.
func (f *Fake) HangReads() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hangReads = true
}

// HungReads returns how many Read calls are blocked by HangReads.
func (f *Fake) HungReads() int { return int(f.hung.Load()) }

// Open implements Decoder.
func (f *Fake) Open(ctx context.Context, uri string) (Pipeline, error) {
	f.mu.Lock()
	f.opened = append(f.opened, uri)
	delay := f.OpenDelay
	var err error
	switch {
	case f.failOpens > 0:
		f.failOpens--
		err = ErrFakeOpen
	case f.openErr != nil:
		err = f.openErr
	case f.openHook != nil:
		err = f.openHook(uri)
	}
	readFailAt, frameLimit, hang := f.readFailAt, f.frameLimit, f.hangReads
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", models.RedactURI(uri), err)
	}

	p := &FakePipeline{
		owner:      f,
		URI:        uri,
		width:      f.Width,
		height:     f.Height,
		fps:        f.Rate,
		interval:   f.FrameInterval,
		readFailAt: readFailAt,
		frameLimit: frameLimit,
		hang:       hang,
		done:       make(chan struct{}),
	}
	f.activeCount.Add(1)

	f.mu.Lock()
	f.pipelines = append(f.pipelines, p)
	f.mu.Unlock()
	return p, nil
}

// OpenCount returns how many times Open was called.
func (f *Fake) OpenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opened)
}

// OpenedURIs returns every URI passed to Open, in call order.
func (f *Fake) OpenedURIs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}

// Active returns the number of pipelines opened and not yet released.
func (f *Fake) Active() int { return int(f.activeCount.Load()) }

// Released returns the number of pipelines released.
func (f *Fake) Released() int { return int(f.released.Load()) }

// Pipelines returns every pipeline opened so far.
func (f *Fake) Pipelines() []*FakePipeline {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakePipeline(nil), f.pipelines...)
}

// FakePipeline is a pipeline returned by Fake.
type FakePipeline struct {
	owner *Fake
	URI   string

	width, height int
	fps           float64
	interval      time.Duration
	readFailAt    int
	frameLimit    int
	hang          bool

	mu         sync.Mutex
	seq        uint64
	bufferSize float64

	releaseOnce sync.Once
	done        chan struct{}
	released    atomic.Bool
}

func (p *FakePipeline) Read(ctx context.Context) (models.Frame, error) {
	if p.released.Load() {
		return models.Frame{}, ErrReleased
	}

	if p.hang {
		p.owner.hung.Add(1)
		<-p.done
		p.owner.hung.Add(-1)
		return models.Frame{}, ErrReleased
	}

	if p.interval > 0 {
		timer := time.NewTimer(p.interval)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-p.done:
			return models.Frame{}, ErrReleased
		case <-ctx.Done():
			return models.Frame{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.frameLimit > 0 && int(p.seq) >= p.frameLimit {
		return models.Frame{}, io.EOF
	}
	if p.readFailAt > 0 && int(p.seq) >= p.readFailAt {
		return models.Frame{}, ErrReadTimeout
	}

	p.seq++
	frame := models.NewFrame(p.width, p.height, time.Now())
	frame.Seq = p.seq
	frame.Keyframe = p.seq == 1
	shade := byte(p.seq)
	for i := 0; i < len(frame.Pix); i += 4 {
		frame.Pix[i] = shade
		frame.Pix[i+1] = shade
		frame.Pix[i+2] = shade
		frame.Pix[i+3] = 0xff
	}
	return frame, nil
}

func (p *FakePipeline) SetProperty(key Property, value float64) error {
	switch key {
	case PropBufferFrames, PropReadTimeout:
		p.mu.Lock()
		defer p.mu.Unlock()
		if key == PropBufferFrames {
			p.bufferSize = value
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedProperty, key)
	}
}

// BufferFrames returns the last PropBufferFrames value set.
func (p *FakePipeline) BufferFrames() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bufferSize
}

func (p *FakePipeline) FPS() float64 { return p.fps }

func (p *FakePipeline) Resolution() (int, int) { return p.width, p.height }

func (p *FakePipeline) Release() error {
	p.releaseOnce.Do(func() {
		p.released.Store(true)
		close(p.done)
		p.owner.activeCount.Add(-1)
		p.owner.released.Add(1)
	})
	return nil
}

// IsReleased reports whether Release has been called.
func (p *FakePipeline) IsReleased() bool { return p.released.Load() }
