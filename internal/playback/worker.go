// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package playback

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/camgrid/internal/decoder"
	"github.com/tomtom215/camgrid/internal/logging"
	"github.com/tomtom215/camgrid/internal/metrics"
	"github.com/tomtom215/camgrid/internal/models"
)

// transport owns the pipeline. It reopens on seek, reads and paces frames
// while playing, and idles otherwise.
func (s *Session) transport(ctx context.Context) {
	defer s.wg.Done()
	defer logging.Recover("playback", "transport")

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		select {
		case t := <-s.seekCh:
			s.reopen(ctx, t)
			failures = 0
			continue
		default:
		}

		s.mu.Lock()
		active := s.playing && !s.failed
		s.mu.Unlock()

		if !active {
			select {
			case <-ctx.Done():
				return
			case t := <-s.seekCh:
				s.reopen(ctx, t)
				failures = 0
			case <-s.kickCh:
			}
			continue
		}

		if s.needsReopen() {
			s.reopen(ctx, s.Position())
			failures = 0
			continue
		}

		if s.step(ctx, &failures) {
			s.pace(ctx)
		}
	}
}

// step reads one frame and advances the position by speed/fps of media
// time. It reports whether a frame was shown.
func (s *Session) step(ctx context.Context, failures *int) bool {
	p := s.pipeline()
	if p == nil {
		return false
	}

	readCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	frame, err := p.Read(readCtx)
	cancel()

	if err != nil {
		switch {
		case ctx.Err() != nil, errors.Is(err, decoder.ErrReleased):
			return false
		case isEOF(err):
			s.finish()
			return false
		}

		*failures++
		if *failures == 1 {
			s.setBuffering(true)
		}
		if *failures >= s.cfg.MaxReadFailures {
			s.log.Warn().Err(err).Int("failures", *failures).Msg("Recorded stream stalled, reopening")
			*failures = 0
			s.markStale()
			return false
		}
		s.wait(ctx, s.cfg.ReadRetryDelay)
		return false
	}
	*failures = 0
	s.setBuffering(false)

	// A seek or pause that landed while Read was blocked wins over this frame.
	if len(s.seekCh) > 0 || s.isStale() {
		return false
	}

	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return false
	}
	pos := s.position.Add(time.Duration(float64(time.Second) * s.speed / s.fps))
	ended := false
	if !pos.Before(s.window.End) {
		pos = s.window.End
		ended = true
		s.playing = false
		s.state = models.SessionPaused
	}
	s.position = pos
	s.current = frame
	s.frameW, s.frameH = frame.Width, frame.Height
	s.mu.Unlock()

	s.frames.Put(pos, frame, frame.Keyframe)
	s.emitFrame(frame, pos)
	s.emitPosition(pos)
	if ended {
		s.log.Debug().Time("position", pos).Msg("Reached end of window")
		s.emitStatus(models.StatusEnded, "")
	}
	return true
}

// pace sleeps one frame interval scaled by speed. Play, pause, speed
// changes and seeks cut it short.
func (s *Session) pace(ctx context.Context) {
	s.mu.Lock()
	interval := time.Duration(float64(time.Second) / (s.fps * s.speed))
	s.mu.Unlock()

	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.kickCh:
	case <-ctx.Done():
	}
}

// reopen replaces the pipeline with one starting at t and shows its first
// frame. Open failures park the session in the error state without retry.
func (s *Session) reopen(ctx context.Context, t time.Time) {
	s.releasePipeline()

	s.mu.Lock()
	uri := s.uri
	s.mu.Unlock()

	openCtx, cancel := context.WithTimeout(ctx, s.cfg.OpenTimeout)
	started := time.Now()
	p, err := s.dec.Open(openCtx, models.WithStartTime(uri, t))
	cancel()
	if ctx.Err() != nil {
		if p != nil {
			_ = p.Release()
		}
		return
	}
	metrics.RecordPlaybackOpen(time.Since(started), err)

	if err != nil {
		s.mu.Lock()
		s.failed = true
		s.state = models.SessionError
		s.mu.Unlock()
		s.log.Warn().Err(err).Time("position", t).Msg("Failed to open recording")
		s.emitStatus(models.StatusError, err.Error())
		return
	}

	_ = p.SetProperty(decoder.PropBufferFrames, float64(s.cfg.BufferFrames))
	_ = p.SetProperty(decoder.PropReadTimeout, s.cfg.ReadTimeout.Seconds())
	if !s.adopt(p) {
		_ = p.Release()
		return
	}

	s.mu.Lock()
	if fps := p.FPS(); fps > 0 {
		s.fps = fps
	}
	if w, h := p.Resolution(); w > 0 && h > 0 {
		s.frameW, s.frameH = w, h
	}
	playing := s.playing
	if s.state == models.SessionError || s.state == models.SessionLoading {
		s.state = models.SessionPaused
	}
	if playing {
		s.state = models.SessionPlaying
	}
	s.mu.Unlock()

	readCtx, cancelRead := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	frame, err := p.Read(readCtx)
	cancelRead()
	switch {
	case err == nil:
		if len(s.seekCh) == 0 {
			s.frames.Put(t, frame, frame.Keyframe)
			s.setCurrent(frame)
			s.emitFrame(frame, t)
			s.emitPosition(t)
		}
	case isEOF(err):
		s.finish()
		return
	case ctx.Err() == nil && !errors.Is(err, decoder.ErrReleased):
		s.setBuffering(true)
	}
	if ctx.Err() != nil {
		return
	}

	if playing {
		s.emitStatus(models.StatusPlaying, "")
	} else {
		s.emitStatus(models.StatusPaused, "")
	}
}

// finish handles the end of the recorded stream.
func (s *Session) finish() {
	s.mu.Lock()
	wasPlaying := s.playing
	s.playing = false
	if s.state == models.SessionPlaying {
		s.state = models.SessionPaused
	}
	s.mu.Unlock()
	if wasPlaying {
		s.emitStatus(models.StatusEnded, "")
	}
}

func (s *Session) setBuffering(on bool) {
	s.mu.Lock()
	changed := s.buffering != on
	s.buffering = on
	playing := s.playing
	s.mu.Unlock()
	if !changed {
		return
	}
	if on {
		s.emitStatus(models.StatusBuffering, "")
	} else if playing {
		s.emitStatus(models.StatusPlaying, "")
	}
}

func (s *Session) pipeline() decoder.Pipeline {
	s.pipeMu.Lock()
	defer s.pipeMu.Unlock()
	return s.pipe
}

func (s *Session) needsReopen() bool {
	s.pipeMu.Lock()
	defer s.pipeMu.Unlock()
	return s.pipe == nil || s.pipeStale
}

func (s *Session) isStale() bool {
	s.pipeMu.Lock()
	defer s.pipeMu.Unlock()
	return s.pipeStale
}

// adopt installs p unless the session has been stopped meanwhile.
func (s *Session) adopt(p decoder.Pipeline) bool {
	s.pipeMu.Lock()
	defer s.pipeMu.Unlock()
	if s.closed {
		return false
	}
	s.pipe = p
	s.pipeStale = false
	return true
}

func (s *Session) releasePipeline() {
	s.pipeMu.Lock()
	p := s.pipe
	s.pipe = nil
	s.pipeStale = false
	s.pipeMu.Unlock()
	if p != nil {
		_ = p.Release()
	}
}

// wait sleeps for d unless ctx ends or the session is kicked.
func (s *Session) wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.kickCh:
	case <-ctx.Done():
	}
}

// prefetch fills the thumbnail cache across the window, one short-lived
// pipeline per thumbnail.
func (s *Session) prefetch(ctx context.Context, uri string, window models.Window) {
	defer s.wg.Done()
	defer logging.Recover("playback", "prefetch")

	step := s.cfg.PrefetchStep(window.Duration())
	generated, failed := 0, 0

	t := window.Start
	for t.Before(window.End) {
		if ctx.Err() != nil {
			return
		}
		if s.thumbs.Contains(t) {
			metrics.RecordThumbnail("skipped")
			t = t.Add(step)
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if err := s.thumbSlots.Acquire(ctx, 1); err != nil {
			return
		}
		at := t
		frame, err := s.breaker.Execute(func() (models.Frame, error) {
			return s.grabThumbnail(ctx, uri, at)
		})
		s.thumbSlots.Release(1)

		switch {
		case err == nil:
			s.thumbs.Put(at, frame)
			generated++
			metrics.RecordThumbnail("generated")
		case ctx.Err() != nil:
			return
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			// retry the same timestamp once the breaker lets a probe through
			metrics.RecordThumbnail("skipped")
			timer := time.NewTimer(s.cfg.BreakerTimeout)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
			continue
		default:
			failed++
			metrics.RecordThumbnail("failed")
		}
		t = t.Add(step)
	}

	s.log.Debug().
		Int("generated", generated).
		Int("failed", failed).
		Dur("step", step).
		Msg("Thumbnail prefetch complete")
}

func (s *Session) grabThumbnail(ctx context.Context, uri string, t time.Time) (models.Frame, error) {
	openCtx, cancel := context.WithTimeout(ctx, s.cfg.OpenTimeout)
	defer cancel()
	p, err := s.dec.Open(openCtx, models.WithStartTime(uri, t))
	if err != nil {
		return models.Frame{}, err
	}
	defer p.Release()

	readCtx, cancelRead := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancelRead()
	// a Read that ignores its context is unblocked by releasing the pipeline
	stop := context.AfterFunc(readCtx, func() { _ = p.Release() })
	defer stop()
	return p.Read(readCtx)
}
