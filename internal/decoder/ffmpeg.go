// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package decoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/camgrid/internal/logging"
	"github.com/tomtom215/camgrid/internal/models"
)

// FFmpegConfig configures the ffmpeg subprocess backend.
type FFmpegConfig struct {
	FFmpegPath    string
	FFprobePath   string
	RTSPTransport string
	ReadTimeout   time.Duration
}

// DefaultFFmpegConfig returns settings that work with a stock ffmpeg install.
func DefaultFFmpegConfig() FFmpegConfig {
	return FFmpegConfig{
		FFmpegPath:    "ffmpeg",
		FFprobePath:   "ffprobe",
		RTSPTransport: "tcp",
		ReadTimeout:   10 * time.Second,
	}
}

// FFmpeg decodes through an ffmpeg child process writing raw RGBA frames to
// a pipe. Stream geometry comes from a preceding ffprobe call.
type FFmpeg struct {
	cfg FFmpegConfig
}

// NewFFmpeg creates an ffmpeg-backed decoder.
func NewFFmpeg(cfg FFmpegConfig) *FFmpeg {
	def := DefaultFFmpegConfig()
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = def.FFmpegPath
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = def.FFprobePath
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	return &FFmpeg{cfg: cfg}
}

// Open probes the source and starts the decoding process. ctx bounds the
// probe; the process itself outlives ctx until Release.
func (d *FFmpeg) Open(ctx context.Context, uri string) (Pipeline, error) {
	width, height, fps, err := d.probe(ctx, uri)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open %s: %w", models.RedactURI(uri), err)
	}

	//nolint:gosec // binary path comes from operator config, URI is passed as a single argument
	cmd := exec.Command(d.cfg.FFmpegPath, d.inputArgs(uri,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-an",
		"pipe:1",
	)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	var stderr tailBuffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	p := &ffmpegPipeline{
		cmd:         cmd,
		stdout:      stdout,
		stderr:      &stderr,
		width:       width,
		height:      height,
		fps:         fps,
		frameSize:   width * height * 4,
		readTimeout: d.cfg.ReadTimeout,
	}
	p.reader = bufio.NewReaderSize(stdout, p.frameSize)

	logging.Debug().
		Str("uri", models.RedactURI(uri)).
		Int("width", width).
		Int("height", height).
		Float64("fps", fps).
		Msg("ffmpeg pipeline opened")

	return p, nil
}

func (d *FFmpeg) inputArgs(uri string, output ...string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if strings.HasPrefix(uri, "rtsp://") && d.cfg.RTSPTransport != "" {
		args = append(args, "-rtsp_transport", d.cfg.RTSPTransport)
	}
	args = append(args, "-i", uri)
	return append(args, output...)
}

func (d *FFmpeg) probe(ctx context.Context, uri string) (width, height int, fps float64, err error) {
	args := []string{"-v", "error"}
	if strings.HasPrefix(uri, "rtsp://") && d.cfg.RTSPTransport != "" {
		args = append(args, "-rtsp_transport", d.cfg.RTSPTransport)
	}
	args = append(args,
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate",
		"-of", "csv=p=0",
		uri,
	)

	//nolint:gosec // see Open
	out, err := exec.CommandContext(ctx, d.cfg.FFprobePath, args...).Output()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("ffprobe %s: %w", models.RedactURI(uri), err)
	}
	return parseProbe(out)
}

// parseProbe reads "width,height,num/den" from ffprobe csv output.
func parseProbe(out []byte) (width, height int, fps float64, err error) {
	line := strings.TrimSpace(string(out))
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	fields := strings.Split(line, ",")
	if len(fields) < 3 {
		return 0, 0, 0, fmt.Errorf("unexpected ffprobe output: %q", line)
	}

	width, err = strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || width <= 0 {
		return 0, 0, 0, fmt.Errorf("invalid width %q", fields[0])
	}
	height, err = strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil || height <= 0 {
		return 0, 0, 0, fmt.Errorf("invalid height %q", fields[1])
	}

	rate := strings.Split(strings.TrimSpace(fields[2]), "/")
	num, _ := strconv.ParseFloat(rate[0], 64)
	den := 1.0
	if len(rate) == 2 {
		den, _ = strconv.ParseFloat(rate[1], 64)
	}
	if den > 0 {
		fps = num / den
	}
	return width, height, fps, nil
}

type ffmpegPipeline struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer

	readMu sync.Mutex
	reader *bufio.Reader
	reads  bool

	width, height int
	fps           float64
	frameSize     int
	readTimeout   time.Duration
	seq           uint64

	releaseOnce sync.Once
	released    atomic.Bool
	timedOut    atomic.Bool
}

func (p *ffmpegPipeline) Read(ctx context.Context) (models.Frame, error) {
	if p.released.Load() {
		return models.Frame{}, ErrReleased
	}

	p.readMu.Lock()
	defer p.readMu.Unlock()
	if p.released.Load() {
		return models.Frame{}, ErrReleased
	}
	p.reads = true

	timer := time.AfterFunc(p.readTimeout, func() {
		p.timedOut.Store(true)
		p.kill()
	})
	stop := context.AfterFunc(ctx, p.kill)
	defer func() {
		timer.Stop()
		stop()
	}()

	frame := models.NewFrame(p.width, p.height, time.Now())
	if _, err := io.ReadFull(p.reader, frame.Pix); err != nil {
		switch {
		case p.timedOut.Load():
			return models.Frame{}, ErrReadTimeout
		case p.released.Load():
			return models.Frame{}, ErrReleased
		case ctx.Err() != nil:
			return models.Frame{}, ctx.Err()
		case errors.Is(err, io.ErrUnexpectedEOF):
			return models.Frame{}, io.EOF
		case errors.Is(err, io.EOF):
			if msg := p.stderr.String(); msg != "" {
				return models.Frame{}, fmt.Errorf("ffmpeg exited: %s", msg)
			}
			return models.Frame{}, io.EOF
		default:
			return models.Frame{}, err
		}
	}

	p.seq++
	frame.Seq = p.seq
	return frame, nil
}

func (p *ffmpegPipeline) SetProperty(key Property, value float64) error {
	switch key {
	case PropBufferFrames:
		p.readMu.Lock()
		defer p.readMu.Unlock()
		if p.reads || value < 1 {
			return nil
		}
		p.reader = bufio.NewReaderSize(p.stdout, int(value)*p.frameSize)
		return nil
	case PropReadTimeout:
		p.readMu.Lock()
		defer p.readMu.Unlock()
		if value > 0 {
			p.readTimeout = time.Duration(value * float64(time.Second))
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedProperty, key)
	}
}

func (p *ffmpegPipeline) FPS() float64 { return p.fps }

func (p *ffmpegPipeline) Resolution() (int, int) { return p.width, p.height }

func (p *ffmpegPipeline) Release() error {
	var err error
	p.releaseOnce.Do(func() {
		p.released.Store(true)
		p.kill()

		// Wait closes stdout, so it must not run while a Read is still
		// draining the pipe. The kill above ends any such Read.
		p.readMu.Lock()
		defer p.readMu.Unlock()
		_ = p.stdout.Close()
		if werr := p.cmd.Wait(); werr != nil && !isKilled(werr) {
			err = werr
		}
	})
	return err
}

func (p *ffmpegPipeline) kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

func isKilled(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// tailBuffer keeps the last few hundred bytes of ffmpeg's stderr.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

const tailLimit = 512

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - tailLimit; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}
