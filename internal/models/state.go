// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package models

import "time"

// ConnState is the lifecycle state of a live stream connection.
type ConnState int32

const (
	ConnIdle ConnState = iota
	ConnConnecting
	ConnConnected
	ConnReconnecting
	ConnFailed
)

func (s ConnState) String() string {
	switch s {
	case ConnIdle:
		return "idle"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnReconnecting:
		return "reconnecting"
	case ConnFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SessionState is the lifecycle state of a playback session.
type SessionState int32

const (
	SessionUnloaded SessionState = iota
	SessionLoading
	SessionReady
	SessionPlaying
	SessionPaused
	SessionError
)

func (s SessionState) String() string {
	switch s {
	case SessionUnloaded:
		return "unloaded"
	case SessionLoading:
		return "loading"
	case SessionReady:
		return "ready"
	case SessionPlaying:
		return "playing"
	case SessionPaused:
		return "paused"
	case SessionError:
		return "error"
	default:
		return "unknown"
	}
}

// CellMode says what a grid cell is showing.
type CellMode string

const (
	ModeEmpty    CellMode = "empty"
	ModeLive     CellMode = "live"
	ModePlayback CellMode = "playback"
)

// Status is the human-facing status string published by connections,
// sessions and cells.
type Status string

const (
	StatusEmpty        Status = "empty"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusFailed       Status = "failed"
	StatusDisconnected Status = "disconnected"

	StatusLoaded      Status = "loaded"
	StatusPlaying     Status = "playing"
	StatusPaused      Status = "paused"
	StatusBuffering   Status = "buffering"
	StatusEnded       Status = "ended"
	StatusStopped     Status = "stopped"
	StatusError       Status = "error"
	StatusNoRecording Status = "no_recording"
)

// StatusForConn maps a connection state to its published status.
func StatusForConn(s ConnState) Status {
	switch s {
	case ConnConnecting:
		return StatusConnecting
	case ConnConnected:
		return StatusConnected
	case ConnReconnecting:
		return StatusReconnecting
	case ConnFailed:
		return StatusFailed
	default:
		return StatusDisconnected
	}
}

// StreamInfo is a point-in-time snapshot of a pooled connection.
type StreamInfo struct {
	Identity         string    `json:"identity"`
	URI              string    `json:"-"`
	Quality          Quality   `json:"quality"`
	IsSubStream      bool      `json:"is_sub_stream"`
	State            string    `json:"state"`
	Running          bool      `json:"running"`
	FPS              float64   `json:"fps"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	FrameCount       uint64    `json:"frame_count"`
	LastFrameAt      time.Time `json:"last_frame_at,omitempty"`
	ReconnectAttempt int       `json:"reconnect_attempt"`
}
