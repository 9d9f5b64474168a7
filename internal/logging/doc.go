// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

/*
Package logging provides the process-wide zerolog logger.

Every component logs through the package-level helpers:

	logging.Info().Str("identity", id).Msg("Stream connected")
	logging.Warn().Err(err).Int("attempt", n).Dur("delay", d).Msg("Reconnect scheduled")

Component loggers carry a fixed "component" field:

	log := logging.Component("stream_pool")
	log.Debug().Str("identity", id).Msg("Evicting least recently used stream")

# Configuration

Init is called once from main with values from the logging section of the
config (LOG_LEVEL, LOG_FORMAT, LOG_CALLER). Until then the logger writes
JSON at info level, or at LOG_LEVEL if set.

# slog

The supervisor tree logs through sutureslog, which wants an *slog.Logger.
NewSlogLogger adapts the zerolog logger to that interface.

# Callback panics

Renderer and listener callbacks run on capture goroutines. Wrap each call
with a deferred Recover so a faulty consumer cannot stop a stream:

	defer logging.Recover("cell", "on_frame")
*/
package logging
