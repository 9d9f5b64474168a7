// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

/*
Package playback plays recorded camera media over a time window.

A Session owns one recording URI, a FrameCache of decoded frames and a
ThumbnailCache of downsampled previews. Two goroutines run while a
recording is loaded:

  - transport: opens the pipeline at the requested position, reads frames
    at 1/(fps*speed) while playing and caches each one under its position
  - prefetch: walks the window in max(10s, window/100) steps and grabs one
    thumbnail per step through a short-lived pipeline

Seeking never blocks. A cached frame within 100ms is shown immediately; a
thumbnail within 5s is shown as an upscaled placeholder while the
transport reopens at the target with a starttime query parameter.

Thumbnail prefetch is throttled by a token bucket (golang.org/x/time/rate),
bounded by a semaphore shared across sessions (marusama/semaphore) and
guarded by a circuit breaker (sony/gobreaker) so that a camera without
recordings does not spin opening pipelines.

Open failures are not retried: a gap in the recording is a legitimate
outcome. The session reports StatusError with the reason and waits for the
next Seek, Load or Play.
*/
package playback
