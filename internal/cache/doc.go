// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

/*
Package cache holds decoded frames keyed by media timestamp.

# Overview

TimeCache is a bounded LRU map from millisecond timestamps to payloads,
with a sorted key index so nearest-time lookups are a binary search:

  - Put stores a payload; a duplicate timestamp is ignored
  - Get refreshes recency on a hit
  - GetNearest returns the closest entry within a tolerance, ties to the
    earlier one
  - Range reports the earliest and latest cached timestamps

FrameCache is a TimeCache of full-size frames, filled by a playback
session as it decodes so back-scrubs and replays skip the pipeline.

ThumbnailCache stores downscaled frames (disintegration/imaging) for
timeline hover and for showing something immediately after a seek. Its
frames are upscaled back to the display size when used as a placeholder.

# Thread Safety

All caches are safe for concurrent use. Payloads are cloned on the way in
and out, so callers never share pixel buffers with the cache.

# Metrics

Playback sessions count their seek lookups in camgrid_cache_lookups_total
by cache and result; Stats reports per-cache hits and misses.
*/
package cache
