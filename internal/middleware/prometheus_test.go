// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/camgrid/internal/metrics"
)

func TestPrometheusMetrics_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics)
	r.Get("/api/v1/cells/{index}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/cells/{index}", "404")
	before := testutil.ToFloat64(counter)

	for _, path := range []string{"/api/v1/cells/1", "/api/v1/cells/7"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: status = %d, want 404", path, rec.Code)
		}
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("counter delta = %v, want 2", got)
	}
}

func TestMetricsResponseWriter(t *testing.T) {
	t.Run("keeps first status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := &metricsResponseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
		rw.WriteHeader(http.StatusConflict)
		rw.WriteHeader(http.StatusOK)
		if rw.statusCode != http.StatusConflict {
			t.Errorf("statusCode = %d, want 409", rw.statusCode)
		}
	})

	t.Run("hijack fails without hijacker", func(t *testing.T) {
		rw := &metricsResponseWriter{ResponseWriter: httptest.NewRecorder()}
		if _, _, err := rw.Hijack(); err == nil {
			t.Error("expected error from recorder without Hijack")
		}
	})

	t.Run("unwrap", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := &metricsResponseWriter{ResponseWriter: rec}
		if rw.Unwrap() != rec {
			t.Error("Unwrap should return the wrapped writer")
		}
	})
}

func TestRoutePattern_Unmatched(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	if got := routePattern(req); got != "unmatched" {
		t.Errorf("routePattern = %q, want unmatched", got)
	}
}
