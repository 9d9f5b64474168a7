// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		wantSame bool
	}{
		{name: "generates id when missing", incoming: ""},
		{name: "preserves upstream id", incoming: "upstream-1234", wantSame: true},
		{name: "replaces oversized id", incoming: strings.Repeat("x", maxRequestIDLen+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ctxID string
			var hasLogger bool
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxID = GetRequestID(r.Context())
				hasLogger = zerolog.Ctx(r.Context()).GetLevel() != zerolog.Disabled
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/cells", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-ID", tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get("X-Request-ID")
			if got != ctxID {
				t.Errorf("header id %q != context id %q", got, ctxID)
			}
			if tt.wantSame {
				if got != tt.incoming {
					t.Errorf("id = %q, want %q", got, tt.incoming)
				}
			} else if _, err := uuid.Parse(got); err != nil {
				t.Errorf("generated id %q is not a UUID: %v", got, err)
			}
			if !hasLogger {
				t.Error("context should carry a request logger")
			}
		})
	}
}

func TestGetRequestID_Empty(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("GetRequestID = %q, want empty", id)
	}
}

func TestLog_FallsBackToGlobal(t *testing.T) {
	if Log(context.Background()) == nil {
		t.Fatal("Log returned nil")
	}
}
