// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/camgrid/internal/models"
	ws "github.com/tomtom215/camgrid/internal/websocket"
)

func TestRouter_MetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/v1/cells", nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "camgrid_api_requests_total") {
		t.Error("metrics output missing camgrid_api_requests_total")
	}
}

func TestRouter_RateLimit(t *testing.T) {
	f := newFixture(t, func(c *ChiMiddlewareConfig) {
		c.RateLimitDisabled = false
		c.RateLimitRequests = 2
		c.RateLimitWindow = time.Minute
	})

	for i := 0; i < 2; i++ {
		if rec := f.do(t, http.MethodGet, "/api/v1/cells", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := f.do(t, http.MethodGet, "/api/v1/cells", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", rec.Code)
	}
	if resp := envelope(t, rec, nil); resp.Error == nil || resp.Error.Code != "RATE_LIMITED" {
		t.Errorf("error = %+v", resp.Error)
	}

	// health has its own, larger budget
	if rec := f.do(t, http.MethodGet, "/api/v1/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	f := newFixture(t, func(c *ChiMiddlewareConfig) {
		c.CORSAllowedOrigins = []string{"http://viewer.local"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cells/0", nil)
	req.Header.Set("Origin", "http://viewer.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://viewer.local" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestWebSocket_PushesCellStatus(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.hub.RunWithContext(ctx)
	go func() { _ = f.grid.Serve(ctx) }()

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	header := http.Header{"Origin": []string{srv.URL}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status = %d", resp.StatusCode)
	}

	waitFor(t, "client registration", func() bool { return f.hub.GetClientCount() == 1 })

	if _, err := f.grid.AddCamera("front", 0); err != nil {
		t.Fatal(err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg struct {
			Type string                 `json:"type"`
			Data models.CellStatusEvent `json:"data"`
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == ws.MessageTypeCellStatus && msg.Data.Index == 0 && msg.Data.Status == models.StatusConnected {
			return
		}
	}
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	for _, origin := range []string{"", "http://evil.example"} {
		header := http.Header{}
		if origin != "" {
			header.Set("Origin", origin)
		}
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		if err == nil {
			t.Fatalf("origin %q: dial should fail", origin)
		}
		if resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Errorf("origin %q: want 403 response, got %v", origin, resp)
		}
	}
}

func TestWebSocket_NoHub(t *testing.T) {
	f := newFixture(t)
	f.handler.wsHub = nil

	rec := f.do(t, http.MethodGet, "/api/v1/ws", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
