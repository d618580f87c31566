package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vifd/internal/config"
	"vifd/internal/logger"
	"vifd/internal/observability"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

func TestCompressionMiddlewareEncodesBrotli(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := NewRouter(config.APIConfig{Compression: true}, h)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "br" {
		t.Fatalf("expected br encoding, got %q", w.Header().Get("Content-Encoding"))
	}
	raw, err := io.ReadAll(brotli.NewReader(w.Body))
	if err != nil {
		t.Fatalf("decode brotli: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestCompressionMiddlewareSkipsWithoutAcceptEncoding(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := NewRouter(config.APIConfig{Compression: true}, h)

	w := do(router, http.MethodGet, "/health")
	if w.Header().Get("Content-Encoding") != "" {
		t.Fatalf("unexpected encoding %q", w.Header().Get("Content-Encoding"))
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestAcceptsBrotli(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{"gzip", false},
		{"br", true},
		{"gzip, BR;q=0.8", true},
		{"br;q=0", false},
		{"br; q=0", false},
	}
	for _, tc := range tests {
		if got := acceptsBrotli(tc.header); got != tc.want {
			t.Fatalf("acceptsBrotli(%q)=%v, want %v", tc.header, got, tc.want)
		}
	}
}

func TestTraceMiddlewareRecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := observability.NewTraceStore(5)
	router := gin.New()
	router.Use(TraceMiddleware(store))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Trace-Id", "abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Header().Get("X-Trace-Id") != "abc" {
		t.Fatalf("trace id not echoed: %q", w.Header().Get("X-Trace-Id"))
	}

	w = do(router, http.MethodGet, "/ping")
	if w.Header().Get("X-Trace-Id") == "" {
		t.Fatalf("expected generated trace id")
	}

	traces := store.List()
	if len(traces) != 2 {
		t.Fatalf("expected 2 traces, got %d", len(traces))
	}
	if traces[0].ID != "abc" || traces[0].Path != "/ping" || traces[0].Status != http.StatusOK {
		t.Fatalf("unexpected trace: %+v", traces[0])
	}
}

func TestAuditMiddlewareLogsMutations(t *testing.T) {
	h, _ := newTestHandlers(t)
	var buf bytes.Buffer
	h.Log = logger.NewWithWriter("info", &buf)
	router := NewRouter(config.APIConfig{}, h)

	do(router, http.MethodGet, "/api/interface/status")
	if buf.Len() != 0 {
		t.Fatalf("reads must not be audited: %s", buf.String())
	}

	do(router, http.MethodPost, "/api/interface/create")
	out := buf.String()
	if !strings.Contains(out, `"msg":"audit"`) || !strings.Contains(out, `"/api/interface/create"`) {
		t.Fatalf("missing audit entry: %s", out)
	}
	if !strings.Contains(out, `"trace_id"`) {
		t.Fatalf("audit entry should carry the trace id: %s", out)
	}
}

func TestGetTracesAndAlerts(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := NewRouter(config.APIConfig{}, h)
	h.Alerts.Add(observability.Alert{Type: observability.AlertLoopFailures, Message: "loop failed"})

	do(router, http.MethodGet, "/health")

	w := do(router, http.MethodGet, "/api/traces")
	if w.Code != http.StatusOK {
		t.Fatalf("traces: %d", w.Code)
	}
	var traces struct {
		Limit  int                   `json:"limit"`
		Traces []observability.Trace `json:"traces"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &traces); err != nil {
		t.Fatalf("decode traces: %v", err)
	}
	if traces.Limit != 10 || len(traces.Traces) == 0 || traces.Traces[0].Path != "/health" {
		t.Fatalf("unexpected traces: %+v", traces)
	}

	w = do(router, http.MethodGet, "/api/alerts")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "loop failed") {
		t.Fatalf("alerts: %d %s", w.Code, w.Body.String())
	}
}

func TestObservabilityDisabled(t *testing.T) {
	h, _ := newTestHandlers(t)
	h.Observability = nil
	h.Alerts = nil
	router := setupRouter(h)

	for _, path := range []string{"/api/traces", "/api/alerts"} {
		if w := do(router, http.MethodGet, path); w.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, w.Code)
		}
	}
}
