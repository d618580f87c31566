package api

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"vifd/internal/config"
)

func TestServeRejectsBadAddress(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := Serve(ctx, "256.0.0.1:bad", http.NotFoundHandler()); err == nil {
		t.Fatalf("expected listen error")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler())
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not stop")
	}
}

func TestServeHTTP3RequiresCertificates(t *testing.T) {
	dir := t.TempDir()
	cfg := config.HTTP3Config{
		Enabled:  true,
		Address:  "127.0.0.1:0",
		CertFile: filepath.Join(dir, "missing.crt"),
		KeyFile:  filepath.Join(dir, "missing.key"),
	}
	if err := ServeHTTP3(context.Background(), cfg, http.NotFoundHandler()); err == nil {
		t.Fatalf("expected certificate error")
	}
}
