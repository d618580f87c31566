package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestShouldLogLevels(t *testing.T) {
	tests := []struct {
		level   string
		current string
		want    bool
	}{
		{"debug", "debug", true},
		{"info", "debug", true},
		{"warn", "info", true},
		{"error", "warn", true},
		{"debug", "info", false},
		{"info", "warn", false},
		{"warn", "error", false},
	}

	for _, tc := range tests {
		if got := shouldLog(tc.level, tc.current); got != tc.want {
			t.Fatalf("shouldLog(%q, %q)=%v, want %v", tc.level, tc.current, got, tc.want)
		}
	}
}

func decodeLine(t *testing.T, line []byte) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(line), &entry); err != nil {
		t.Fatalf("failed to parse json: %v", err)
	}
	return entry
}

func TestLoggerWritesJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter("info", buf)

	log.Info("hello", map[string]any{"k": "v", "err": errors.New("boom")})

	entry := decodeLine(t, buf.Bytes())
	if entry["level"] != "info" {
		t.Fatalf("expected level info, got %v", entry["level"])
	}
	if entry["msg"] != "hello" {
		t.Fatalf("expected msg hello, got %v", entry["msg"])
	}
	if entry["k"] != "v" {
		t.Fatalf("expected field k=v, got %v", entry["k"])
	}
	if entry["err"] != "boom" {
		t.Fatalf("expected error rendered as string, got %v", entry["err"])
	}
	if entry["ts"] == "" {
		t.Fatalf("expected ts to be set")
	}
}

func TestLoggerSkipsDebugBelowLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter("info", buf)

	log.Debug("debug", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	log := NewWithWriter("verbose", io.Discard)
	if log.Level() != "info" {
		t.Fatalf("expected info, got %s", log.Level())
	}
	if ValidLevel("verbose") {
		t.Fatalf("expected verbose to be rejected")
	}
}

func TestSetLevelAppliesToChildren(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter("info", buf)
	child := log.With(map[string]any{"component": "loop"})

	child.Debug("hidden", nil)
	log.SetLevel("debug")
	child.Debug("shown", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	entry := decodeLine(t, []byte(lines[0]))
	if entry["msg"] != "shown" || entry["component"] != "loop" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestWithDoesNotMutateParent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter("info", buf)
	_ = log.With(map[string]any{"component": "api"})

	log.Info("plain", nil)
	entry := decodeLine(t, buf.Bytes())
	if _, ok := entry["component"]; ok {
		t.Fatalf("parent picked up child fields: %v", entry)
	}
}

func TestNilLoggerIsSilent(t *testing.T) {
	var log *Logger
	log.Info("nothing", nil)
	log.SetLevel("debug")
	if log.With(nil) != nil {
		t.Fatalf("expected nil child")
	}
}

func TestLoggerHookReceivesEntry(t *testing.T) {
	log := NewWithWriter("info", io.Discard)

	ch := make(chan map[string]any, 1)
	log.AddHook(func(entry map[string]any) {
		ch <- entry
	})

	log.Warn("warn-msg", map[string]any{"x": "y"})

	select {
	case entry := <-ch:
		if entry["msg"] != "warn-msg" {
			t.Fatalf("expected msg warn-msg, got %v", entry["msg"])
		}
		if entry["level"] != "warn" {
			t.Fatalf("expected level warn, got %v", entry["level"])
		}
		if entry["x"] != "y" {
			t.Fatalf("expected field x=y, got %v", entry["x"])
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("expected hook to be called")
	}
}
