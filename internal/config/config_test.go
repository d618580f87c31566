package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

func TestLoadFromBytesAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromBytes([]byte("logging:\n  level: info\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Interface.Name != "vif0" {
		t.Fatalf("expected default interface name, got %q", cfg.Interface.Name)
	}
	if cfg.Interface.Driver != "memory" {
		t.Fatalf("expected memory driver, got %q", cfg.Interface.Driver)
	}
	if cfg.Interface.MTU != 1500 {
		t.Fatalf("expected default mtu, got %d", cfg.Interface.MTU)
	}
	if cfg.Interface.Address != "10.0.0.1" || cfg.Interface.Netmask != "255.255.255.0" {
		t.Fatalf("unexpected default addressing: %s/%s", cfg.Interface.Address, cfg.Interface.Netmask)
	}
	if cfg.Loop.StartTimeout != 5*time.Second || cfg.Loop.StopTimeout != 5*time.Second {
		t.Fatalf("unexpected default timeouts: %s/%s", cfg.Loop.StartTimeout, cfg.Loop.StopTimeout)
	}
	if cfg.API.Address != ":8080" {
		t.Fatalf("expected default api address, got %q", cfg.API.Address)
	}
	if cfg.Metrics.Address != ":9090" || cfg.Metrics.Path != "/metrics" {
		t.Fatalf("unexpected metrics defaults: %q %q", cfg.Metrics.Address, cfg.Metrics.Path)
	}
	if cfg.Observability.TracesLimit != 500 {
		t.Fatalf("expected default traces limit, got %d", cfg.Observability.TracesLimit)
	}
}

func TestLoadFromBytesParsesDurations(t *testing.T) {
	data := []byte(`
interface:
  name: tap7
  mtu: 9000
  routes:
    - 10.1.0.0/16
loop:
  start_timeout: 250ms
  stop_timeout: 2s
`)
	cfg, err := LoadFromBytes(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Loop.StartTimeout != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", cfg.Loop.StartTimeout)
	}
	if cfg.Loop.StopTimeout != 2*time.Second {
		t.Fatalf("expected 2s, got %s", cfg.Loop.StopTimeout)
	}
	if cfg.Interface.Name != "tap7" || cfg.Interface.MTU != 9000 {
		t.Fatalf("unexpected interface: %+v", cfg.Interface)
	}
	if len(cfg.Interface.Routes) != 1 || cfg.Interface.Routes[0] != "10.1.0.0/16" {
		t.Fatalf("unexpected routes: %v", cfg.Interface.Routes)
	}
}

func TestLoadFromBytesRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"long name", "interface:\n  name: abcdefghijklmnopq\n"},
		{"slash in name", "interface:\n  name: a/b\n"},
		{"driver", "interface:\n  driver: pcap\n"},
		{"mtu", "interface:\n  mtu: 20\n"},
		{"address", "interface:\n  address: nope\n"},
		{"netmask", "interface:\n  netmask: fd00::\n"},
		{"route", "interface:\n  routes: [\"10.0.0.0\"]\n"},
		{"read buffer", "interface:\n  mtu: 9000\nloop:\n  read_buffer: 1500\n"},
		{"http3 cert", "api:\n  http3:\n    enabled: true\n"},
		{"export url", "metrics:\n  export:\n    enabled: true\n"},
		{"level", "logging:\n  level: chatty\n"},
	}
	for _, tc := range tests {
		if _, err := LoadFromBytes([]byte(tc.data)); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vifd.yaml")
	if err := os.WriteFile(path, []byte("api:\n  address: 127.0.0.1:9999\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.Address != "127.0.0.1:9999" {
		t.Fatalf("unexpected api address: %s", cfg.API.Address)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDumpRoundTrips(t *testing.T) {
	cfg, err := LoadFromBytes([]byte("loop:\n  start_timeout: 3s\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := Dump(cfg)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(string(out), "start_timeout: 3s") {
		t.Fatalf("expected readable duration in dump:\n%s", out)
	}
	again, err := LoadFromBytes(out)
	if err != nil {
		t.Fatalf("reload dump: %v", err)
	}
	if again.Loop.StartTimeout != 3*time.Second || again.Interface.Name != cfg.Interface.Name {
		t.Fatalf("dump did not round trip: %+v", again)
	}
}

func newYAMLViper(t *testing.T, data string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader([]byte(data))); err != nil {
		t.Fatalf("read config: %v", err)
	}
	return v
}

func TestHandleChangeAppliesValidConfig(t *testing.T) {
	v := newYAMLViper(t, "logging:\n  level: debug\n")
	var got *Config
	handleChange(v, fsnotify.Event{Name: "vifd.yaml", Op: fsnotify.Write}, func(cfg *Config) {
		got = cfg
	}, func(err error) {
		t.Fatalf("unexpected error: %v", err)
	})
	if got == nil || got.Logging.Level != "debug" {
		t.Fatalf("expected reloaded config with debug level, got %+v", got)
	}
}

func TestHandleChangeReportsInvalidConfig(t *testing.T) {
	v := newYAMLViper(t, "logging:\n  level: chatty\n")
	var gotErr error
	handleChange(v, fsnotify.Event{Name: "vifd.yaml", Op: fsnotify.Write}, func(*Config) {
		t.Fatalf("invalid config must not be applied")
	}, func(err error) {
		gotErr = err
	})
	if gotErr == nil {
		t.Fatalf("expected reload error")
	}
}

func TestHandleChangeIgnoresRemoval(t *testing.T) {
	v := newYAMLViper(t, "logging:\n  level: debug\n")
	handleChange(v, fsnotify.Event{Name: "vifd.yaml", Op: fsnotify.Remove}, func(*Config) {
		t.Fatalf("remove must not trigger reload")
	}, nil)
}

func TestWatchMissingFile(t *testing.T) {
	err := Watch(filepath.Join(t.TempDir(), "missing.yaml"), nil, nil)
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}
