package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.IncPackets()
	m.AddBytes(150)
	m.AddBytes(-1)
	m.IncErrors()
	m.IncLoopFailures()
	m.IncOperation("create", "success")
	m.IncOperation("create", "already_exists")
	m.IncOperation("create", "success")
	m.SetInterfaceUp(true)

	s := m.Snapshot()
	if s.Packets != 1 {
		t.Fatalf("expected packets 1, got %d", s.Packets)
	}
	if s.Bytes != 150 {
		t.Fatalf("expected bytes 150, got %d", s.Bytes)
	}
	if s.Errors != 1 {
		t.Fatalf("expected errors 1, got %d", s.Errors)
	}
	if s.LoopFailures != 1 {
		t.Fatalf("expected loop failures 1, got %d", s.LoopFailures)
	}
	if s.Operations["create:success"] != 2 || s.Operations["create:already_exists"] != 1 {
		t.Fatalf("unexpected operations: %v", s.Operations)
	}
	if !s.InterfaceUp {
		t.Fatalf("expected interface up")
	}

	m.SetInterfaceUp(false)
	if m.Snapshot().InterfaceUp {
		t.Fatalf("expected interface down")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncPackets()
	m.IncOperation("start", "success")
	m.SetInterfaceUp(true)
	if s := m.Snapshot(); s.Packets != 0 || s.Operations == nil {
		t.Fatalf("unexpected snapshot from nil metrics: %+v", s)
	}
}

func TestRegisteredSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	m.IncOperation("create", "success")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	got := map[string]bool{}
	for _, f := range families {
		got[f.GetName()] = true
	}
	want := []string{
		"vifd_packets_total",
		"vifd_bytes_total",
		"vifd_errors_total",
		"vifd_loop_failures_total",
		"vifd_operations_total",
		"vifd_interface_up",
	}
	for _, name := range want {
		if !got[name] {
			t.Fatalf("missing series %s in %v", name, got)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected series: %v", got)
	}
}
