//go:build linux

package platform

import "testing"

func TestNewDriverTUN(t *testing.T) {
	d, err := NewDriver(Options{Driver: "tun"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Name() != "tun" {
		t.Fatalf("expected tun driver, got %s", d.Name())
	}
}
