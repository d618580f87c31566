package observability

import (
	"context"
	"fmt"
	"time"

	"vifd/internal/metrics"

	"github.com/google/uuid"
)

type AlertType string

const (
	AlertErrors       AlertType = "errors"
	AlertLoopFailures AlertType = "loop_failures"
	AlertLog          AlertType = "log"
)

type Alert struct {
	ID        string    `json:"id"`
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Value     uint64    `json:"value"`
	Threshold uint64    `json:"threshold"`
	Timestamp int64     `json:"timestamp"`
}

type AlertsConfig struct {
	ErrorsThreshold       uint64
	LoopFailuresThreshold uint64
}

type AlertStore = Ring[Alert]

func NewAlertStore(limit int) *AlertStore {
	return NewRing[Alert](limit)
}

// EvaluateAlerts compares two snapshots and raises an alert for every counter
// whose growth reached its threshold. A zero threshold disables the check.
func EvaluateAlerts(prev metrics.Snapshot, curr metrics.Snapshot, cfg AlertsConfig) []Alert {
	now := time.Now().Unix()
	checks := []struct {
		typ       AlertType
		prev      uint64
		curr      uint64
		threshold uint64
		message   string
	}{
		{AlertErrors, prev.Errors, curr.Errors, cfg.ErrorsThreshold, "malformed packet threshold exceeded"},
		{AlertLoopFailures, prev.LoopFailures, curr.LoopFailures, cfg.LoopFailuresThreshold, "packet loop failure threshold exceeded"},
	}

	var out []Alert
	for _, c := range checks {
		if c.threshold == 0 || c.curr < c.prev {
			continue
		}
		if delta := c.curr - c.prev; delta >= c.threshold {
			out = append(out, Alert{
				ID:        uuid.NewString(),
				Type:      c.typ,
				Message:   c.message,
				Value:     delta,
				Threshold: c.threshold,
				Timestamp: now,
			})
		}
	}
	return out
}

// StartAlerts evaluates m every interval and stores raised alerts until ctx
// is done.
func StartAlerts(ctx context.Context, m *metrics.Metrics, store *AlertStore, cfg AlertsConfig, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		prev := m.Snapshot()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				curr := m.Snapshot()
				for _, alert := range EvaluateAlerts(prev, curr, cfg) {
					store.Add(alert)
				}
				prev = curr
			}
		}
	}()
}

// LogHook turns error-level log entries into alerts.
func LogHook(store *AlertStore) func(entry map[string]any) {
	return func(entry map[string]any) {
		if entry["level"] != "error" {
			return
		}
		store.Add(Alert{
			ID:        uuid.NewString(),
			Type:      AlertLog,
			Message:   fmt.Sprint(entry["msg"]),
			Timestamp: time.Now().Unix(),
		})
	}
}
