package metrics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"vifd/internal/config"

	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
)

type remoteWriter struct {
	client *http.Client
	url    string
	token  string
}

// StartRemoteWrite pushes a snapshot to a Prometheus remote-write endpoint on
// every tick until ctx is done. It returns immediately.
func StartRemoteWrite(ctx context.Context, cfg config.MetricsExportConfig, m *Metrics) error {
	if !cfg.Enabled || cfg.RemoteWriteURL == "" {
		return nil
	}
	token, err := config.ResolveSecret(cfg.BearerToken)
	if err != nil {
		return fmt.Errorf("resolve bearer token: %w", err)
	}
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	w := &remoteWriter{
		client: &http.Client{Timeout: 5 * time.Second},
		url:    cfg.RemoteWriteURL,
		token:  token,
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = w.send(ctx, m.Snapshot())
			}
		}
	}()
	return nil
}

func (w *remoteWriter) send(ctx context.Context, snap Snapshot) error {
	now := time.Now().UnixMilli()
	up := uint64(0)
	if snap.InterfaceUp {
		up = 1
	}
	series := []prompb.TimeSeries{
		newSeries("vifd_packets_total", snap.Packets, now),
		newSeries("vifd_bytes_total", snap.Bytes, now),
		newSeries("vifd_errors_total", snap.Errors, now),
		newSeries("vifd_loop_failures_total", snap.LoopFailures, now),
		newSeries("vifd_interface_up", up, now),
	}
	req := &prompb.WriteRequest{Timeseries: series}
	data, err := req.Marshal()
	if err != nil {
		return err
	}
	compressed := snappy.Encode(nil, data)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(compressed))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if w.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+w.token)
	}
	resp, err := w.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote write: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func newSeries(name string, value uint64, ts int64) prompb.TimeSeries {
	return prompb.TimeSeries{
		Labels:  []prompb.Label{{Name: "__name__", Value: name}},
		Samples: []prompb.Sample{{Value: float64(value), Timestamp: ts}},
	}
}
