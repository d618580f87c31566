package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"vifd/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mirrors every Prometheus series in a plain counter so the API and
// the alert evaluator can read totals without scraping. All methods are safe
// on a nil receiver.
type Metrics struct {
	PacketsTotal      prometheus.Counter
	BytesTotal        prometheus.Counter
	ErrorsTotal       prometheus.Counter
	LoopFailuresTotal prometheus.Counter
	OperationsTotal   *prometheus.CounterVec
	InterfaceUp       prometheus.Gauge
	packetsCount      atomic.Uint64
	bytesCount        atomic.Uint64
	errorsCount       atomic.Uint64
	loopFailuresCount atomic.Uint64
	up                atomic.Bool
	mu                sync.Mutex
	operations        map[string]uint64
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PacketsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vifd_packets_total",
			Help: "Packets read from the managed interface",
		}),
		BytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vifd_bytes_total",
			Help: "Bytes read from the managed interface",
		}),
		ErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vifd_errors_total",
			Help: "Packets that could not be parsed",
		}),
		LoopFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vifd_loop_failures_total",
			Help: "Packet loops that terminated on a read error",
		}),
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vifd_operations_total",
			Help: "Lifecycle operations by name and outcome",
		}, []string{"op", "outcome"}),
		InterfaceUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vifd_interface_up",
			Help: "1 while the packet loop is running",
		}),
		operations: map[string]uint64{},
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.PacketsTotal,
		m.BytesTotal,
		m.ErrorsTotal,
		m.LoopFailuresTotal,
		m.OperationsTotal,
		m.InterfaceUp,
	)
	return m
}

func (m *Metrics) IncPackets() {
	if m == nil {
		return
	}
	m.packetsCount.Add(1)
	m.PacketsTotal.Inc()
}

func (m *Metrics) AddBytes(n int) {
	if m == nil || n < 0 {
		return
	}
	m.bytesCount.Add(uint64(n))
	m.BytesTotal.Add(float64(n))
}

func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsCount.Add(1)
	m.ErrorsTotal.Inc()
}

func (m *Metrics) IncLoopFailures() {
	if m == nil {
		return
	}
	m.loopFailuresCount.Add(1)
	m.LoopFailuresTotal.Inc()
}

func (m *Metrics) IncOperation(op, outcome string) {
	if m == nil || op == "" {
		return
	}
	m.OperationsTotal.WithLabelValues(op, outcome).Inc()
	m.mu.Lock()
	m.operations[op+":"+outcome]++
	m.mu.Unlock()
}

func (m *Metrics) SetInterfaceUp(up bool) {
	if m == nil {
		return
	}
	m.up.Store(up)
	if up {
		m.InterfaceUp.Set(1)
	} else {
		m.InterfaceUp.Set(0)
	}
}

type Snapshot struct {
	Packets      uint64            `json:"packets"`
	Bytes        uint64            `json:"bytes"`
	Errors       uint64            `json:"errors"`
	LoopFailures uint64            `json:"loop_failures"`
	InterfaceUp  bool              `json:"interface_up"`
	Operations   map[string]uint64 `json:"operations"`
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{Operations: map[string]uint64{}}
	}
	m.mu.Lock()
	ops := make(map[string]uint64, len(m.operations))
	for k, v := range m.operations {
		ops[k] = v
	}
	m.mu.Unlock()
	return Snapshot{
		Packets:      m.packetsCount.Load(),
		Bytes:        m.bytesCount.Load(),
		Errors:       m.errorsCount.Load(),
		LoopFailures: m.loopFailuresCount.Load(),
		InterfaceUp:  m.up.Load(),
		Operations:   ops,
	}
}

func StartServer(ctx context.Context, cfg config.MetricsConfig) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Address,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
