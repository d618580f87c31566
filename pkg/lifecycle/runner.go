package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"vifd/internal/logger"
	"vifd/internal/metrics"
	"vifd/pkg/network"

	"github.com/cockroachdb/errors"
)

const defaultLoopTimeout = 5 * time.Second

// Handler sees every packet the loop parsed successfully. It runs on the
// loop goroutine and must not block.
type Handler func(pkt network.Packet)

type RunnerOptions struct {
	StartTimeout time.Duration
	StopTimeout  time.Duration
	Handler      Handler
	// OnExit is called from the loop goroutine once a loop has fully
	// exited. err is nil for a loop that was asked to stop.
	OnExit       func(err error)
	Log          *logger.Logger
	Metrics      *metrics.Metrics
}

// loop is one run of the packet loop. err is only valid once done is closed.
type loop struct {
	cancel context.CancelFunc
	pio    network.PacketIO
	done   chan struct{}
	err    error
	halted atomic.Bool
}

func (l *loop) exited() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// halt asks the loop to exit without waiting for it.
func (l *loop) halt() {
	l.halted.Store(true)
	l.cancel()
	_ = l.pio.Close()
}

// Runner drives the packet loop of one device. Start and Stop serialize on
// an internal mutex; Running and Fault never block.
type Runner struct {
	device  network.Device
	opts    RunnerOptions
	mu      sync.Mutex
	current atomic.Pointer[loop]
}

func NewRunner(device network.Device, opts RunnerOptions) *Runner {
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = defaultLoopTimeout
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultLoopTimeout
	}
	return &Runner{device: device, opts: opts}
}

// Start opens the device's packet primitive and launches the loop. It
// returns once the loop has confirmed it is running. Starting a running
// loop is a no-op; a loop that is still winding down from an earlier halt is
// waited for first.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := r.device.Attrs().Name
	if l := r.current.Load(); l != nil && !l.exited() {
		if !l.halted.Load() {
			return nil
		}
		if err := r.await(ctx, l, r.opts.StartTimeout); err != nil {
			return errors.Wrapf(err, "previous packet loop on %s", name)
		}
	}

	pio, err := r.device.Open(ctx)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "open packet io on %s", name), ErrResourceUnavailable)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	l := &loop{cancel: cancel, pio: pio, done: make(chan struct{})}
	started := make(chan struct{})
	r.current.Store(l)
	go r.run(loopCtx, l, started)

	timer := time.NewTimer(r.opts.StartTimeout)
	defer timer.Stop()
	select {
	case <-started:
		return nil
	case <-timer.C:
		l.halt()
		return errors.Mark(errors.Newf("packet loop on %s did not confirm start within %s", name, r.opts.StartTimeout), ErrTimeout)
	case <-ctx.Done():
		l.halt()
		return errors.Mark(errors.Wrapf(ctx.Err(), "start packet loop on %s", name), ErrTimeout)
	}
}

// Stop signals the loop and waits for it to exit. Stopping a loop that is
// not running is a no-op. On timeout the loop is left signalled and a later
// Stop waits for it again.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.current.Load()
	if l == nil || l.exited() {
		return nil
	}
	l.halt()
	if err := r.await(ctx, l, r.opts.StopTimeout); err != nil {
		return errors.Wrapf(err, "stop packet loop on %s", r.device.Attrs().Name)
	}
	return nil
}

// await blocks until l has exited, timeout elapses or ctx is done.
func (r *Runner) await(ctx context.Context, l *loop, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-l.done:
		return nil
	case <-timer.C:
		return errors.Mark(errors.Newf("loop did not exit within %s", timeout), ErrTimeout)
	case <-ctx.Done():
		return errors.Mark(ctx.Err(), ErrTimeout)
	}
}

// Running reports whether a loop goroutine is alive, including one that
// has been halted but has not returned yet.
func (r *Runner) Running() bool {
	l := r.current.Load()
	return l != nil && !l.exited()
}

// Fault returns the error that terminated the most recent loop, or nil if
// it is still running or exited cleanly.
func (r *Runner) Fault() error {
	l := r.current.Load()
	if l == nil || !l.exited() {
		return nil
	}
	return l.err
}

func (r *Runner) run(ctx context.Context, l *loop, started chan<- struct{}) {
	defer func() {
		if r.opts.OnExit != nil {
			r.opts.OnExit(l.err)
		}
	}()
	defer close(l.done)
	defer l.pio.Close()

	log := r.opts.Log
	close(started)
	log.Info("packet loop started", nil)

	for {
		pkt, err := l.pio.ReadPacket(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("packet loop stopped", nil)
				return
			}
			l.err = errors.Mark(errors.Wrap(err, "read packet"), ErrInternalFault)
			r.opts.Metrics.IncLoopFailures()
			log.Error("packet loop failed", map[string]any{"error": err})
			return
		}

		meta, err := network.ParseIPMetadata(pkt.Data)
		if err != nil {
			r.opts.Metrics.IncErrors()
			log.Debug("dropping malformed packet", map[string]any{"len": len(pkt.Data), "error": err})
			continue
		}
		pkt.Metadata = meta
		r.opts.Metrics.IncPackets()
		r.opts.Metrics.AddBytes(len(pkt.Data))
		if log.Enabled("debug") {
			log.Debug("packet", map[string]any{
				"version":  meta.Version,
				"src":      meta.SrcIP.String(),
				"dst":      meta.DstIP.String(),
				"protocol": meta.Protocol,
				"src_port": meta.SrcPort,
				"dst_port": meta.DstPort,
				"len":      meta.Length,
			})
		}
		if r.opts.Handler != nil {
			r.opts.Handler(pkt)
		}
	}
}
