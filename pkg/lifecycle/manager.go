package lifecycle

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"vifd/internal/logger"
	"vifd/internal/metrics"
	"vifd/pkg/network"

	"github.com/cockroachdb/errors"
)

type State int

const (
	StateAbsent State = iota
	StateCreated
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	default:
		return "absent"
	}
}

const (
	OpCreate = "create"
	OpStatus = "status"
	OpStart  = "start"
	OpStop   = "stop"
	OpDelete = "delete"
)

const runFlags = net.FlagUp | net.FlagRunning

type Options struct {
	Driver       network.Driver
	Spec         network.Spec
	StartTimeout time.Duration
	StopTimeout  time.Duration
	Handler      Handler
	// OnCreate runs under the transition lock once a device exists, before
	// any loop can be started on it.
	OnCreate     func(desc network.Descriptor)
	Log          *logger.Logger
	Metrics      *metrics.Metrics
}

// snapshot is what Status reads. It is replaced wholesale after every
// transition and never mutated.
type snapshot struct {
	state  State
	desc   network.Descriptor
	runner *Runner
}

// Manager owns the single managed interface. Mutating operations are
// serialized; Status reads the last published snapshot and never waits on
// them.
type Manager struct {
	opts   Options
	mu     sync.Mutex
	state  State
	desc   network.Descriptor
	device network.Device
	runner *Runner
	snap   atomic.Pointer[snapshot]
	events *Broadcaster
}

func NewManager(opts Options) *Manager {
	m := &Manager{opts: opts, events: NewBroadcaster()}
	m.publish()
	return m
}

func (m *Manager) Events() *Broadcaster {
	return m.events
}

// State reports the observable state, counting a loop that has exited as
// stopped.
func (m *Manager) State() State {
	s := m.snap.Load()
	if s.state == StateRunning && !s.runner.Running() {
		return StateCreated
	}
	return s.state
}

func (m *Manager) Create(ctx context.Context) (network.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAbsent {
		return network.Descriptor{}, m.fail(OpCreate, errors.Mark(errors.Newf("interface %s already exists", m.desc.Name), ErrAlreadyExists))
	}

	spec := m.opts.Spec
	dev, err := m.opts.Driver.Create(ctx, spec)
	if err != nil {
		return network.Descriptor{}, m.fail(OpCreate, errors.Mark(errors.Wrapf(err, "create %s device %s", m.opts.Driver.Name(), spec.Name), ErrResourceUnavailable))
	}

	attrs := dev.Attrs()
	desc := network.Descriptor{
		Name:         attrs.Name,
		Index:        attrs.Index,
		HardwareAddr: attrs.HardwareAddr,
		MTU:          attrs.MTU,
		Address:      spec.Address,
		Netmask:      spec.Netmask,
		Flags:        attrs.Flags &^ runFlags,
	}
	if desc.Name == "" {
		desc.Name = spec.Name
	}
	if desc.MTU == 0 {
		desc.MTU = spec.MTU
	}
	if len(desc.HardwareAddr) == 0 {
		// Layer 3 devices carry no MAC of their own.
		if desc.HardwareAddr, err = network.RandomHardwareAddr(); err != nil {
			_ = dev.Close()
			return network.Descriptor{}, m.fail(OpCreate, errors.Mark(errors.Wrap(err, "generate hardware address"), ErrResourceUnavailable))
		}
	}

	var runner *Runner
	runner = NewRunner(dev, RunnerOptions{
		StartTimeout: m.opts.StartTimeout,
		StopTimeout:  m.opts.StopTimeout,
		Handler:      m.opts.Handler,
		OnExit:       func(err error) { m.handleExit(runner, err) },
		Log:          m.opts.Log.With(map[string]any{"interface": desc.Name}),
		Metrics:      m.opts.Metrics,
	})

	m.device = dev
	m.runner = runner
	m.desc = desc
	m.state = StateCreated
	if m.opts.OnCreate != nil {
		m.opts.OnCreate(desc.Clone())
	}
	m.succeed(OpCreate, EventCreated)
	return desc.Clone(), nil
}

// Status returns the descriptor of the managed interface. It reflects a
// loop that has exited immediately, before the manager has reconciled it.
func (m *Manager) Status() (network.Descriptor, error) {
	s := m.snap.Load()
	if s.state == StateAbsent {
		m.opts.Metrics.IncOperation(OpStatus, string(KindNotFound))
		return network.Descriptor{}, notFound(OpStatus)
	}
	desc := s.desc.Clone()
	if s.state == StateRunning && !s.runner.Running() {
		markDown(&desc, s.runner.Fault())
	}
	m.opts.Metrics.IncOperation(OpStatus, string(KindSuccess))
	return desc, nil
}

func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateAbsent {
		return m.fail(OpStart, notFound(OpStart))
	}
	m.reconcile()
	if m.state == StateRunning {
		m.opts.Metrics.IncOperation(OpStart, string(KindSuccess))
		return nil
	}

	if err := m.runner.Start(ctx); err != nil {
		m.desc.Error = err.Error()
		return m.fail(OpStart, err)
	}
	m.state = StateRunning
	m.desc.Up = true
	m.desc.Flags |= runFlags
	m.desc.Error = ""
	m.succeed(OpStart, EventStarted)
	return nil
}

func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateAbsent {
		return m.fail(OpStop, notFound(OpStop))
	}
	m.reconcile()
	if m.state == StateCreated {
		m.opts.Metrics.IncOperation(OpStop, string(KindSuccess))
		return nil
	}

	if err := m.runner.Stop(ctx); err != nil {
		return m.fail(OpStop, err)
	}
	m.state = StateCreated
	markDown(&m.desc, nil)
	m.succeed(OpStop, EventStopped)
	return nil
}

// Delete stops a running loop first and then destroys the device.
func (m *Manager) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateAbsent {
		return m.fail(OpDelete, notFound(OpDelete))
	}
	if err := m.runner.Stop(ctx); err != nil {
		return m.fail(OpDelete, err)
	}
	if err := m.device.Close(); err != nil {
		m.opts.Log.Warn("destroy device failed", map[string]any{"interface": m.desc.Name, "error": err})
	}

	m.state = StateAbsent
	m.device = nil
	m.runner = nil
	m.succeed(OpDelete, EventDeleted)
	m.desc = network.Descriptor{}
	m.publish()
	return nil
}

// Close deletes the interface if one exists and shuts down the event feed.
func (m *Manager) Close(ctx context.Context) error {
	err := m.Delete(ctx)
	m.events.Close()
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// reconcile folds a loop exit the exit callback has not applied yet into
// the manager state. Callers hold m.mu.
func (m *Manager) reconcile() {
	if m.state != StateRunning || m.runner.Running() {
		return
	}
	m.applyExit(m.runner.Fault())
}

func (m *Manager) handleExit(r *Runner, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runner != r || m.state != StateRunning || r.Running() {
		return
	}
	m.applyExit(err)
}

// applyExit moves a Running interface whose loop is gone back to Created.
// A nil err means the loop finished after being asked to stop.
func (m *Manager) applyExit(err error) {
	m.state = StateCreated
	markDown(&m.desc, err)
	m.publish()
	m.opts.Metrics.SetInterfaceUp(false)
	if err == nil {
		m.events.Publish(Event{Type: EventStopped, State: m.state.String(), Interface: m.desc.Name})
		m.opts.Log.Warn("packet loop exited after a timed out stop", map[string]any{"interface": m.desc.Name})
		return
	}
	m.events.Publish(Event{Type: EventFault, State: m.state.String(), Interface: m.desc.Name, Error: err.Error()})
	m.opts.Log.Error("interface went down", map[string]any{"interface": m.desc.Name, "error": err})
}

func (m *Manager) succeed(op string, ev EventType) {
	m.publish()
	m.opts.Metrics.IncOperation(op, string(KindSuccess))
	m.opts.Metrics.SetInterfaceUp(m.state == StateRunning)
	m.events.Publish(Event{Type: ev, State: m.state.String(), Interface: m.desc.Name})
	m.opts.Log.Info("interface "+string(ev), map[string]any{"interface": m.desc.Name, "state": m.state.String()})
}

func (m *Manager) fail(op string, err error) error {
	kind := KindOf(err)
	m.publish()
	m.opts.Metrics.IncOperation(op, string(kind))
	m.opts.Log.Warn("interface operation failed", map[string]any{"op": op, "kind": string(kind), "error": err})
	return err
}

func (m *Manager) publish() {
	m.snap.Store(&snapshot{state: m.state, desc: m.desc.Clone(), runner: m.runner})
}

func markDown(desc *network.Descriptor, err error) {
	desc.Up = false
	desc.Flags &^= runFlags
	desc.Error = ""
	if err != nil {
		desc.Error = err.Error()
	}
}
