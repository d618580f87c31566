package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"vifd/pkg/network"
)

const (
	memoryFirstIndex = 100
	memoryQueueLen   = 256
)

var ErrNotOpen = errors.New("memory device is not open")

// MemoryDriver provisions devices that live only in process memory. Packets
// are injected by the caller instead of arriving from the kernel.
type MemoryDriver struct {
	nextIndex atomic.Int64
	mu        sync.Mutex
	last      *MemoryDevice
	failNext  error
}

func NewMemoryDriver() *MemoryDriver {
	d := &MemoryDriver{}
	d.nextIndex.Store(memoryFirstIndex)
	return d
}

func (d *MemoryDriver) Name() string {
	return "memory"
}

// FailCreate makes the next Create return err.
func (d *MemoryDriver) FailCreate(err error) {
	d.mu.Lock()
	d.failNext = err
	d.mu.Unlock()
}

func (d *MemoryDriver) Create(ctx context.Context, spec network.Spec) (network.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failNext; err != nil {
		d.failNext = nil
		return nil, err
	}
	hw, err := network.RandomHardwareAddr()
	if err != nil {
		return nil, err
	}
	dev := &MemoryDevice{
		attrs: network.LinkAttrs{
			Name:         spec.Name,
			Index:        int(d.nextIndex.Add(1) - 1),
			HardwareAddr: hw,
			MTU:          spec.MTU,
			Flags:        net.FlagBroadcast | net.FlagMulticast,
		},
	}
	d.last = dev
	return dev, nil
}

// Last returns the most recently created device.
func (d *MemoryDriver) Last() *MemoryDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

type MemoryDevice struct {
	attrs    network.LinkAttrs
	mu       sync.Mutex
	current  *memoryPacketIO
	failOpen error
	closed   bool
	opens    int
	written  [][]byte
}

func (d *MemoryDevice) Attrs() network.LinkAttrs {
	return d.attrs
}

func (d *MemoryDevice) Open(ctx context.Context) (network.PacketIO, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("open %s: %w", d.attrs.Name, os.ErrClosed)
	}
	if err := d.failOpen; err != nil {
		d.failOpen = nil
		return nil, err
	}
	pio := &memoryPacketIO{
		dev:    d,
		in:     make(chan []byte, memoryQueueLen),
		fault:  make(chan error, 1),
		closed: make(chan struct{}),
	}
	d.current = pio
	d.opens++
	return pio, nil
}

func (d *MemoryDevice) Close() error {
	d.mu.Lock()
	pio := d.current
	d.closed = true
	d.current = nil
	d.mu.Unlock()
	if pio != nil {
		return pio.Close()
	}
	return nil
}

// Closed reports whether the device has been destroyed.
func (d *MemoryDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Opens reports how many times the packet primitive has been acquired.
func (d *MemoryDevice) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// FailOpen makes the next Open return err.
func (d *MemoryDevice) FailOpen(err error) {
	d.mu.Lock()
	d.failOpen = err
	d.mu.Unlock()
}

// Inject queues a frame for the open packet primitive to read.
func (d *MemoryDevice) Inject(frame []byte) error {
	pio, err := d.open()
	if err != nil {
		return err
	}
	select {
	case pio.in <- append([]byte(nil), frame...):
		return nil
	case <-pio.closed:
		return ErrNotOpen
	default:
		return fmt.Errorf("inject into %s: queue full", d.attrs.Name)
	}
}

// Fail makes the pending or next read on the open primitive return err.
func (d *MemoryDevice) Fail(err error) error {
	pio, openErr := d.open()
	if openErr != nil {
		return openErr
	}
	select {
	case pio.fault <- err:
		return nil
	default:
		return fmt.Errorf("fail %s: fault already pending", d.attrs.Name)
	}
}

// Written returns copies of every frame written to the device.
func (d *MemoryDevice) Written() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.written))
	copy(out, d.written)
	return out
}

func (d *MemoryDevice) open() (*memoryPacketIO, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil || d.current.isClosed() {
		return nil, ErrNotOpen
	}
	return d.current, nil
}

type memoryPacketIO struct {
	dev    *MemoryDevice
	in     chan []byte
	fault  chan error
	closed chan struct{}
	once   sync.Once
}

func (p *memoryPacketIO) ReadPacket(ctx context.Context) (network.Packet, error) {
	select {
	case <-ctx.Done():
		return network.Packet{}, ctx.Err()
	case <-p.closed:
		return network.Packet{}, os.ErrClosed
	case err := <-p.fault:
		return network.Packet{}, err
	case data := <-p.in:
		return network.Packet{Data: data, Interface: p.dev.attrs.Name}, nil
	}
}

func (p *memoryPacketIO) WritePacket(ctx context.Context, pkt network.Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.isClosed() {
		return os.ErrClosed
	}
	p.dev.mu.Lock()
	p.dev.written = append(p.dev.written, append([]byte(nil), pkt.Data...))
	p.dev.mu.Unlock()
	return nil
}

func (p *memoryPacketIO) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *memoryPacketIO) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}
