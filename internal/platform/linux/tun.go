//go:build linux

package linux

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"vifd/internal/logger"
	"vifd/pkg/network"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
	"golang.zx2c4.com/wireguard/tun"
)

// tunOffset leaves headroom in front of each frame for the virtio header the
// tun package writes when offloads are enabled.
const tunOffset = 16

type Options struct {
	ReadBuffer int
	Log        *logger.Logger
}

// Driver provisions kernel TUN devices. Creating one needs CAP_NET_ADMIN.
type Driver struct {
	opts Options
}

func NewDriver(opts Options) *Driver {
	if opts.ReadBuffer <= 0 {
		opts.ReadBuffer = 65535
	}
	return &Driver{opts: opts}
}

func (d *Driver) Name() string {
	return "tun"
}

func (d *Driver) Create(ctx context.Context, spec network.Spec) (network.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dev, err := tun.CreateTUN(spec.Name, spec.MTU)
	if err != nil {
		return nil, fmt.Errorf("create tun %s: %w", spec.Name, err)
	}
	name, err := dev.Name()
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("tun name: %w", err)
	}
	link, err := netlink.LinkByName(name)
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("lookup link %s: %w", name, err)
	}
	if spec.Address != nil {
		mask := net.IPMask(spec.Netmask.To4())
		addr := &netlink.Addr{IPNet: &net.IPNet{IP: spec.Address, Mask: mask}}
		if err := netlink.AddrAdd(link, addr); err != nil && !errors.Is(err, unix.EEXIST) {
			_ = dev.Close()
			return nil, fmt.Errorf("assign %s to %s: %w", addr.IPNet, name, err)
		}
	}
	// Refresh so Attrs reports the kernel's view, including the index.
	if link, err = netlink.LinkByName(name); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("lookup link %s: %w", name, err)
	}
	out := &device{
		tun:    dev,
		link:   link,
		routes: spec.Routes,
		bufLen: d.opts.ReadBuffer,
		log:    d.opts.Log.With(map[string]any{"interface": name}),
	}
	go out.drainEvents()
	return out, nil
}

type device struct {
	tun    tun.Device
	link   netlink.Link
	routes []*net.IPNet
	bufLen int
	log    *logger.Logger
}

func (d *device) Attrs() network.LinkAttrs {
	a := d.link.Attrs()
	return network.LinkAttrs{
		Name:         a.Name,
		Index:        a.Index,
		HardwareAddr: a.HardwareAddr,
		MTU:          a.MTU,
		Flags:        a.Flags,
	}
}

// Open brings the link up and installs configured routes. Route failures
// are logged and do not fail the open.
func (d *device) Open(ctx context.Context) (network.PacketIO, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := netlink.LinkSetUp(d.link); err != nil {
		return nil, fmt.Errorf("set %s up: %w", d.link.Attrs().Name, err)
	}
	for _, dst := range d.routes {
		route := &netlink.Route{LinkIndex: d.link.Attrs().Index, Dst: dst}
		if err := netlink.RouteAdd(route); err != nil && !errors.Is(err, unix.EEXIST) {
			d.log.Warn("add route failed", map[string]any{"dst": dst.String(), "error": err})
		}
	}
	if err := d.tun.File().SetReadDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("reset read deadline: %w", err)
	}

	batch := d.tun.BatchSize()
	bufs := make([][]byte, batch)
	for i := range bufs {
		bufs[i] = make([]byte, tunOffset+d.bufLen)
	}
	return &packetIO{
		dev:   d,
		bufs:  bufs,
		sizes: make([]int, batch),
	}, nil
}

func (d *device) Close() error {
	return d.tun.Close()
}

// drainEvents consumes link notifications until the device is closed. The
// tun package blocks its netlink listener when nobody reads them.
func (d *device) drainEvents() {
	for ev := range d.tun.Events() {
		switch {
		case ev&tun.EventUp != 0:
			d.log.Debug("link up", nil)
		case ev&tun.EventDown != 0:
			d.log.Debug("link down", nil)
		case ev&tun.EventMTUUpdate != 0:
			mtu, _ := d.tun.MTU()
			d.log.Debug("link mtu changed", map[string]any{"mtu": mtu})
		}
	}
}

type packetIO struct {
	dev     *device
	bufs    [][]byte
	sizes   []int
	pending [][]byte
	mu      sync.Mutex
	once    sync.Once
	closed  bool
}

func (p *packetIO) ReadPacket(ctx context.Context) (network.Packet, error) {
	for len(p.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return network.Packet{}, err
		}
		n, err := p.dev.tun.Read(p.bufs, p.sizes, tunOffset)
		if err != nil {
			if p.isClosed() && errors.Is(err, os.ErrDeadlineExceeded) {
				return network.Packet{}, os.ErrClosed
			}
			return network.Packet{}, err
		}
		for i := 0; i < n; i++ {
			if p.sizes[i] == 0 {
				continue
			}
			frame := make([]byte, p.sizes[i])
			copy(frame, p.bufs[i][tunOffset:tunOffset+p.sizes[i]])
			p.pending = append(p.pending, frame)
		}
	}
	frame := p.pending[0]
	p.pending = p.pending[1:]
	return network.Packet{Data: frame, Interface: p.dev.link.Attrs().Name}, nil
}

func (p *packetIO) WritePacket(ctx context.Context, pkt network.Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, tunOffset+len(pkt.Data))
	copy(buf[tunOffset:], pkt.Data)
	_, err := p.dev.tun.Write([][]byte{buf}, tunOffset)
	return err
}

// Close interrupts a blocked read, removes routes and takes the link down.
// The device itself survives until Device.Close.
func (p *packetIO) Close() error {
	var err error
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		err = p.dev.tun.File().SetReadDeadline(time.Now())
		for _, dst := range p.dev.routes {
			_ = netlink.RouteDel(&netlink.Route{LinkIndex: p.dev.link.Attrs().Index, Dst: dst})
		}
		if downErr := netlink.LinkSetDown(p.dev.link); downErr != nil && err == nil {
			err = downErr
		}
	})
	return err
}

func (p *packetIO) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
