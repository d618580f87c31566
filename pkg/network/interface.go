package network

import (
	"context"
	"crypto/rand"
	"net"
)

// Descriptor is the record of a managed interface. It exists exactly while
// the interface is created, and Up is true only while its packet loop runs.
type Descriptor struct {
	Name         string
	Index        int
	HardwareAddr net.HardwareAddr
	MTU          int
	Address      net.IP
	Netmask      net.IP
	Flags        net.Flags
	Up           bool
	Error        string
}

// Clone returns a deep copy so published snapshots never share slices with
// the manager's working copy.
func (d Descriptor) Clone() Descriptor {
	out := d
	out.HardwareAddr = append(net.HardwareAddr(nil), d.HardwareAddr...)
	out.Address = append(net.IP(nil), d.Address...)
	out.Netmask = append(net.IP(nil), d.Netmask...)
	return out
}

func (d Descriptor) AddressString() string {
	if len(d.Address) == 0 {
		return ""
	}
	return d.Address.String()
}

func (d Descriptor) NetmaskString() string {
	if len(d.Netmask) == 0 {
		return ""
	}
	return d.Netmask.String()
}

// RandomHardwareAddr returns a unicast, locally administered MAC.
func RandomHardwareAddr() (net.HardwareAddr, error) {
	addr := make(net.HardwareAddr, 6)
	if _, err := rand.Read(addr); err != nil {
		return nil, err
	}
	addr[0] = (addr[0] | 0x02) &^ 0x01
	return addr, nil
}

// Spec is the requested shape of an interface, taken from config.
type Spec struct {
	Name    string
	MTU     int
	Address net.IP
	Netmask net.IP
	Routes  []*net.IPNet
}

// LinkAttrs is what a driver reports about a provisioned device.
type LinkAttrs struct {
	Name         string
	Index        int
	HardwareAddr net.HardwareAddr
	MTU          int
	Flags        net.Flags
}

// Driver provisions devices for one packet I/O backend.
type Driver interface {
	Name() string
	Create(ctx context.Context, spec Spec) (Device, error)
}

// Device is a provisioned interface. Open acquires the packet primitive for
// one run of the packet loop; Close destroys the device.
type Device interface {
	Attrs() LinkAttrs
	Open(ctx context.Context) (PacketIO, error)
	Close() error
}

// PacketIO must tolerate Close being called more than once and must unblock
// a pending ReadPacket when closed.
type PacketIO interface {
	ReadPacket(ctx context.Context) (Packet, error)
	WritePacket(ctx context.Context, pkt Packet) error
	Close() error
}
