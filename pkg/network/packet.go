package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

var (
	ErrPacketTooShort     = errors.New("packet too short")
	ErrUnsupportedVersion = errors.New("unsupported ip version")
)

type Packet struct {
	Data      []byte
	Interface string
	Metadata  PacketMetadata
}

type PacketMetadata struct {
	Version  int
	SrcIP    net.IP
	DstIP    net.IP
	Protocol string
	SrcPort  int
	DstPort  int
	Length   int
}

const (
	protoICMP   = 1
	protoTCP    = 6
	protoUDP    = 17
	protoICMPv6 = 58
)

func ProtocolName(proto int) string {
	switch proto {
	case protoICMP:
		return "ICMP"
	case protoTCP:
		return "TCP"
	case protoUDP:
		return "UDP"
	case protoICMPv6:
		return "ICMPv6"
	default:
		return fmt.Sprintf("Unknown(%d)", proto)
	}
}

func ParseIPv4Metadata(data []byte) (PacketMetadata, error) {
	h, err := ipv4.ParseHeader(data)
	if err != nil {
		return PacketMetadata{}, fmt.Errorf("%w: %v", ErrPacketTooShort, err)
	}
	if h.Len < ipv4.HeaderLen {
		return PacketMetadata{}, ErrPacketTooShort
	}

	// ParseHeader uses raw-socket byte order on some BSDs; frames read from a
	// TUN device always carry the length in network order.
	meta := PacketMetadata{
		Version:  4,
		SrcIP:    h.Src,
		DstIP:    h.Dst,
		Protocol: ProtocolName(h.Protocol),
		Length:   int(binary.BigEndian.Uint16(data[2:4])),
	}
	if err := parsePorts(&meta, h.Protocol, data, h.Len); err != nil {
		return PacketMetadata{}, err
	}
	return meta, nil
}

func ParseIPv6Metadata(data []byte) (PacketMetadata, error) {
	h, err := ipv6.ParseHeader(data)
	if err != nil {
		return PacketMetadata{}, fmt.Errorf("%w: %v", ErrPacketTooShort, err)
	}

	meta := PacketMetadata{
		Version:  6,
		SrcIP:    h.Src,
		DstIP:    h.Dst,
		Protocol: ProtocolName(h.NextHeader),
		Length:   h.PayloadLen + ipv6.HeaderLen,
	}
	if err := parsePorts(&meta, h.NextHeader, data, ipv6.HeaderLen); err != nil {
		return PacketMetadata{}, err
	}
	return meta, nil
}

func ParseIPMetadata(data []byte) (PacketMetadata, error) {
	if len(data) == 0 {
		return PacketMetadata{}, ErrPacketTooShort
	}
	switch data[0] >> 4 {
	case 4:
		return ParseIPv4Metadata(data)
	case 6:
		return ParseIPv6Metadata(data)
	default:
		return PacketMetadata{}, ErrUnsupportedVersion
	}
}

func parsePorts(meta *PacketMetadata, proto int, data []byte, offset int) error {
	if proto != protoTCP && proto != protoUDP {
		return nil
	}
	if len(data) < offset+4 {
		return ErrPacketTooShort
	}
	meta.SrcPort = int(binary.BigEndian.Uint16(data[offset : offset+2]))
	meta.DstPort = int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
	return nil
}
