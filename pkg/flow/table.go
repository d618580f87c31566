package flow

import (
	"net"
	"net/netip"
	"sort"
	"sync"
	"time"

	"vifd/pkg/network"
)

const DefaultMaxFlows = 4096

// Key identifies a flow by its five-tuple.
type Key struct {
	Src      netip.Addr
	Dst      netip.Addr
	Protocol string
	SrcPort  int
	DstPort  int
}

type Entry struct {
	Src       string `json:"src"`
	Dst       string `json:"dst"`
	Protocol  string `json:"protocol"`
	SrcPort   int    `json:"src_port,omitempty"`
	DstPort   int    `json:"dst_port,omitempty"`
	Packets   uint64 `json:"packets"`
	Bytes     uint64 `json:"bytes"`
	FirstSeen int64  `json:"first_seen"`
	LastSeen  int64  `json:"last_seen"`
}

type stats struct {
	packets   uint64
	bytes     uint64
	firstSeen time.Time
	lastSeen  time.Time
}

// Table accounts packets per flow for the current interface. New flows past
// the size limit are counted in Overflow instead of tracked.
type Table struct {
	mu       sync.RWMutex
	max      int
	flows    map[Key]*stats
	overflow uint64
	now      func() time.Time
}

func NewTable(maxFlows int) *Table {
	if maxFlows <= 0 {
		maxFlows = DefaultMaxFlows
	}
	return &Table{
		max:   maxFlows,
		flows: map[Key]*stats{},
		now:   time.Now,
	}
}

// Add records pkt. Its signature matches the packet loop handler.
func (t *Table) Add(pkt network.Packet) {
	src, okSrc := toAddr(pkt.Metadata.SrcIP)
	dst, okDst := toAddr(pkt.Metadata.DstIP)
	if !okSrc || !okDst {
		return
	}
	key := Key{
		Src:      src,
		Dst:      dst,
		Protocol: pkt.Metadata.Protocol,
		SrcPort:  pkt.Metadata.SrcPort,
		DstPort:  pkt.Metadata.DstPort,
	}
	size := uint64(len(pkt.Data))
	if pkt.Metadata.Length > 0 {
		size = uint64(pkt.Metadata.Length)
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.flows[key]
	if s == nil {
		if len(t.flows) >= t.max {
			t.overflow++
			return
		}
		s = &stats{firstSeen: now}
		t.flows[key] = s
	}
	s.packets++
	s.bytes += size
	s.lastSeen = now
}

// Top returns flows ordered by bytes, largest first.
func (t *Table) Top(limit int) []Entry {
	t.mu.RLock()
	out := make([]Entry, 0, len(t.flows))
	for k, s := range t.flows {
		out = append(out, Entry{
			Src:       k.Src.String(),
			Dst:       k.Dst.String(),
			Protocol:  k.Protocol,
			SrcPort:   k.SrcPort,
			DstPort:   k.DstPort,
			Packets:   s.packets,
			Bytes:     s.bytes,
			FirstSeen: s.firstSeen.Unix(),
			LastSeen:  s.lastSeen.Unix(),
		})
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Bytes != out[j].Bytes {
			return out[i].Bytes > out[j].Bytes
		}
		return out[i].Packets > out[j].Packets
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.flows)
}

func (t *Table) Overflow() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.overflow
}

func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flows = map[Key]*stats{}
	t.overflow = 0
}

func toAddr(ip net.IP) (netip.Addr, bool) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
