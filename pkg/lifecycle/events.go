package lifecycle

import (
	"sync"
	"time"
)

type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventCreated  EventType = "created"
	EventStarted  EventType = "started"
	EventStopped  EventType = "stopped"
	EventDeleted  EventType = "deleted"
	EventFault    EventType = "fault"
)

// Event reports one state transition of the managed interface.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	State     string    `json:"state"`
	Interface string    `json:"interface,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// Broadcaster fans events out to subscribers. A subscriber that falls behind
// loses events instead of stalling the publisher.
type Broadcaster struct {
	mu     sync.Mutex
	seq    uint64
	next   int
	subs   map[int]chan Event
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: map[int]chan Event{}}
}

// Subscribe returns a channel of future events and a cancel func that
// releases it. The channel is closed on cancel or when the broadcaster is
// closed.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

func (b *Broadcaster) Publish(ev Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	ev.Seq = b.seq
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().Unix()
	}
	if b.closed {
		return ev
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
