package observability

import "sync"

const defaultLimit = 1000

// Ring keeps the most recent entries up to a fixed limit.
type Ring[T any] struct {
	mu    sync.Mutex
	limit int
	items []T
}

func NewRing[T any](limit int) *Ring[T] {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Ring[T]{
		limit: limit,
		items: make([]T, 0, limit),
	}
}

func (r *Ring[T]) Add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == r.limit {
		copy(r.items, r.items[1:])
		r.items[len(r.items)-1] = item
		return
	}
	r.items = append(r.items, item)
}

// List returns entries oldest first.
func (r *Ring[T]) List() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(make([]T, 0, len(r.items)), r.items...)
}

func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func (r *Ring[T]) Limit() int {
	return r.limit
}

// Trace is one API request as seen by the trace middleware.
type Trace struct {
	ID         string `json:"id"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	Status     int    `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Timestamp  int64  `json:"timestamp"`
	ClientIP   string `json:"client_ip,omitempty"`
}

type TraceStore = Ring[Trace]

func NewTraceStore(limit int) *TraceStore {
	return NewRing[Trace](limit)
}
