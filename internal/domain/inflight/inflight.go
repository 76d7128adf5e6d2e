// Package inflight marks plans whose generation is currently running so a
// second run of the same plan is refused.
package inflight

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Token identifies one holder of a mark. The zero Token is never issued.
type Token uint64

// Marker guards one running generation per plan id.
type Marker interface {
	// Acquire marks id as running and returns the holder's token. It
	// returns false when id is already marked and the mark has not
	// expired, or when the marker is full.
	Acquire(ctx context.Context, id string) (Token, bool)

	// Release removes the mark on id if tok still holds it. A mark taken
	// over after expiry belongs to the new holder and is left in place.
	Release(ctx context.Context, id string, tok Token)

	Size() int64
}

type mark struct {
	at    time.Time
	token Token
}

// inMemoryMarker keeps marks in a map. A mark older than ttl is treated as
// abandoned and may be taken over; a ttl of zero never expires marks.
type inMemoryMarker struct {
	mu      sync.Mutex
	marks   map[string]mark
	seq     Token
	maxSize int
	ttl     time.Duration
	size    atomic.Int64
	now     func() time.Time
}

// NewInMemoryMarker creates a marker with configuration options.
func NewInMemoryMarker(opts ...Option) Marker {
	m := &inMemoryMarker{
		maxSize: 10000,
		ttl:     10 * time.Minute,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.marks = make(map[string]mark)
	return m
}

func (m *inMemoryMarker) Acquire(ctx context.Context, id string) (Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if cur, ok := m.marks[id]; ok {
		if !m.expired(cur.at, now) {
			return 0, false
		}
		return m.set(id, now), true
	}

	if m.maxSize > 0 && len(m.marks) >= m.maxSize {
		m.evictExpired(now)
		if len(m.marks) >= m.maxSize {
			return 0, false
		}
	}
	m.size.Add(1)
	return m.set(id, now), true
}

func (m *inMemoryMarker) Release(ctx context.Context, id string, tok Token) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.marks[id]; ok && cur.token == tok {
		delete(m.marks, id)
		m.size.Add(-1)
	}
}

// set must be called with m.mu held.
func (m *inMemoryMarker) set(id string, now time.Time) Token {
	m.seq++
	m.marks[id] = mark{at: now, token: m.seq}
	return m.seq
}

func (m *inMemoryMarker) Size() int64 {
	return m.size.Load()
}

func (m *inMemoryMarker) expired(at, now time.Time) bool {
	return m.ttl > 0 && now.Sub(at) >= m.ttl
}

// evictExpired must be called with m.mu held.
func (m *inMemoryMarker) evictExpired(now time.Time) {
	for id, cur := range m.marks {
		if m.expired(cur.at, now) {
			delete(m.marks, id)
			m.size.Add(-1)
		}
	}
}
