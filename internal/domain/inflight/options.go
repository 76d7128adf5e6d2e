package inflight

import "time"

// Option applies a configuration option to the in-memory marker.
type Option func(*inMemoryMarker)

// WithMaxSize bounds the number of concurrent marks. Zero or negative means
// unbounded.
func WithMaxSize(maxSize int) Option {
	return func(m *inMemoryMarker) {
		m.maxSize = maxSize
	}
}

// WithTTL sets how long a mark holds before it counts as abandoned. Zero
// means marks never expire.
func WithTTL(ttl time.Duration) Option {
	return func(m *inMemoryMarker) {
		if ttl >= 0 {
			m.ttl = ttl
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(m *inMemoryMarker) {
		if now != nil {
			m.now = now
		}
	}
}
