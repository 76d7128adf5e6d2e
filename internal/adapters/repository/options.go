package repository

import (
	"time"

	"github.com/okian/raceday/pkg/logger"
)

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	now         func() time.Time
	syncWrites  bool
	badgerLog   logger.Logger
	maxOpenConn int
}

func defaultOptions() options {
	return options{
		now:         time.Now,
		syncWrites:  true,
		maxOpenConn: 1,
	}
}

// WithClock replaces the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSyncWrites toggles synchronous Badger writes.
func WithSyncWrites(sync bool) Option {
	return func(o *options) {
		o.syncWrites = sync
	}
}

// WithBadgerLogger routes Badger's internal logging to l.
func WithBadgerLogger(l logger.Logger) Option {
	return func(o *options) {
		o.badgerLog = l
	}
}

// WithMaxOpenConns bounds SQLite connections.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConn = n
		}
	}
}
