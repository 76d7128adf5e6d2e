package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/okian/raceday/internal/domain/model"
	"github.com/okian/raceday/pkg/logger"
)

const (
	planPrefix  = "plan/"
	quotaPrefix = "quota/"

	// Attempts for a read-modify-write transaction that hits a conflict.
	txnAttempts = 5
)

// quotaEntry is stored under quota/<user>/<plan> with the user id path
// escaped, so one user's prefix never covers another's keys.
type quotaEntry struct {
	Season    string    `json:"season"`
	Refunded  bool      `json:"refunded"`
	CreatedAt time.Time `json:"created_at"`
}

// BadgerStore keeps plans and the quota ledger in an embedded Badger
// database. Each plan is one JSON value.
type BadgerStore struct {
	db   *badger.DB
	opts options
}

// OpenBadger opens a Badger database at dir. An empty dir opens an
// in-memory database.
func OpenBadger(dir string, opts ...Option) (*BadgerStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var bo badger.Options
	if dir == "" {
		bo = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", dir, err)
		}
		bo = badger.DefaultOptions(dir)
	}
	bo = bo.WithSyncWrites(o.syncWrites).WithNumVersionsToKeep(1)
	if o.badgerLog != nil {
		bo = bo.WithLogger(&badgerLogger{l: o.badgerLog})
	} else {
		bo = bo.WithLogger(nil)
	}

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, opts: o}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) CreatePlan(ctx context.Context, plan *model.RacePlan) error {
	defer observe("create_plan", time.Now())
	if plan == nil || plan.ID == "" {
		return ErrInvalidPlan
	}
	stored := &model.RacePlan{
		ID:        plan.ID,
		UserID:    plan.UserID,
		Status:    plan.Status,
		Input:     plan.Input,
		CreatedAt: plan.CreatedAt,
		UpdatedAt: plan.UpdatedAt,
	}
	return s.retry(func(txn *badger.Txn) error {
		key := []byte(planPrefix + plan.ID)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: %s", ErrPlanExists, plan.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, key, stored)
	})
}

func (s *BadgerStore) GetPlan(ctx context.Context, id string) (*model.RacePlan, error) {
	defer observe("get_plan", time.Now())
	var p *model.RacePlan
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		p, err = getPlan(txn, id)
		return err
	})
	return p, err
}

func (s *BadgerStore) SavePrepared(ctx context.Context, id string, course *model.CourseGeometry, weather *model.Weather) error {
	defer observe("save_prepared", time.Now())
	return s.mutate(id, func(p *model.RacePlan) {
		if course != nil {
			p.Course = course
		}
		if weather != nil {
			p.Weather = weather
		}
	})
}

func (s *BadgerStore) SaveComputed(ctx context.Context, id string, c Computed) error {
	defer observe("save_computed", time.Now())
	return s.mutate(id, func(p *model.RacePlan) {
		p.Prediction = c.Prediction
		p.Segments = c.Segments
		p.Nutrition = c.Nutrition
		p.Statistics = c.Statistics
	})
}

func (s *BadgerStore) SaveNarrative(ctx context.Context, id, text string) error {
	defer observe("save_narrative", time.Now())
	return s.mutate(id, func(p *model.RacePlan) {
		p.Narrative = &text
	})
}

func (s *BadgerStore) MarkCompleted(ctx context.Context, id string) error {
	defer observe("mark_completed", time.Now())
	return s.mutate(id, func(p *model.RacePlan) {
		p.Status = model.StatusCompleted
	})
}

func (s *BadgerStore) MarkFailed(ctx context.Context, id, message string) error {
	defer observe("mark_failed", time.Now())
	return s.mutate(id, func(p *model.RacePlan) {
		p.Status = model.StatusFailed
		p.ErrorMessage = &message
	})
}

func (s *BadgerStore) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	defer observe("list_stale", time.Now())
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	var stale []*model.RacePlan
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(planPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var p model.RacePlan
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &p) }); err != nil {
				return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
			}
			if p.Status == model.StatusGenerating && p.CreatedAt.Before(cutoff) {
				stale = append(stale, &p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(stale, func(i, j int) bool {
		if !stale[i].CreatedAt.Equal(stale[j].CreatedAt) {
			return stale[i].CreatedAt.Before(stale[j].CreatedAt)
		}
		return stale[i].ID < stale[j].ID
	})
	ids := make([]string, 0, min(limit, len(stale)))
	for _, p := range stale {
		if len(ids) == limit {
			break
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (s *BadgerStore) Increment(ctx context.Context, userID, season, planID string) (int, error) {
	defer observe("quota_increment", time.Now())
	key := quotaKey(userID, planID)
	err := s.retry(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, key, quotaEntry{Season: season, CreatedAt: s.opts.now().UTC()})
	})
	if err != nil {
		return 0, fmt.Errorf("quota increment %s: %w", userID, err)
	}
	return s.Count(ctx, userID, season)
}

func (s *BadgerStore) Refund(ctx context.Context, userID, planID string) (bool, error) {
	defer observe("quota_refund", time.Now())
	key := quotaKey(userID, planID)
	refunded := false
	err := s.retry(func(txn *badger.Txn) error {
		refunded = false
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var e quotaEntry
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
		if e.Refunded {
			return nil
		}
		e.Refunded = true
		refunded = true
		return setJSON(txn, key, e)
	})
	if err != nil {
		return false, fmt.Errorf("quota refund %s: %w", planID, err)
	}
	return refunded, nil
}

func (s *BadgerStore) Count(ctx context.Context, userID, season string) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := quotaUserPrefix(userID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e quotaEntry
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
				return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
			}
			if e.Season == season && !e.Refunded {
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("quota count %s: %w", userID, err)
	}
	return n, nil
}

func quotaUserPrefix(userID string) []byte {
	return []byte(quotaPrefix + url.PathEscape(userID) + "/")
}

func quotaKey(userID, planID string) []byte {
	return append(quotaUserPrefix(userID), planID...)
}

// mutate applies fn to a generating plan and writes it back.
func (s *BadgerStore) mutate(id string, fn func(*model.RacePlan)) error {
	return s.retry(func(txn *badger.Txn) error {
		p, err := getPlan(txn, id)
		if err != nil {
			return err
		}
		if p.Status.Terminal() {
			return fmt.Errorf("%w: %s is %s", ErrPlanTerminal, id, p.Status)
		}
		fn(p)
		p.UpdatedAt = s.opts.now().UTC()
		return setJSON(txn, []byte(planPrefix+id), p)
	})
}

func (s *BadgerStore) retry(fn func(*badger.Txn) error) error {
	var err error
	for i := 0; i < txnAttempts; i++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getPlan(txn *badger.Txn, id string) (*model.RacePlan, error) {
	item, err := txn.Get([]byte(planPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var p model.RacePlan
	if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &p) }); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return &p, nil
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}

// badgerLogger adapts the service logger to badger.Logger.
type badgerLogger struct {
	l logger.Logger
}

func (b *badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error(context.Background(), fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn(context.Background(), fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debug(context.Background(), fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Debug(context.Background(), fmt.Sprintf(format, args...))
}
