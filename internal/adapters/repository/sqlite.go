package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/okian/raceday/internal/domain/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS plans (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	status        TEXT NOT NULL,
	input         TEXT,
	course        TEXT,
	weather       TEXT,
	prediction    TEXT,
	segments      TEXT,
	nutrition     TEXT,
	statistics    TEXT,
	narrative     TEXT,
	error_message TEXT,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS plans_status_created ON plans (status, created_at);
CREATE TABLE IF NOT EXISTS quota_ledger (
	plan_id    TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	season     TEXT NOT NULL,
	refunded   INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS quota_user_season ON quota_ledger (user_id, season, refunded);
`

const planColumns = `id, user_id, status, input, course, weather, prediction, segments,
	nutrition, statistics, narrative, error_message, created_at, updated_at`

// SQLiteStore keeps plans and the quota ledger in SQLite. Stage outputs are
// JSON columns.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

// OpenSQLite opens (and migrates) the database at path.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(o.maxOpenConn)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db, opts: o}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreatePlan(ctx context.Context, plan *model.RacePlan) error {
	defer observe("create_plan", time.Now())
	if plan == nil || plan.ID == "" {
		return ErrInvalidPlan
	}
	input, err := encodeJSON(plan.Input)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO plans (id, user_id, status, input, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.UserID, string(plan.Status), input, plan.CreatedAt.UnixNano(), plan.UpdatedAt.UnixNano())
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return fmt.Errorf("%w: %s", ErrPlanExists, plan.ID)
	}
	if err != nil {
		return fmt.Errorf("insert plan %s: %w", plan.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetPlan(ctx context.Context, id string) (*model.RacePlan, error) {
	defer observe("get_plan", time.Now())
	row := s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`, id)

	var (
		p                    model.RacePlan
		status               string
		createdAt, updatedAt int64
	)
	var input, course, weather, prediction, segments, nutrition, stats, narrative, errMsg sql.NullString
	err := row.Scan(&p.ID, &p.UserID, &status, &input, &course, &weather, &prediction, &segments,
		&nutrition, &stats, &narrative, &errMsg, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select plan %s: %w", id, err)
	}

	p.Status = model.PlanStatus(status)
	p.CreatedAt = time.Unix(0, createdAt).UTC()
	p.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if narrative.Valid {
		p.Narrative = &narrative.String
	}
	if errMsg.Valid {
		p.ErrorMessage = &errMsg.String
	}
	if p.Input, err = decodeJSON[model.GenerationInput](input); err != nil {
		return nil, err
	}
	if p.Course, err = decodeJSON[model.CourseGeometry](course); err != nil {
		return nil, err
	}
	if p.Weather, err = decodeJSON[model.Weather](weather); err != nil {
		return nil, err
	}
	if p.Prediction, err = decodeJSON[model.PredictionResult](prediction); err != nil {
		return nil, err
	}
	if p.Segments, err = decodeJSON[model.PacingPlan](segments); err != nil {
		return nil, err
	}
	if p.Nutrition, err = decodeJSON[model.NutritionPlan](nutrition); err != nil {
		return nil, err
	}
	if p.Statistics, err = decodeJSON[model.StatisticalContext](stats); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) SavePrepared(ctx context.Context, id string, course *model.CourseGeometry, weather *model.Weather) error {
	defer observe("save_prepared", time.Now())
	c, err := encodeJSON(course)
	if err != nil {
		return err
	}
	w, err := encodeJSON(weather)
	if err != nil {
		return err
	}
	return s.update(ctx, id,
		`UPDATE plans SET course = COALESCE(?, course), weather = COALESCE(?, weather), updated_at = ?
		 WHERE id = ? AND status = 'generating'`,
		c, w)
}

func (s *SQLiteStore) SaveComputed(ctx context.Context, id string, c Computed) error {
	defer observe("save_computed", time.Now())
	args, err := encodeComputed(c)
	if err != nil {
		return err
	}
	return s.update(ctx, id,
		`UPDATE plans SET prediction = ?, segments = ?, nutrition = ?, statistics = ?, updated_at = ?
		 WHERE id = ? AND status = 'generating'`,
		args...)
}

func (s *SQLiteStore) SaveNarrative(ctx context.Context, id, text string) error {
	defer observe("save_narrative", time.Now())
	return s.update(ctx, id,
		`UPDATE plans SET narrative = ?, updated_at = ? WHERE id = ? AND status = 'generating'`,
		text)
}

func (s *SQLiteStore) MarkCompleted(ctx context.Context, id string) error {
	defer observe("mark_completed", time.Now())
	return s.update(ctx, id,
		`UPDATE plans SET status = 'completed', updated_at = ? WHERE id = ? AND status = 'generating'`)
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id, message string) error {
	defer observe("mark_failed", time.Now())
	return s.update(ctx, id,
		`UPDATE plans SET status = 'failed', error_message = ?, updated_at = ? WHERE id = ? AND status = 'generating'`,
		message)
}

func (s *SQLiteStore) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	defer observe("list_stale", time.Now())
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM plans WHERE status = 'generating' AND created_at < ? ORDER BY created_at, id LIMIT ?`,
		cutoff.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale plans: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// update runs a guarded UPDATE whose trailing placeholders are updated_at
// and id. Zero affected rows means the plan is missing or terminal.
func (s *SQLiteStore) update(ctx context.Context, id, query string, args ...any) error {
	args = append(args, s.opts.now().UnixNano(), id)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update plan %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM plans WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", ErrPlanTerminal, id, status)
}

func (s *SQLiteStore) Increment(ctx context.Context, userID, season, planID string) (int, error) {
	defer observe("quota_increment", time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO quota_ledger (plan_id, user_id, season, created_at) VALUES (?, ?, ?, ?)`,
		planID, userID, season, s.opts.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("quota increment %s: %w", userID, err)
	}
	return s.Count(ctx, userID, season)
}

func (s *SQLiteStore) Refund(ctx context.Context, userID, planID string) (bool, error) {
	defer observe("quota_refund", time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE quota_ledger SET refunded = 1 WHERE plan_id = ? AND user_id = ? AND refunded = 0`,
		planID, userID)
	if err != nil {
		return false, fmt.Errorf("quota refund %s: %w", planID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) Count(ctx context.Context, userID, season string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM quota_ledger WHERE user_id = ? AND season = ? AND refunded = 0`,
		userID, season).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("quota count %s: %w", userID, err)
	}
	return n, nil
}

func encodeJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return string(b), nil
}

func encodeComputed(c Computed) ([]any, error) {
	prediction, err := encodeJSON(c.Prediction)
	if err != nil {
		return nil, err
	}
	segments, err := encodeJSON(c.Segments)
	if err != nil {
		return nil, err
	}
	nutrition, err := encodeJSON(c.Nutrition)
	if err != nil {
		return nil, err
	}
	stats, err := encodeJSON(c.Statistics)
	if err != nil {
		return nil, err
	}
	return []any{prediction, segments, nutrition, stats}, nil
}

func decodeJSON[T any](s sql.NullString) (*T, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	v := new(T)
	if err := json.Unmarshal([]byte(s.String), v); err != nil {
		return nil, fmt.Errorf("%w: decode %T: %v", ErrCorruptRecord, v, err)
	}
	return v, nil
}
