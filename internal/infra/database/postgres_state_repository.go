// internal/infra/database/postgres_state_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq" // For pq.Array and pq.Int64Array

	"review_notification_bot/internal/domain/state"
)

const stateTable = "monitor_state"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStateRepository stores one state row per monitor key. Several
// monitors watching different products can share the table.
type PostgresStateRepository struct {
	db  *sql.DB
	key string
}

var _ state.Repository = (*PostgresStateRepository)(nil)

func NewPostgresStateRepository(db *sql.DB, key string) *PostgresStateRepository {
	return &PostgresStateRepository{db: db, key: key}
}

func (r *PostgresStateRepository) Load(ctx context.Context) (state.State, error) {
	query, args, err := loadStateQuery(r.key)
	if err != nil {
		return state.State{}, fmt.Errorf("build load state query: %w", err)
	}

	var (
		s                     state.State
		seen                  pq.Int64Array
		lastChecked, lastSent sql.NullTime
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&s.LastReviewID, &seen, &lastChecked, &lastSent)
	if errors.Is(err, sql.ErrNoRows) {
		return state.State{}, nil
	}
	if err != nil {
		return state.State{}, fmt.Errorf("error loading monitor state %q: %w", r.key, err)
	}

	s.SeenReviewIDs = []int64(seen)
	if lastChecked.Valid {
		s.LastChecked = state.At(lastChecked.Time.UTC())
	}
	if lastSent.Valid {
		s.LastNotificationSent = state.At(lastSent.Time.UTC())
	}
	return s, nil
}

// Save upserts the row in one statement, so a failed write leaves the previous
// state in place.
func (r *PostgresStateRepository) Save(ctx context.Context, s state.State) error {
	query, args, err := saveStateQuery(r.key, s)
	if err != nil {
		return fmt.Errorf("build save state query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error saving monitor state %q: %w", r.key, err)
	}
	return nil
}

func loadStateQuery(key string) (string, []interface{}, error) {
	return psql.
		Select("last_review_id", "seen_review_ids", "last_checked", "last_notification_sent").
		From(stateTable).
		Where(sq.Eq{"monitor_key": key}).
		ToSql()
}

func saveStateQuery(key string, s state.State) (string, []interface{}, error) {
	seen := s.SeenReviewIDs
	if seen == nil {
		seen = []int64{}
	}
	return psql.
		Insert(stateTable).
		Columns("monitor_key", "last_review_id", "seen_review_ids", "last_checked", "last_notification_sent").
		Values(key, s.LastReviewID, pq.Array(seen), nullTime(s.LastChecked.Time), nullTime(s.LastNotificationSent.Time)).
		Suffix(`ON CONFLICT (monitor_key) DO UPDATE
              SET last_review_id = EXCLUDED.last_review_id,
                  seen_review_ids = EXCLUDED.seen_review_ids,
                  last_checked = EXCLUDED.last_checked,
                  last_notification_sent = EXCLUDED.last_notification_sent,
                  updated_at = NOW()`).
		ToSql()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
