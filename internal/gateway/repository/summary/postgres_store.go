package summary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"testsummary/internal/gateway/repository/lazyinit"
)

// PostgresStore keeps summaries in the summary_cache table.
type PostgresStore struct {
	db     *sqlx.DB
	schema lazyinit.Gate
	now    func() time.Time
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

type cacheRow struct {
	Value     []byte    `db:"value"`
	ExpiresAt time.Time `db:"expires_at"`
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is nil")
	}
	return s.schema.Do(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS summary_cache (
  cache_key TEXT PRIMARY KEY,
  value BYTEA NOT NULL,
  expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_summary_cache_expires_at ON summary_cache (expires_at);
`)
		return err
	})
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, false, err
	}
	key = normalizeKey(key)
	var row cacheRow
	err := s.db.GetContext(ctx, &row, `SELECT value, expires_at FROM summary_cache WHERE cache_key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if expired(row.ExpiresAt, s.now()) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM summary_cache WHERE cache_key = $1 AND expires_at <= $2`, key, s.now())
		return nil, false, nil
	}
	return row.Value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	key = normalizeKey(key)
	if key == "" {
		return fmt.Errorf("key is required")
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO summary_cache (cache_key, value, expires_at, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (cache_key)
DO UPDATE SET value=EXCLUDED.value, expires_at=EXCLUDED.expires_at, updated_at=EXCLUDED.updated_at`,
		key, value, now.Add(ttl), now)
	return err
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM summary_cache`)
	return err
}

// PurgeExpired deletes every expired row and reports how many were removed.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM summary_cache WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is nil")
	}
	return s.db.PingContext(ctx)
}
