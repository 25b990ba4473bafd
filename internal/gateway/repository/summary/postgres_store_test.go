package summary

import (
	"context"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreRetriesSchemaAfterFailure(t *testing.T) {
	db, err := sqlx.Open("pgx", "postgres://u:p@127.0.0.1:1/none?connect_timeout=1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := NewPostgresStore(db)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = s.Get(cancelled, "k")
	require.Error(t, err)
	assert.False(t, s.schema.Done(), "a failed schema setup must be retried on the next call")
}

// Runs against a real database when TEST_POSTGRES_DSN is set.
func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	db, err := sqlx.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewPostgresStore(db)
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Clear(ctx))

	require.NoError(t, s.Set(ctx, "k", []byte("v1"), time.Minute))
	require.NoError(t, s.Set(ctx, "k", []byte("v2"), time.Minute))
	raw, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", string(raw))

	require.NoError(t, s.Set(ctx, "old", []byte("x"), time.Millisecond))
	s.now = func() time.Time { return time.Now().Add(time.Second) }
	_, ok, err = s.Get(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(0))

	require.NoError(t, s.Clear(ctx))
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
