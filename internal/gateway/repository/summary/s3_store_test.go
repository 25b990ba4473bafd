package summary

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiryFromMetadata(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC)
	for _, k := range []string{"Expires-At", "expires-at", "X-Amz-Meta-Expires-At"} {
		got, ok := expiryFromMetadata(map[string]string{"Other": "x", k: at.Format(time.RFC3339Nano)})
		require.True(t, ok, k)
		assert.True(t, at.Equal(got), k)
	}
	_, ok := expiryFromMetadata(map[string]string{"Expires-At": "soon"})
	assert.False(t, ok)
	_, ok = expiryFromMetadata(nil)
	assert.False(t, ok)
}

func TestNewS3StoreValidatesConfig(t *testing.T) {
	_, err := NewS3Store(S3Config{})
	assert.Error(t, err)
	_, err = NewS3Store(S3Config{Endpoint: "localhost:9000", Bucket: "b"})
	assert.Error(t, err)
	_, err = NewS3Store(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"})
	assert.Error(t, err)

	s, err := NewS3Store(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "summaries/summary:T1:fp:expanded", s.objectKey(" summary:T1:fp:expanded "))
}

func TestS3StoreBucketCheckSurvivesCancelledCaller(t *testing.T) {
	var heads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			heads.Add(1)
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			w.Header().Set("ETag", `"etag"`)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	s, err := NewS3Store(S3Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "a",
		SecretKey: "s",
		Bucket:    "b",
	})
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, _ = s.Get(cancelled, "k")

	err = s.Set(context.Background(), "k", []byte(`{"text":"x"}`), time.Minute)
	require.NoError(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(1), heads.Load(), "bucket check runs once and is not retried after success")
}

// Runs against a real MinIO when TEST_S3_ENDPOINT is set.
func TestS3StoreRoundTrip(t *testing.T) {
	endpoint := os.Getenv("TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_S3_ENDPOINT not set")
	}
	s, err := NewS3Store(S3Config{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("TEST_S3_SECRET_KEY"),
		Bucket:    "summary-cache-test",
		Prefix:    "test-" + time.Now().Format("20060102150405"),
	})
	require.NoError(t, err)
	ctx := context.Background()
	t.Cleanup(func() { _ = s.Clear(ctx) })

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Set(ctx, "k", []byte(`{"text":"x"}`), time.Minute))
	raw, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"text":"x"}`, string(raw))

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
