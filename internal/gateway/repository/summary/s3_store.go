package summary

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"testsummary/internal/gateway/repository/lazyinit"
)

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// S3Store keeps one object per summary. The expiry travels in user metadata
// because object storage has no per-object TTL that is visible on read.
type S3Store struct {
	client     *minio.Client
	bucketName string
	region     string
	prefix     string
	bucketInit lazyinit.Gate
	now        func() time.Time
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	if prefix == "" {
		prefix = "summaries"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Store{client: client, bucketName: bucket, region: region, prefix: prefix + "/", now: time.Now}, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("store is nil")
	}
	return s.bucketInit.Do(ctx, func(ctx context.Context) error {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil || exists {
			return err
		}
		return s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
}

func (s *S3Store) objectKey(key string) string {
	return s.prefix + normalizeKey(key)
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, false, fmt.Errorf("ensure bucket: %w", err)
	}
	name := s.objectKey(key)
	obj, err := s.client.GetObject(ctx, s.bucketName, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, err
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if expiresAt, ok := expiryFromMetadata(info.UserMetadata); !ok || expired(expiresAt, s.now()) {
		_ = s.client.RemoveObject(ctx, s.bucketName, name, minio.RemoveObjectOptions{})
		return nil, false, nil
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *S3Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if normalizeKey(key) == "" {
		return fmt.Errorf("key is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	expiresAt := s.now().Add(ttl).UTC().Format(time.RFC3339Nano)
	_, err := s.client.PutObject(ctx, s.bucketName, s.objectKey(key), bytes.NewReader(value), int64(len(value)), minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: map[string]string{expiresAtMeta: expiresAt},
	})
	return err
}

func (s *S3Store) Clear(ctx context.Context) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}) {
		if obj.Err != nil {
			return obj.Err
		}
		if err := s.client.RemoveObject(ctx, s.bucketName, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}
	return nil
}

func (s *S3Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("store is nil")
	}
	_, err := s.client.BucketExists(ctx, s.bucketName)
	return err
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

// expiryFromMetadata finds the expiry header regardless of how the server
// cased or prefixed it.
func expiryFromMetadata(meta map[string]string) (time.Time, bool) {
	for k, v := range meta {
		name := strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")
		if name != strings.ToLower(expiresAtMeta) {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v))
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}
