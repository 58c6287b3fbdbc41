package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/presence/internal/config"
)

const (
	referencePrefix = "references/"
	snapshotPrefix  = "snapshots/"
	jpegContentType = "image/jpeg"

	objectTimeFormat = "20060102T150405.000Z"
)

// MinIOStore keeps enrollment reference images and unknown-person snapshots.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// PutReference stores the enrollment image for an identity and returns its key.
// Every upload gets its own key, so a failed re-enrollment never overwrites the
// image the current identity points to.
func (s *MinIOStore) PutReference(ctx context.Context, identityID string, data []byte) (string, error) {
	key := ReferenceKey(identityID, time.Now())
	if err := s.putObject(ctx, key, data, jpegContentType); err != nil {
		return "", err
	}
	return key, nil
}

// PutSnapshot stores a frame that raised an unknown-person alert.
func (s *MinIOStore) PutSnapshot(ctx context.Context, camera string, ts time.Time, data []byte) (string, error) {
	key := SnapshotKey(camera, ts)
	if err := s.putObject(ctx, key, data, jpegContentType); err != nil {
		return "", err
	}
	return key, nil
}

// GetObject retrieves data by key.
func (s *MinIOStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

func (s *MinIOStore) DeleteObject(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// Ping checks MinIO connectivity.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func (s *MinIOStore) putObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// ReferenceKey returns e.g. references/dr._smith/20240102T150405.000Z.jpg.
func ReferenceKey(identityID string, ts time.Time) string {
	return path.Join(referencePrefix, objectName(identityID), ts.UTC().Format(objectTimeFormat)+".jpg")
}

// SnapshotKey returns e.g. snapshots/main_entrance/20240102T150405.000Z.jpg.
func SnapshotKey(camera string, ts time.Time) string {
	return path.Join(snapshotPrefix, objectName(camera), ts.UTC().Format(objectTimeFormat)+".jpg")
}

func objectName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '_'
	}, s)
}
