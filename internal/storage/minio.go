package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds connection settings for an S3-compatible endpoint.
type MinioConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Region     string
	Bucket     string
	UseSSL     bool
	PublicRead bool
}

// MinioStorage implements Storage using a MinIO (or any S3-compatible) backend.
// Point STORAGE_ENDPOINT and credentials at another provider to switch.
type MinioStorage struct {
	client     *minio.Client
	bucket     string
	region     string
	publicRead bool
	logger     *slog.Logger
}

// NewMinioStorage creates a MinIO client for cfg.Bucket. It does not touch the
// network; call EnsureContainer during startup.
func NewMinioStorage(cfg MinioConfig, logger *slog.Logger) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinioStorage{
		client:     client,
		bucket:     cfg.Bucket,
		region:     cfg.Region,
		publicRead: cfg.PublicRead,
		logger:     logger,
	}, nil
}

// Container returns the bucket name.
func (s *MinioStorage) Container() string { return s.bucket }

// EnsureContainer creates the bucket when missing and, if configured, applies a
// public-read policy. A bucket created concurrently by another process is fine.
func (s *MinioStorage) EnsureContainer(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
		if err != nil && !isBucketOwned(err) {
			return fmt.Errorf("create bucket %q: %w", s.bucket, err)
		}
		if err == nil {
			s.logger.Info("storage: created bucket", slog.String("bucket", s.bucket))
		}
	}

	if s.publicRead {
		if err := s.client.SetBucketPolicy(ctx, s.bucket, publicReadPolicy(s.bucket)); err != nil {
			return fmt.Errorf("set bucket policy: %w", err)
		}
	}
	return nil
}

// Put streams reader to MinIO under key. size must be the exact byte count
// (-1 if unknown, in which case MinIO buffers it).
//
// With overwrite false the write carries If-None-Match: *, so the server
// rejects it with 412 when key already exists and exactly one of several
// concurrent writers wins.
func (s *MinioStorage) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string, overwrite bool) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if !overwrite {
		opts.SetMatchETagExcept("*")
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, opts)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "PreconditionFailed" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

// List returns every object under prefix.
func (s *MinioStorage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		out = append(out, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			ContentType:  obj.ContentType,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Get opens the object at key.
func (s *MinioStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ObjectInfo{}, ErrNotFound
		}
		return nil, ObjectInfo{}, fmt.Errorf("stat object %q: %w", key, err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("get object %q: %w", key, err)
	}

	return obj, ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
	}, nil
}

// PresignGet returns a presigned GET URL for key valid for ttl.
func (s *MinioStorage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("stat object %q: %w", key, err)
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign object %q: %w", key, err)
	}
	return u.String(), nil
}

// Ping checks that the bucket is reachable with the configured credentials.
func (s *MinioStorage) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func isBucketOwned(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists"
}

// publicReadPolicy returns an S3 bucket policy JSON that allows anonymous GET on all objects.
func publicReadPolicy(bucket string) string {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}
