// Package storage defines the interface for object storage operations.
// The backend is chosen at startup by New. The MinIO implementation works
// with any S3-compatible provider.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrAlreadyExists is returned by Put when overwrite is false and the key is taken.
var ErrAlreadyExists = errors.New("object already exists")

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// ErrSigningUnsupported is returned by PresignGet when the backend holds no
// credentials that can sign a URL.
var ErrSigningUnsupported = errors.New("signed urls not supported by this backend")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	ContentType  string    `json:"contentType,omitempty"`
}

// Storage is the interface for writing, listing and reading objects in one container.
type Storage interface {
	// Put streams r to the store under key. With overwrite false an existing
	// key fails with ErrAlreadyExists and r is left unread.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, overwrite bool) error
	// List returns every object whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Get opens the object at key for reading. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// PresignGet returns a read-only URL for key that expires after ttl.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	// EnsureContainer creates the container if needed. It is idempotent.
	EnsureContainer(ctx context.Context) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	// Container names the target namespace.
	Container() string
}
