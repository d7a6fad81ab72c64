package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// MemoryStorage implements Storage using an in-memory map.
// It is meant for development and tests; contents vanish with the process.
type MemoryStorage struct {
	mu        sync.RWMutex
	objects   map[string]*memoryObject
	container string
	now       func() time.Time
}

// NewMemoryStorage creates an empty in-memory container.
func NewMemoryStorage(container string) *MemoryStorage {
	return &MemoryStorage{
		objects:   make(map[string]*memoryObject),
		container: container,
		now:       time.Now,
	}
}

// Container returns the container name.
func (s *MemoryStorage) Container() string { return s.container }

// EnsureContainer is a no-op.
func (s *MemoryStorage) EnsureContainer(context.Context) error { return nil }

// Ping always succeeds.
func (s *MemoryStorage) Ping(context.Context) error { return nil }

// Put reads r fully and stores it under key.
func (s *MemoryStorage) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string, overwrite bool) error {
	if !overwrite && s.exists(key) {
		return ErrAlreadyExists
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read object %q: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.objects[key]; taken && !overwrite {
		return ErrAlreadyExists
	}
	s.objects[key] = &memoryObject{
		data:         data,
		contentType:  contentType,
		lastModified: s.now().UTC(),
	}
	return nil
}

func (s *MemoryStorage) exists(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok
}

// List returns the objects under prefix ordered by key.
func (s *MemoryStorage) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ObjectInfo, 0, len(s.objects))
	for key, obj := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, obj.info(key))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Get returns a reader over the stored bytes.
func (s *MemoryStorage) Get(_ context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, ObjectInfo{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.info(key), nil
}

// PresignGet is not supported; there are no credentials to sign with.
func (s *MemoryStorage) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", ErrSigningUnsupported
}

func (o *memoryObject) info(key string) ObjectInfo {
	return ObjectInfo{
		Key:          key,
		Size:         int64(len(o.data)),
		LastModified: o.lastModified,
		ContentType:  o.contentType,
	}
}
