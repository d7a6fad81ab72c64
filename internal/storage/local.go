package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blobdrop/service/internal/naming"
)

const (
	tmpPrefix  = ".tmp-"
	metaPrefix = ".meta-"
)

// localMeta is the sidecar stored next to each object.
type localMeta struct {
	ContentType string `json:"contentType"`
}

// LocalStorage implements Storage on a directory of the local filesystem.
// Keys map to paths below BaseDir; "/" in a key becomes a subdirectory. The
// content type of each object lives in a ".meta-<name>" file beside it.
type LocalStorage struct {
	baseDir   string
	container string
}

// NewLocalStorage stores objects under baseDir/container.
func NewLocalStorage(baseDir, container string) *LocalStorage {
	return &LocalStorage{
		baseDir:   filepath.Join(baseDir, container),
		container: container,
	}
}

// Container returns the container name.
func (s *LocalStorage) Container() string { return s.container }

// EnsureContainer creates the container directory.
func (s *LocalStorage) EnsureContainer(context.Context) error {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("create container dir: %w", err)
	}
	return nil
}

// Ping checks the container directory is present.
func (s *LocalStorage) Ping(context.Context) error {
	fi, err := os.Stat(s.baseDir)
	if err != nil {
		return fmt.Errorf("stat container dir: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", s.baseDir)
	}
	return nil
}

// Put writes r to a temporary file and moves it into place. Without
// overwrite the final step is a hard link, which fails if the key appeared
// in the meantime.
func (s *LocalStorage) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string, overwrite bool) error {
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(dst); err == nil {
			return ErrAlreadyExists
		}
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir for %q: %w", key, err)
	}

	tmp := filepath.Join(dir, tmpPrefix+uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp) //nolint:errcheck

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write object %q: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close object %q: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if overwrite {
		if err := os.Rename(tmp, dst); err != nil {
			return fmt.Errorf("move object %q: %w", key, err)
		}
		return writeMeta(dst, contentType)
	}
	if err := os.Link(tmp, dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("link object %q: %w", key, err)
	}
	// The key is ours now; give it back if its metadata cannot be recorded.
	if err := writeMeta(dst, contentType); err != nil {
		os.Remove(dst) //nolint:errcheck
		return err
	}
	return nil
}

func metaPath(dst string) string {
	return filepath.Join(filepath.Dir(dst), metaPrefix+filepath.Base(dst))
}

// writeMeta replaces the sidecar of dst. An empty contentType removes it.
func writeMeta(dst, contentType string) error {
	mp := metaPath(dst)
	if contentType == "" {
		if err := os.Remove(mp); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove metadata: %w", err)
		}
		return nil
	}

	b, err := json.Marshal(localMeta{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	tmp := filepath.Join(filepath.Dir(dst), tmpPrefix+uuid.NewString())
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := os.Rename(tmp, mp); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("move metadata: %w", err)
	}
	return nil
}

// storedContentType returns the stored type of the object at dst, falling back to
// the type implied by the key's extension.
func storedContentType(key, dst string) string {
	b, err := os.ReadFile(metaPath(dst))
	if err == nil {
		var m localMeta
		if json.Unmarshal(b, &m) == nil && m.ContentType != "" {
			return m.ContentType
		}
	}
	return naming.ContentType(key, "")
}

// List walks the container directory and returns objects under prefix.
func (s *LocalStorage) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == s.baseDir {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || reserved(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, fileInfo(key, fi, storedContentType(key, path)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Get opens the file for key.
func (s *LocalStorage) Get(_ context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ObjectInfo{}, ErrNotFound
		}
		return nil, ObjectInfo{}, fmt.Errorf("open object %q: %w", key, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ObjectInfo{}, fmt.Errorf("stat object %q: %w", key, err)
	}
	if fi.IsDir() {
		f.Close()
		return nil, ObjectInfo{}, ErrNotFound
	}
	return f, fileInfo(key, fi, storedContentType(key, p)), nil
}

// PresignGet is not supported for files on disk.
func (s *LocalStorage) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", ErrSigningUnsupported
}

// path maps key below baseDir, refusing anything that would escape it.
func (s *LocalStorage) path(key string) (string, error) {
	if key == "" || strings.ContainsRune(key, '\\') {
		return "", fmt.Errorf("invalid key %q: %w", key, ErrNotFound)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." || reserved(seg) {
			return "", fmt.Errorf("invalid key %q: %w", key, ErrNotFound)
		}
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(key)), nil
}

// reserved reports names used for temporary and metadata files.
func reserved(name string) bool {
	return strings.HasPrefix(name, tmpPrefix) || strings.HasPrefix(name, metaPrefix)
}

func fileInfo(key string, fi fs.FileInfo, contentType string) ObjectInfo {
	return ObjectInfo{
		Key:          key,
		Size:         fi.Size(),
		LastModified: fi.ModTime().UTC(),
		ContentType:  contentType,
	}
}
