// Package upload runs the upload pipeline: resolve a key, check the content
// type, write to storage and retry once under an alternate key on collision.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/blobdrop/service/internal/naming"
	"github.com/blobdrop/service/internal/storage"
)

// sniffLen is how many leading bytes are inspected when sniffing content.
const sniffLen = 3072

// Options configure the pipeline.
type Options struct {
	// Overwrite replaces existing objects instead of failing and retrying.
	Overwrite bool
	// AllowedContentTypes restricts uploads; entries may end in "/*". Empty allows all.
	AllowedContentTypes []string
	// SniffContentType detects the type from the leading bytes when the
	// filename and declared type give nothing better than octet-stream.
	SniffContentType bool
	// SignedURLTTL is the lifetime of URLs from SignedURL.
	SignedURLTTL time.Duration
}

// UploadRequest is one client upload as handed over by the transport layer.
type UploadRequest struct {
	RawFilename         string
	DeclaredContentType string
	Body                io.Reader
	Size                int64
}

// Result reports where an upload ended up.
type Result struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Container   string `json:"container"`
	Renamed     bool   `json:"renamed"`
}

// SignedURL is a time-limited read link for one object.
type SignedURL struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Listing is the content of the container under the configured prefix.
type Listing struct {
	Container string               `json:"container"`
	Prefix    string               `json:"prefix"`
	Objects   []storage.ObjectInfo `json:"objects"`
}

// Service contains the upload business logic.
type Service struct {
	store    storage.Storage
	resolver *naming.Resolver
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new upload Service writing to store.
func NewService(store storage.Storage, resolver *naming.Resolver, opts Options, logger *slog.Logger) *Service {
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = 30 * time.Minute
	}
	return &Service{
		store:    store,
		resolver: resolver,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Container names the target container.
func (s *Service) Container() string { return s.store.Container() }

// Prefix is the static namespace applied ahead of every key.
func (s *Service) Prefix() string { return s.resolver.Prefix }

// Upload stores req.Body under a key derived from req.RawFilename.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*Result, error) {
	key := s.resolver.Resolve(req.RawFilename, req.DeclaredContentType)

	body := req.Body
	if s.opts.SniffContentType && key.ContentType == naming.DefaultContentType {
		var err error
		body, key.ContentType, err = sniff(body)
		if err != nil {
			uploadsTotal.WithLabelValues(resultBackendError).Inc()
			return nil, fmt.Errorf("%w: read upload: %v", ErrBackendUnavailable, err)
		}
	}

	if !s.allowed(key.ContentType) {
		uploadsTotal.WithLabelValues(resultRejected).Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, key.ContentType)
	}

	cr := &countingReader{r: body}
	err := s.store.Put(ctx, key.StorageKey, cr, req.Size, key.ContentType, s.opts.Overwrite)
	if err == nil {
		return s.done(ctx, key, cr.n, false), nil
	}
	if s.opts.Overwrite || !errors.Is(err, storage.ErrAlreadyExists) {
		return nil, s.backendError(ctx, key.StorageKey, err)
	}

	uploadCollisions.Inc()
	s.logger.WarnContext(ctx, "upload: key collision, retrying under alternate key",
		slog.String("key", key.StorageKey))

	if err := cr.rewind(); err != nil {
		uploadsTotal.WithLabelValues(resultCollisionFailed).Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrUploadFailed, key.StorageKey, err)
	}

	alt := s.resolver.Alternate(req.RawFilename, req.DeclaredContentType)
	alt.ContentType = key.ContentType

	err = s.store.Put(ctx, alt.StorageKey, cr, req.Size, alt.ContentType, false)
	switch {
	case err == nil:
		return s.done(ctx, alt, cr.n, true), nil
	case errors.Is(err, storage.ErrAlreadyExists):
		uploadsTotal.WithLabelValues(resultCollisionFailed).Inc()
		s.logger.ErrorContext(ctx, "upload: alternate key also exists",
			slog.String("key", alt.StorageKey))
		return nil, fmt.Errorf("%w: %s already exists", ErrUploadFailed, alt.StorageKey)
	default:
		return nil, s.backendError(ctx, alt.StorageKey, err)
	}
}

func (s *Service) done(ctx context.Context, key naming.ResolvedKey, n int64, renamed bool) *Result {
	result := resultSuccess
	if renamed {
		result = resultRenamed
	}
	uploadsTotal.WithLabelValues(result).Inc()
	uploadBytes.Add(float64(n))

	s.logger.InfoContext(ctx, "upload: stored object",
		slog.String("key", key.StorageKey),
		slog.String("content_type", key.ContentType),
		slog.Int64("size", n),
		slog.Bool("renamed", renamed),
	)

	return &Result{
		Key:         key.StorageKey,
		ContentType: key.ContentType,
		Size:        n,
		Container:   s.store.Container(),
		Renamed:     renamed,
	}
}

func (s *Service) backendError(ctx context.Context, key string, err error) error {
	uploadsTotal.WithLabelValues(resultBackendError).Inc()
	s.logger.ErrorContext(ctx, "upload: storage write failed",
		slog.String("key", key), slog.String("error", err.Error()))
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

// List returns the objects under the configured prefix.
func (s *Service) List(ctx context.Context) (*Listing, error) {
	objects, err := s.store.List(ctx, s.resolver.Prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if objects == nil {
		objects = []storage.ObjectInfo{}
	}
	return &Listing{
		Container: s.store.Container(),
		Prefix:    s.resolver.Prefix,
		Objects:   objects,
	}, nil
}

// Open returns a reader for the object at key.
func (s *Service) Open(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	rc, info, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ObjectInfo{}, err
		}
		return nil, storage.ObjectInfo{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return rc, info, nil
}

// SignedURL issues a read-only link to key valid for the configured TTL.
func (s *Service) SignedURL(ctx context.Context, key string) (*SignedURL, error) {
	expires := s.now().UTC().Add(s.opts.SignedURLTTL)
	u, err := s.store.PresignGet(ctx, key, s.opts.SignedURLTTL)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrSigningUnsupported) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return &SignedURL{Key: key, URL: u, ExpiresAt: expires}, nil
}

// allowed reports whether contentType passes the allow-list.
func (s *Service) allowed(contentType string) bool {
	if len(s.opts.AllowedContentTypes) == 0 {
		return true
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, pattern := range s.opts.AllowedContentTypes {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		switch {
		case pattern == "*" || pattern == "*/*":
			return true
		case strings.HasSuffix(pattern, "/*"):
			if strings.HasPrefix(mediaType, strings.TrimSuffix(pattern, "*")) {
				return true
			}
		case pattern == mediaType:
			return true
		}
	}
	return false
}

// sniff detects the content type of r from its leading bytes. The returned
// reader yields the full original content.
func sniff(r io.Reader) (io.Reader, string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, "", err
	}
	head = head[:n]
	contentType := mimetype.Detect(head).String()

	if seeker, ok := r.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, "", err
		}
		return r, contentType, nil
	}
	return io.MultiReader(bytes.NewReader(head), r), contentType, nil
}
