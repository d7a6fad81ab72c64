package upload

import "errors"

// ErrUnsupportedContentType is returned when the resolved content type fails
// the allow-list. Nothing has been written.
var ErrUnsupportedContentType = errors.New("unsupported content type")

// ErrUploadFailed is returned when both the primary and the alternate key
// were already taken, or the body could not be replayed for the retry.
var ErrUploadFailed = errors.New("upload failed")

// ErrBackendUnavailable wraps storage errors other than a key collision.
var ErrBackendUnavailable = errors.New("storage backend unavailable")

var errNotRewindable = errors.New("upload body cannot be replayed")
