// Package naming turns untrusted client filenames into storage keys.
package naming

import (
	"mime"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// TimestampLayout is the sortable UTC token that leads every key.
	TimestampLayout = "20060102T150405Z"

	// DefaultContentType is stored when no better type can be determined.
	DefaultContentType = "application/octet-stream"

	// Placeholder replaces stems that sanitize to nothing.
	Placeholder = "upload"

	// DuplicateMarker is prepended to the filename of the single collision retry.
	DuplicateMarker = "dup_"

	separator  = "__"
	maxNameLen = 200
)

// ResolvedKey is the storage name and metadata computed for one upload.
type ResolvedKey struct {
	StorageKey  string `json:"key"`
	ContentType string `json:"contentType"`
	Prefix      string `json:"prefix,omitempty"`
}

// Resolver computes storage keys. The zero value uses no prefix and the wall clock.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	Prefix string
	Now    func() time.Time
}

// NewResolver returns a Resolver applying prefix ahead of every key.
func NewResolver(prefix string) *Resolver {
	return &Resolver{Prefix: prefix, Now: time.Now}
}

// Resolve derives the key and content type for rawFilename.
func (r *Resolver) Resolve(rawFilename, declaredContentType string) ResolvedKey {
	return r.build(Sanitize(rawFilename), declaredContentType)
}

// Alternate derives the key used after a collision on Resolve's key. The
// duplicate marker is prepended to the sanitized name, so both keys share
// their shape and extension.
func (r *Resolver) Alternate(rawFilename, declaredContentType string) ResolvedKey {
	return r.build(DuplicateMarker+Sanitize(rawFilename), declaredContentType)
}

func (r *Resolver) build(safe, declared string) ResolvedKey {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	key := now().UTC().Format(TimestampLayout) + separator + safe
	if r.Prefix != "" {
		key = r.Prefix + key
	}

	return ResolvedKey{
		StorageKey:  key,
		ContentType: ContentType(safe, declared),
		Prefix:      r.Prefix,
	}
}

// baseName keeps only the final segment of a client path, whichever
// separator convention the client used.
func baseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		return name[i+1:]
	}
	return name
}

var asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Sanitize reduces name to the characters [A-Za-z0-9._-]. Each run of other
// characters becomes a single underscore. Dots and underscores are trimmed
// from both ends of the stem, the extension is kept, and an empty stem becomes
// Placeholder.
func Sanitize(name string) string {
	name = baseName(name)
	if folded, _, err := transform.String(asciiFold, name); err == nil {
		name = folded
	}

	var b strings.Builder
	b.Grow(len(name))
	pending := false
	for _, c := range name {
		if isSafe(c) {
			if pending {
				b.WriteByte('_')
				pending = false
			}
			b.WriteRune(c)
			continue
		}
		pending = true
	}

	out := b.String()
	ext := filepath.Ext(out)
	stem := strings.Trim(out[:len(out)-len(ext)], "._")
	if body := strings.Trim(ext, "._"); body != "" {
		ext = "." + body
	} else {
		ext = ""
	}
	if stem == "" {
		stem = Placeholder
	}

	out = stem + ext
	if len(out) > maxNameLen {
		out = truncate(out)
	}
	return out
}

func isSafe(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '-', c == '_':
		return true
	}
	return false
}

// truncate shortens a sanitized name, keeping its extension when the
// extension itself is short enough to survive.
func truncate(name string) string {
	ext := filepath.Ext(name)
	if len(ext) >= maxNameLen/2 {
		ext = ""
	}
	stem := strings.TrimRight(name[:maxNameLen-len(ext)], "._")
	return stem + ext
}

// ContentType infers a MIME type from the extension of name, falling back to
// declared and finally DefaultContentType.
func ContentType(name, declared string) string {
	if ct, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	if declared != "" {
		if mediaType, params, err := mime.ParseMediaType(declared); err == nil {
			return mime.FormatMediaType(mediaType, params)
		}
	}
	return DefaultContentType
}
