// Package blob stores uploaded payloads in object storage and derives their
// public URLs.
package blob

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// Blob store errors.
var (
	ErrInvalidKey = errors.New("invalid object key")
	ErrNotFound   = errors.New("object not found")
)

// Store is the blob storage contract used by the upload and management flows.
type Store interface {
	// Upload writes data under key.
	Upload(ctx context.Context, key, contentType string, data []byte) error
	// Remove deletes the given keys. Missing keys are not an error.
	Remove(ctx context.Context, keys ...string) error
	// PublicURL derives the public URL of key without any network call.
	PublicURL(key string) string
}

// JoinURL appends an object key to a base URL, escaping each path segment.
func JoinURL(base, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") {
		return false
	}
	for _, s := range strings.Split(key, "/") {
		if s == "" || s == "." || s == ".." {
			return false
		}
	}
	return true
}
