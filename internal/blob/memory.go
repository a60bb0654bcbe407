package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Object is a stored payload.
type Object struct {
	ContentType string
	Data        []byte
}

// Memory is an in-memory Store for development and tests.
type Memory struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]Object

	uploads  int
	removes  int
	failPut  error
	failDrop error
}

// NewMemory creates a Memory store whose public URLs start with baseURL.
func NewMemory(baseURL string) *Memory {
	if baseURL == "" {
		baseURL = "http://localhost/blobs"
	}
	return &Memory{baseURL: baseURL, objects: make(map[string]Object)}
}

// FailUploads makes every later Upload return err. A nil err clears it.
func (m *Memory) FailUploads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPut = err
}

// FailRemoves makes every later Remove return err. A nil err clears it.
func (m *Memory) FailRemoves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failDrop = err
}

// Upload stores a copy of data under key.
func (m *Memory) Upload(ctx context.Context, key, contentType string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads++
	if m.failPut != nil {
		return m.failPut
	}
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	m.objects[key] = Object{ContentType: contentType, Data: append([]byte(nil), data...)}
	return nil
}

// Remove deletes keys.
func (m *Memory) Remove(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removes++
	if m.failDrop != nil {
		return m.failDrop
	}
	for _, k := range keys {
		delete(m.objects, k)
	}
	return nil
}

// PublicURL joins the base URL and key.
func (m *Memory) PublicURL(key string) string {
	return JoinURL(m.baseURL, key)
}

// Get returns the stored object.
func (m *Memory) Get(key string) (Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return Object{}, ErrNotFound
	}
	return obj, nil
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// UploadCalls returns how many times Upload was called.
func (m *Memory) UploadCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uploads
}

// RemoveCalls returns how many times Remove was called.
func (m *Memory) RemoveCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.removes
}

// Handler serves stored objects under prefix so PublicURL resolves in
// development setups. GET only.
func (m *Memory) Handler(prefix string) http.Handler {
	return http.StripPrefix(prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		obj, err := m.Get(strings.TrimPrefix(r.URL.Path, "/"))
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if obj.ContentType != "" {
			w.Header().Set("Content-Type", obj.ContentType)
		}
		_, _ = w.Write(obj.Data)
	}))
}
