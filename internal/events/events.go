// Package events publishes photo lifecycle events to downstream consumers.
package events

import (
	"context"
	"sync"
	"time"
)

// Event types.
const (
	TypeCommitted         = "photo.committed"
	TypeDeleted           = "photo.deleted"
	TypeVisibilityChanged = "photo.visibility_changed"
)

// Event is the JSON payload written for every lifecycle change.
type Event struct {
	Type      string    `json:"type"`
	PhotoID   string    `json:"photo_id"`
	OwnerID   string    `json:"owner_id"`
	FilePath  string    `json:"file_path,omitempty"`
	IsPrivate *bool     `json:"is_private,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher delivers events. Publish must not block on the broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes later Publish calls return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Publish records e.
func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

// Close does nothing.
func (r *Recorder) Close() error { return nil }

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
