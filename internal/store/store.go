// Package store provides the tabular persistence layer for photos and their
// dependent rows. Each call is an independent statement; callers sequence
// multi-row writes themselves.
package store

import (
	"context"
	"errors"

	"github.com/onnwee/galeria/internal/photo"
)

// Store errors.
var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("duplicate key")
)

// Table names, also used as span attributes.
const (
	TablePhotos       = "photos"
	TableVisibility   = "photo_visibility"
	TableInfo         = "photo_info"
	TableDescriptions = "photo_descriptions"
)

// Writer holds the per-row insert and delete operations used by the commit
// sequencer and its compensation steps.
type Writer interface {
	InsertPhoto(ctx context.Context, p *photo.Photo) error
	InsertVisibility(ctx context.Context, v *photo.Visibility) error
	InsertInfo(ctx context.Context, info *photo.Info) error
	InsertDescription(ctx context.Context, d *photo.Description) error

	DeleteInfo(ctx context.Context, photoID string) error
	DeleteVisibility(ctx context.Context, photoID string) error
	// DeletePhoto removes the photo row. Dependent rows go with it.
	DeletePhoto(ctx context.Context, photoID string) error

	// SetVisibility updates the visibility row, creating it when missing.
	SetVisibility(ctx context.Context, photoID string, isPrivate bool) error
}

// Reader returns joined photo records.
type Reader interface {
	GetRecord(ctx context.Context, photoID string) (*photo.Record, error)
	// ListByOwner returns the owner's records, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]photo.Record, error)
	// ListPublic returns records without a private visibility row, newest first.
	ListPublic(ctx context.Context) ([]photo.Record, error)
	// ListLocated returns the owner's records that carry coordinates.
	ListLocated(ctx context.Context, ownerID string) ([]photo.Record, error)
}

// Store combines Reader and Writer.
type Store interface {
	Reader
	Writer
}
