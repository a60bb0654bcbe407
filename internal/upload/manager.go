package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/galeria/internal/auth"
	"github.com/onnwee/galeria/internal/blob"
	"github.com/onnwee/galeria/internal/classify"
	"github.com/onnwee/galeria/internal/events"
	"github.com/onnwee/galeria/internal/exifmeta"
	"github.com/onnwee/galeria/internal/photo"
	"github.com/onnwee/galeria/internal/store"
	"github.com/onnwee/galeria/internal/tracing"
)

// Detail is a single photo with the metadata read live from its file.
type Detail struct {
	classify.Entry
	// EXIF is nil when the file is not an image or carries no metadata.
	EXIF *exifmeta.Metadata `json:"exif,omitempty"`
}

// ManagerConfig holds the collaborators of a Manager.
type ManagerConfig struct {
	Store     store.Store
	Blobs     blob.Store
	Captures  classify.CaptureResolver
	Publisher events.Publisher
	Logger    *slog.Logger
}

// Manager runs owner-side operations on committed photos.
type Manager struct {
	store     store.Store
	blobs     blob.Store
	captures  classify.CaptureResolver
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		store:     cfg.Store,
		blobs:     cfg.Blobs,
		captures:  cfg.Captures,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		now:       time.Now,
	}, nil
}

// Delete removes the photo file and then its rows.
// A missing file does not stop the row deletion.
func (m *Manager) Delete(ctx context.Context, principal *auth.Principal, photoID string) (err error) {
	ctx, end := tracing.StartSpan(ctx, "photo.delete")
	defer func() { end(err) }()

	rec, err := m.owned(ctx, principal, photoID)
	if err != nil {
		return err
	}

	if err := m.blobs.Remove(ctx, rec.Photo.FilePath); err != nil && !errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrStorageWriteFailed, err)
	}
	if err := m.store.DeletePhoto(ctx, photoID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete photo: %w", err)
	}

	m.logger.Info("photo deleted",
		slog.String("photo_id", photoID),
		slog.String("user_id", principal.UserID))
	m.publish(ctx, events.Event{
		Type:     events.TypeDeleted,
		PhotoID:  photoID,
		OwnerID:  rec.Photo.OwnerID,
		FilePath: rec.Photo.FilePath,
	})
	return nil
}

// SetVisibility changes the privacy flag of the principal's photo.
func (m *Manager) SetVisibility(ctx context.Context, principal *auth.Principal, photoID string, isPrivate bool) (vis photo.Visibility, err error) {
	ctx, end := tracing.StartSpan(ctx, "photo.set_visibility")
	defer func() { end(err) }()

	rec, err := m.owned(ctx, principal, photoID)
	if err != nil {
		return photo.Visibility{}, err
	}
	if err := m.store.SetVisibility(ctx, photoID, isPrivate); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return photo.Visibility{}, ErrNotFound
		}
		return photo.Visibility{}, fmt.Errorf("failed to update visibility: %w", err)
	}

	m.publish(ctx, events.Event{
		Type:      events.TypeVisibilityChanged,
		PhotoID:   photoID,
		OwnerID:   rec.Photo.OwnerID,
		FilePath:  rec.Photo.FilePath,
		IsPrivate: &isPrivate,
	})
	return photo.Visibility{PhotoID: photoID, IsPrivate: isPrivate}, nil
}

// Detail returns a photo and its live EXIF metadata. Private photos are
// reported as missing to everyone but their owner.
func (m *Manager) Detail(ctx context.Context, principal *auth.Principal, photoID string) (*Detail, error) {
	rec, err := m.store.GetRecord(ctx, photoID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load photo: %w", err)
	}

	userID := ""
	if principal != nil {
		userID = principal.UserID
	}
	if rec.IsPrivate() && rec.Photo.OwnerID != userID {
		return nil, ErrNotFound
	}

	d := &Detail{Entry: classify.NewEntry(*rec, classify.Options{URLFor: m.blobs.PublicURL})}
	if m.captures == nil || d.MediaType != photo.MediaImage {
		return d, nil
	}

	md, err := m.captures.ExtractURL(ctx, d.URL)
	if err != nil {
		m.logger.Warn("exif extraction failed",
			slog.String("photo_id", photoID),
			slog.String("error", err.Error()))
		return d, nil
	}
	d.EXIF = &md
	return d, nil
}

func (m *Manager) owned(ctx context.Context, principal *auth.Principal, photoID string) (*photo.Record, error) {
	if principal == nil || principal.UserID == "" {
		return nil, ErrUnauthenticated
	}
	rec, err := m.store.GetRecord(ctx, photoID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load photo: %w", err)
	}
	if rec.Photo.OwnerID != principal.UserID {
		return nil, ErrForbidden
	}
	return rec, nil
}

func (m *Manager) publish(ctx context.Context, e events.Event) {
	e.At = m.now().UTC()
	if err := m.publisher.Publish(ctx, e); err != nil {
		m.logger.Warn("failed to publish photo event",
			slog.String("type", e.Type),
			slog.String("photo_id", e.PhotoID),
			slog.String("error", err.Error()))
	}
}
