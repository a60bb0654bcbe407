package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/galeria/internal/auth"
	"github.com/onnwee/galeria/internal/exifmeta"
	"github.com/onnwee/galeria/internal/geo"
	"github.com/onnwee/galeria/internal/photo"
	"github.com/onnwee/galeria/internal/store"
	"github.com/onnwee/galeria/internal/tracing"
)

var (
	// ErrFetchFailed is returned when the underlying records cannot be read.
	ErrFetchFailed = errors.New("failed to fetch photos")
	// ErrUnauthenticated is returned when an owner-scoped view has no principal.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// DefaultCaptureConcurrency bounds concurrent EXIF fetches for the album view.
const DefaultCaptureConcurrency = 4

// URLDeriver derives public URLs from storage keys.
type URLDeriver interface {
	PublicURL(key string) string
}

// CaptureResolver reads EXIF metadata from a published image.
type CaptureResolver interface {
	ExtractURL(ctx context.Context, url string) (exifmeta.Metadata, error)
}

// Filter narrows the owner's file list.
type Filter struct {
	// MediaType is one of photo.MediaImage, MediaVideo, MediaAudio, MediaFile.
	// Empty or "all" keeps every type.
	MediaType string
	// Query matches title or description, case-insensitively.
	Query string
}

// MapPoint is a located photo with its geohash cell.
type MapPoint struct {
	Entry
	Geohash string `json:"geohash"`
	Cluster string `json:"cluster"`
}

// ServiceConfig holds the collaborators of a Service.
type ServiceConfig struct {
	Store  store.Reader
	URLs   URLDeriver
	// Captures resolves capture times of legacy rows in the album view.
	// Nil disables resolution; those rows fall back to their creation date.
	Captures           CaptureResolver
	CaptureConcurrency int
	Logger             *slog.Logger
}

// Service loads records and classifies them for each read view.
type Service struct {
	store       store.Reader
	urls        URLDeriver
	captures    CaptureResolver
	concurrency int
	logger      *slog.Logger
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.URLs == nil {
		return nil, errors.New("url deriver is required")
	}
	if cfg.CaptureConcurrency <= 0 {
		cfg.CaptureConcurrency = DefaultCaptureConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:       cfg.Store,
		urls:        cfg.URLs,
		captures:    cfg.Captures,
		concurrency: cfg.CaptureConcurrency,
		logger:      cfg.Logger,
	}, nil
}

// Folders returns the principal's photos grouped by privacy and folder.
func (s *Service) Folders(ctx context.Context, principal *auth.Principal) (tree Tree, err error) {
	ctx, end := tracing.StartSpan(ctx, "classify.folders")
	defer func() { end(err) }()

	records, err := s.owned(ctx, principal)
	if err != nil {
		return Tree{Folders: []TopFolder{}}, err
	}
	return Classify(records, s.options(ViewFolders, ScopeOwner, principal.UserID)), nil
}

// Albums returns the principal's image files grouped by privacy and date.
func (s *Service) Albums(ctx context.Context, principal *auth.Principal) (tree Tree, err error) {
	ctx, end := tracing.StartSpan(ctx, "classify.albums")
	defer func() { end(err) }()

	records, err := s.owned(ctx, principal)
	if err != nil {
		return Tree{Folders: []TopFolder{}}, err
	}

	images := make([]photo.Record, 0, len(records))
	for _, rec := range records {
		if photo.IsAlbumImage(rec.Photo.FilePath) {
			images = append(images, rec)
		}
	}

	opts := s.options(ViewAlbums, ScopeOwner, principal.UserID)
	opts.CaptureTimes = s.resolveCaptureTimes(ctx, images)
	return Classify(images, opts), nil
}

// Gallery returns every public photo, grouped by folder.
func (s *Service) Gallery(ctx context.Context) (tree Tree, err error) {
	ctx, end := tracing.StartSpan(ctx, "classify.gallery")
	defer func() { end(err) }()

	records, err := s.store.ListPublic(ctx)
	if err != nil {
		return Tree{Folders: []TopFolder{}}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return Classify(records, s.options(ViewFolders, ScopePublic, "")), nil
}

// Photos returns the principal's files, newest first, narrowed by filter.
func (s *Service) Photos(ctx context.Context, principal *auth.Principal, filter Filter) ([]Entry, error) {
	records, err := s.owned(ctx, principal)
	if err != nil {
		return []Entry{}, err
	}

	opts := s.options(ViewFolders, ScopeOwner, principal.UserID)
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	entries := []Entry{}
	for _, rec := range records {
		e := NewEntry(rec, opts)
		if filter.MediaType != "" && filter.MediaType != "all" && e.MediaType != filter.MediaType {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(e.Title), query) &&
			!strings.Contains(strings.ToLower(e.Description), query) {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Map returns the principal's located photos with their geohash cells.
func (s *Service) Map(ctx context.Context, principal *auth.Principal) ([]MapPoint, error) {
	if principal == nil {
		return []MapPoint{}, ErrUnauthenticated
	}
	records, err := s.store.ListLocated(ctx, principal.UserID)
	if err != nil {
		return []MapPoint{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	opts := s.options(ViewFolders, ScopeOwner, principal.UserID)
	points := make([]MapPoint, 0, len(records))
	for _, rec := range records {
		loc := rec.Location()
		if loc == nil {
			continue
		}
		hash := geo.Encode(loc.Latitude, loc.Longitude, geo.DefaultPrecision)
		points = append(points, MapPoint{
			Entry:   NewEntry(rec, opts),
			Geohash: hash,
			Cluster: geo.RoundGeohash(hash, geo.ClusterPrecision),
		})
	}
	return points, nil
}

func (s *Service) owned(ctx context.Context, principal *auth.Principal) ([]photo.Record, error) {
	if principal == nil || principal.UserID == "" {
		return nil, ErrUnauthenticated
	}
	records, err := s.store.ListByOwner(ctx, principal.UserID)
	if err != nil {
		s.logger.Error("failed to fetch photos",
			slog.String("user_id", principal.UserID),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return records, nil
}

func (s *Service) options(view View, scope Scope, principal string) Options {
	return Options{View: view, Scope: scope, Principal: principal, URLFor: s.urls.PublicURL}
}

// resolveCaptureTimes reads EXIF capture times for records stored without one.
// Failures are logged and the record keeps its creation date.
func (s *Service) resolveCaptureTimes(ctx context.Context, records []photo.Record) map[string]time.Time {
	times := map[string]time.Time{}
	if s.captures == nil {
		return times
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, rec := range records {
		if rec.TakenAt() != nil {
			continue
		}
		id, url := rec.Photo.ID, s.urls.PublicURL(rec.Photo.FilePath)
		g.Go(func() error {
			md, err := s.captures.ExtractURL(ctx, url)
			if err != nil {
				s.logger.Warn("exif extraction failed",
					slog.String("photo_id", id),
					slog.String("error", err.Error()))
				return nil
			}
			if md.CaptureTime == nil {
				return nil
			}
			mu.Lock()
			times[id] = *md.CaptureTime
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return times
}
