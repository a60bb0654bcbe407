// Package upload runs the multi-step upload commit and the owner-side photo
// management operations.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/galeria/internal/auth"
	"github.com/onnwee/galeria/internal/blob"
	"github.com/onnwee/galeria/internal/events"
	"github.com/onnwee/galeria/internal/exifmeta"
	"github.com/onnwee/galeria/internal/geo"
	"github.com/onnwee/galeria/internal/image"
	"github.com/onnwee/galeria/internal/photo"
	"github.com/onnwee/galeria/internal/store"
	"github.com/onnwee/galeria/internal/tracing"
	"github.com/onnwee/galeria/internal/validate"
)

// DefaultMaxSizeMB is the upload size limit when none is configured.
const DefaultMaxSizeMB = 25

// compensationTimeout bounds the undo actions run after a failed commit.
const compensationTimeout = 15 * time.Second

// rejectedExtensions are refused before any I/O.
var rejectedExtensions = map[string]bool{"heic": true, "heif": true}

// Inspector reports the format of a payload.
type Inspector interface {
	Inspect(data []byte) (image.Info, error)
}

// MetadataExtractor reads EXIF metadata from an in-memory payload.
type MetadataExtractor interface {
	ExtractBytes(data []byte) (exifmeta.Metadata, error)
}

// Request is a single file upload.
type Request struct {
	Filename    string
	ContentType string
	Data        []byte
	Folder      string
	Tags        []string
	IsPrivate   bool
	Description string
	// ManualLocation is used when the file carries no EXIF GPS position.
	ManualLocation *photo.Location
}

// Receipt describes a committed upload.
type Receipt struct {
	Photo       photo.Photo        `json:"photo"`
	Visibility  photo.Visibility   `json:"visibility"`
	Info        photo.Info         `json:"info"`
	Description *photo.Description `json:"description,omitempty"`
	URL         string             `json:"url"`
	// DescriptionErr is set when the description row failed and the
	// description policy allowed the commit to succeed anyway.
	DescriptionErr error `json:"-"`
}

// Config configures a Committer.
type Config struct {
	Store     store.Writer
	Blobs     blob.Store
	Extractor MetadataExtractor
	// Inspector is optional; without it only the file extension is checked.
	Inspector Inspector
	Publisher events.Publisher
	Metrics   *Metrics
	Logger    *slog.Logger

	MaxSizeMB int
	// Compensate undoes earlier stages when a later stage fails.
	Compensate bool
	// DescriptionRequired makes a failed description insert abort the commit.
	DescriptionRequired bool
}

// Committer sequences the blob upload and row inserts of a new photo.
type Committer struct {
	store               store.Writer
	blobs               blob.Store
	extractor           MetadataExtractor
	inspector           Inspector
	publisher           events.Publisher
	metrics             *Metrics
	logger              *slog.Logger
	maxSizeBytes        int64
	compensate          bool
	descriptionRequired bool
	now                 func() time.Time
}

// NewCommitter creates a Committer.
func NewCommitter(cfg Config) (*Committer, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if cfg.Extractor == nil {
		return nil, errors.New("metadata extractor is required")
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = DefaultMaxSizeMB
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Committer{
		store:               cfg.Store,
		blobs:               cfg.Blobs,
		extractor:           cfg.Extractor,
		inspector:           cfg.Inspector,
		publisher:           cfg.Publisher,
		metrics:             cfg.Metrics,
		logger:              cfg.Logger,
		maxSizeBytes:        int64(cfg.MaxSizeMB) * 1024 * 1024,
		compensate:          cfg.Compensate,
		descriptionRequired: cfg.DescriptionRequired,
		now:                 time.Now,
	}, nil
}

// undoAction reverts one completed stage.
type undoAction struct {
	name string
	run  func(ctx context.Context) error
}

// Commit validates the request, uploads the payload and inserts the photo,
// visibility, info and optional description rows, in that order.
// Each stage starts only after the previous one succeeded.
func (c *Committer) Commit(ctx context.Context, principal *auth.Principal, req Request) (receipt *Receipt, err error) {
	start := c.now()
	ctx, end := tracing.StartSpan(ctx, "upload.commit")
	defer func() {
		end(err)
		c.metrics.observeDuration(c.now().Sub(start).Seconds())
	}()

	if err := c.validate(req); err != nil {
		c.metrics.incCommit(OutcomeRejected)
		return nil, err
	}
	if principal == nil || principal.UserID == "" {
		c.metrics.incCommit(OutcomeRejected)
		return nil, ErrUnauthenticated
	}

	now := c.now().UTC()
	p := photo.Photo{
		ID:        uuid.NewString(),
		OwnerID:   principal.UserID,
		FilePath:  StorageKey(principal.UserID, req.Filename),
		Title:     req.Filename,
		CreatedAt: now,
	}
	info := photo.Info{
		PhotoID:   p.ID,
		Tags:      uniqueTags(photo.ParseTags(photo.JoinTags(req.Tags))),
		CreatedAt: now,
	}
	if folder := strings.TrimSpace(req.Folder); folder != "" {
		info.Folder = &folder
	}
	c.applyMetadata(&info, req)

	logger := c.logger.With(
		slog.String("photo_id", p.ID),
		slog.String("user_id", p.OwnerID),
		slog.String("key", p.FilePath))

	var undo []undoAction
	fail := func(se *StageError) (*Receipt, error) {
		c.metrics.incCommit(OutcomeFailed)
		c.metrics.incStageFailure(se.Stage)
		if c.compensate {
			se.Compensated, se.Leftovers = c.rollback(ctx, undo)
		}
		logger.Error("upload commit failed",
			slog.String("stage", string(se.Stage)),
			slog.Bool("compensated", se.Compensated),
			slog.String("error", se.Err.Error()))
		return nil, se
	}

	if err := c.stage(ctx, StageBlob, func(ctx context.Context) error {
		return c.blobs.Upload(ctx, p.FilePath, req.ContentType, req.Data)
	}); err != nil {
		return fail(stageError(StageBlob, ErrStorageWriteFailed, err))
	}
	undo = append(undo, undoAction{"remove_blob", func(ctx context.Context) error {
		return c.blobs.Remove(ctx, p.FilePath)
	}})

	if err := c.stage(ctx, StagePhoto, func(ctx context.Context) error {
		return c.store.InsertPhoto(ctx, &p)
	}); err != nil {
		return fail(stageError(StagePhoto, ErrRowInsertFailed, err))
	}
	undo = append(undo, undoAction{"delete_photo", func(ctx context.Context) error {
		return c.store.DeletePhoto(ctx, p.ID)
	}})

	vis := photo.Visibility{PhotoID: p.ID, IsPrivate: req.IsPrivate}
	if err := c.stage(ctx, StageVisibility, func(ctx context.Context) error {
		return c.store.InsertVisibility(ctx, &vis)
	}); err != nil {
		return fail(stageError(StageVisibility, ErrRowInsertFailed, err))
	}
	undo = append(undo, undoAction{"delete_visibility", func(ctx context.Context) error {
		return c.store.DeleteVisibility(ctx, p.ID)
	}})

	if err := c.stage(ctx, StageInfo, func(ctx context.Context) error {
		return c.store.InsertInfo(ctx, &info)
	}); err != nil {
		return fail(stageError(StageInfo, ErrRowInsertFailed, err))
	}
	undo = append(undo, undoAction{"delete_info", func(ctx context.Context) error {
		return c.store.DeleteInfo(ctx, p.ID)
	}})

	receipt = &Receipt{Photo: p, Visibility: vis, Info: info, URL: c.blobs.PublicURL(p.FilePath)}

	if text := strings.TrimSpace(req.Description); text != "" {
		d := photo.Description{PhotoID: p.ID, Text: text}
		err := c.stage(ctx, StageDescription, func(ctx context.Context) error {
			return c.store.InsertDescription(ctx, &d)
		})
		switch {
		case err == nil:
			receipt.Description = &d
		case c.descriptionRequired:
			return fail(stageError(StageDescription, ErrRowInsertFailed, err))
		default:
			receipt.DescriptionErr = stageError(StageDescription, ErrRowInsertFailed, err)
			c.metrics.incStageFailure(StageDescription)
			logger.Warn("description insert failed, keeping photo",
				slog.String("error", err.Error()))
		}
	}

	c.metrics.incCommit(OutcomeSuccess)
	logger.Info("upload committed",
		slog.Bool("is_private", vis.IsPrivate),
		slog.Int("size", len(req.Data)))

	if err := c.publisher.Publish(ctx, events.Event{
		Type:     events.TypeCommitted,
		PhotoID:  p.ID,
		OwnerID:  p.OwnerID,
		FilePath: p.FilePath,
		At:       now,
	}); err != nil {
		logger.Warn("failed to publish commit event", slog.String("error", err.Error()))
	}
	return receipt, nil
}

// validate rejects requests that must not reach any collaborator.
func (c *Committer) validate(req Request) error {
	if rejectedExtensions[photo.Extension(req.Filename)] {
		return fmt.Errorf("%w: HEIC/HEIF images are not supported, convert to JPEG first", ErrUnsupportedFormat)
	}
	if len(req.Data) == 0 {
		return ErrEmptyFile
	}
	if int64(len(req.Data)) > c.maxSizeBytes {
		return ErrFileTooLarge
	}
	if c.inspector != nil {
		info, err := c.inspector.Inspect(req.Data)
		if err == nil && info.IsHEIF() {
			return fmt.Errorf("%w: HEIC/HEIF content is not supported", ErrUnsupportedFormat)
		}
	}
	if err := photo.ValidateFolder(req.Folder); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err := photo.ValidateTags(req.Tags); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if loc := req.ManualLocation; loc != nil {
		if err := geo.ValidateCoordinates(loc.Latitude, loc.Longitude); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}
	if _, err := validate.Filename(req.Filename); err != nil {
		return fmt.Errorf("%w: filename: %w", ErrInvalidRequest, err)
	}
	if _, err := validate.Description(req.Description); err != nil {
		return fmt.Errorf("%w: description: %w", ErrInvalidRequest, err)
	}
	return nil
}

// applyMetadata fills location and capture time. EXIF GPS takes precedence
// over the manual location; extraction failures only lose the enrichment.
func (c *Committer) applyMetadata(info *photo.Info, req Request) {
	md, err := c.extractor.ExtractBytes(req.Data)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, exifmeta.ErrNoMetadata) {
			level = slog.LevelDebug
		}
		c.logger.Log(context.Background(), level, "metadata extraction failed",
			slog.String("filename", req.Filename),
			slog.String("error", err.Error()))
	}

	switch {
	case md.HasLocation():
		lat, lng := *md.Latitude, *md.Longitude
		info.Latitude, info.Longitude = &lat, &lng
	case req.ManualLocation != nil:
		lat, lng := req.ManualLocation.Latitude, req.ManualLocation.Longitude
		info.Latitude, info.Longitude = &lat, &lng
	}
	if md.CaptureTime != nil {
		t := md.CaptureTime.UTC()
		info.TakenAt = &t
	}
}

func (c *Committer) stage(ctx context.Context, stage Stage, fn func(context.Context) error) (err error) {
	ctx, end := tracing.StartSpan(ctx, "upload."+string(stage))
	defer func() { end(err) }()
	return fn(ctx)
}

// rollback runs undo actions in reverse order. It reports whether all of them
// succeeded and the names of those that did not.
func (c *Committer) rollback(ctx context.Context, undo []undoAction) (bool, []string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	var leftovers []string
	for i := len(undo) - 1; i >= 0; i-- {
		a := undo[i]
		err := a.run(ctx)
		c.metrics.incCompensation(a.name, err == nil)
		if err != nil {
			leftovers = append(leftovers, a.name)
			c.logger.Error("compensation failed",
				slog.String("action", a.name),
				slog.String("error", err.Error()))
		}
	}
	return len(leftovers) == 0, leftovers
}

// uniqueTags drops repeated tags, keeping first-seen order.
func uniqueTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := tags[:0]
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
