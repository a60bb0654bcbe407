package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/onnwee/galeria/internal/photo"
	"github.com/onnwee/galeria/internal/tracing"
)

// Postgres error codes handled by the store.
const (
	pqUniqueViolation           = "23505"
	pqForeignKeyViolation       = "23503"
	pqInvalidTextRepresentation = "22P02"
)

const selectRecord = `
	SELECT p.id, p.owner_id, p.file_path, p.title, p.created_at,
		v.is_private,
		i.photo_id, i.tags, i.folder, i.latitude, i.longitude, i.taken_at, i.created_at,
		d.description
	FROM photos p
	LEFT JOIN photo_visibility v ON v.photo_id = p.id
	LEFT JOIN photo_info i ON i.photo_id = p.id
	LEFT JOIN photo_descriptions d ON d.photo_id = p.id`

// Postgres implements Store on PostgreSQL. Every method runs a single
// statement outside of any transaction.
type Postgres struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgres creates a Postgres store.
func NewPostgres(db *sql.DB, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, logger: logger}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// InsertPhoto inserts the photo row.
func (s *Postgres) InsertPhoto(ctx context.Context, p *photo.Photo) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, TablePhotos, tracing.DBOperationInsert)
	defer func() { end(err) }()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO photos (id, owner_id, file_path, title, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.OwnerID, p.FilePath, p.Title, p.CreatedAt)
	return s.wrap(err, "insert photo")
}

// InsertVisibility inserts the visibility row.
func (s *Postgres) InsertVisibility(ctx context.Context, v *photo.Visibility) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, TableVisibility, tracing.DBOperationInsert)
	defer func() { end(err) }()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO photo_visibility (photo_id, is_private)
		VALUES ($1, $2)`,
		v.PhotoID, v.IsPrivate)
	return s.wrap(err, "insert visibility")
}

// InsertInfo inserts the info row. Tags are stored comma-joined.
func (s *Postgres) InsertInfo(ctx context.Context, info *photo.Info) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, TableInfo, tracing.DBOperationInsert)
	defer func() { end(err) }()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO photo_info (photo_id, tags, folder, latitude, longitude, taken_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		info.PhotoID,
		photo.JoinTags(info.Tags),
		nullString(info.Folder),
		nullFloat(info.Latitude),
		nullFloat(info.Longitude),
		nullTime(info.TakenAt),
		info.CreatedAt)
	return s.wrap(err, "insert info")
}

// InsertDescription inserts the description row.
func (s *Postgres) InsertDescription(ctx context.Context, d *photo.Description) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, TableDescriptions, tracing.DBOperationInsert)
	defer func() { end(err) }()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO photo_descriptions (photo_id, description)
		VALUES ($1, $2)`,
		d.PhotoID, d.Text)
	return s.wrap(err, "insert description")
}

// DeleteInfo removes the info row, if any.
func (s *Postgres) DeleteInfo(ctx context.Context, photoID string) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, TableInfo, tracing.DBOperationDelete)
	defer func() { end(err) }()

	_, err = s.db.ExecContext(ctx, `DELETE FROM photo_info WHERE photo_id = $1`, photoID)
	return s.wrap(err, "delete info")
}

// DeleteVisibility removes the visibility row, if any.
func (s *Postgres) DeleteVisibility(ctx context.Context, photoID string) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, TableVisibility, tracing.DBOperationDelete)
	defer func() { end(err) }()

	_, err = s.db.ExecContext(ctx, `DELETE FROM photo_visibility WHERE photo_id = $1`, photoID)
	return s.wrap(err, "delete visibility")
}

// DeletePhoto removes the photo row; foreign keys cascade to dependent rows.
func (s *Postgres) DeletePhoto(ctx context.Context, photoID string) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, TablePhotos, tracing.DBOperationDelete)
	defer func() { end(err) }()

	res, err := s.db.ExecContext(ctx, `DELETE FROM photos WHERE id = $1`, photoID)
	if err != nil {
		return s.wrap(err, "delete photo")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.wrap(err, "delete photo")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVisibility upserts the visibility row. Last write wins.
func (s *Postgres) SetVisibility(ctx context.Context, photoID string, isPrivate bool) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, TableVisibility, tracing.DBOperationUpdate)
	defer func() { end(err) }()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO photo_visibility (photo_id, is_private)
		VALUES ($1, $2)
		ON CONFLICT (photo_id) DO UPDATE SET is_private = EXCLUDED.is_private`,
		photoID, isPrivate)
	return s.wrap(err, "set visibility")
}

// GetRecord returns the joined record of a photo.
func (s *Postgres) GetRecord(ctx context.Context, photoID string) (rec *photo.Record, err error) {
	ctx, end := tracing.StartDBSpan(ctx, TablePhotos, tracing.DBOperationQuery)
	defer func() { end(err) }()

	row := s.db.QueryRowContext(ctx, selectRecord+` WHERE p.id = $1`, photoID)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.wrap(err, "get record")
	}
	return &r, nil
}

// ListByOwner returns the owner's records, newest first.
func (s *Postgres) ListByOwner(ctx context.Context, ownerID string) ([]photo.Record, error) {
	return s.list(ctx, "list by owner",
		selectRecord+` WHERE p.owner_id = $1 ORDER BY p.created_at DESC`, ownerID)
}

// ListPublic returns every record without a private visibility row, newest first.
func (s *Postgres) ListPublic(ctx context.Context) ([]photo.Record, error) {
	return s.list(ctx, "list public",
		selectRecord+` WHERE COALESCE(v.is_private, FALSE) = FALSE ORDER BY p.created_at DESC`)
}

// ListLocated returns the owner's records with coordinates, newest first.
func (s *Postgres) ListLocated(ctx context.Context, ownerID string) ([]photo.Record, error) {
	return s.list(ctx, "list located",
		selectRecord+` WHERE p.owner_id = $1 AND i.latitude IS NOT NULL AND i.longitude IS NOT NULL
		ORDER BY p.created_at DESC`, ownerID)
}

func (s *Postgres) list(ctx context.Context, op, query string, args ...any) (records []photo.Record, err error) {
	ctx, end := tracing.StartDBSpan(ctx, TablePhotos, tracing.DBOperationQuery)
	defer func() { end(err) }()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrap(err, op)
	}
	defer rows.Close()

	records = []photo.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, s.wrap(err, op)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(err, op)
	}
	return records, nil
}

// wrap maps driver errors onto store errors and logs unexpected failures.
func (s *Postgres) wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqForeignKeyViolation, pqInvalidTextRepresentation:
			// A malformed id cannot name an existing photo.
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		case pqUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, ErrDuplicate, pqErr.Constraint)
		}
	}
	s.logger.Error("store operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()))
	return fmt.Errorf("failed to %s: %w", op, err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (photo.Record, error) {
	var (
		r             photo.Record
		isPrivate     sql.NullBool
		infoPhotoID   sql.NullString
		tags          sql.NullString
		folder        sql.NullString
		lat, lng      sql.NullFloat64
		takenAt       sql.NullTime
		infoCreatedAt sql.NullTime
		description   sql.NullString
	)
	err := row.Scan(
		&r.Photo.ID, &r.Photo.OwnerID, &r.Photo.FilePath, &r.Photo.Title, &r.Photo.CreatedAt,
		&isPrivate,
		&infoPhotoID, &tags, &folder, &lat, &lng, &takenAt, &infoCreatedAt,
		&description,
	)
	if err != nil {
		return photo.Record{}, err
	}

	if isPrivate.Valid {
		r.Visibility = &photo.Visibility{PhotoID: r.Photo.ID, IsPrivate: isPrivate.Bool}
	}
	if infoPhotoID.Valid {
		info := &photo.Info{
			PhotoID:   r.Photo.ID,
			Tags:      photo.ParseTags(tags.String),
			CreatedAt: infoCreatedAt.Time,
		}
		if folder.Valid {
			info.Folder = &folder.String
		}
		if lat.Valid {
			info.Latitude = &lat.Float64
		}
		if lng.Valid {
			info.Longitude = &lng.Float64
		}
		if takenAt.Valid {
			info.TakenAt = &takenAt.Time
		}
		r.Info = info
	}
	if description.Valid {
		r.Description = &photo.Description{PhotoID: r.Photo.ID, Text: description.String}
	}
	return r, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
