// Package photo defines the photo entities shared by the upload, classification
// and storage layers, plus the small codecs that go with them.
package photo

import (
	"path"
	"strings"
	"time"
)

// Top-level folder names and the sentinel subfolder for unfoldered photos.
const (
	TopPrivate      = "Prywatne"
	TopPublic       = "Publiczne"
	NoFolder        = "Bez folderu"
	albumDateLayout = "2006-01-02"
)

// Photo is the primary row created by the upload sequencer.
// Immutable once created except for deletion.
type Photo struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	FilePath  string    `json:"file_path"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Visibility controls inclusion in the public gallery. One row per photo.
type Visibility struct {
	PhotoID   string `json:"photo_id"`
	IsPrivate bool   `json:"is_private"`
}

// Info holds the optional folder, tag and location metadata of a photo.
type Info struct {
	PhotoID   string     `json:"photo_id"`
	Tags      []string   `json:"tags"`
	Folder    *string    `json:"folder,omitempty"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	TakenAt   *time.Time `json:"taken_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Description is a free-text annotation attached to a photo.
type Description struct {
	PhotoID string `json:"photo_id"`
	Text    string `json:"description"`
}

// Location is a latitude/longitude pair in degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Record is the joined read projection of a photo and its optional rows.
// A nil pointer means the corresponding row does not exist.
type Record struct {
	Photo       Photo
	Visibility  *Visibility
	Info        *Info
	Description *Description
}

// IsPrivate reports the effective privacy of the record.
// A missing visibility row counts as public.
func (r Record) IsPrivate() bool {
	return r.Visibility != nil && r.Visibility.IsPrivate
}

// FolderName returns the trimmed folder label or NoFolder when unset.
func (r Record) FolderName() string {
	if r.Info == nil || r.Info.Folder == nil {
		return NoFolder
	}
	if f := strings.TrimSpace(*r.Info.Folder); f != "" {
		return f
	}
	return NoFolder
}

// Tags returns the record's tags, or an empty slice.
func (r Record) Tags() []string {
	if r.Info == nil || r.Info.Tags == nil {
		return []string{}
	}
	return r.Info.Tags
}

// Location returns the stored coordinates if both are present.
func (r Record) Location() *Location {
	if r.Info == nil || r.Info.Latitude == nil || r.Info.Longitude == nil {
		return nil
	}
	return &Location{Latitude: *r.Info.Latitude, Longitude: *r.Info.Longitude}
}

// DescriptionText returns the description or "".
func (r Record) DescriptionText() string {
	if r.Description == nil {
		return ""
	}
	return r.Description.Text
}

// TakenAt returns the stored capture time, if any.
func (r Record) TakenAt() *time.Time {
	if r.Info == nil {
		return nil
	}
	return r.Info.TakenAt
}

// Extension returns the lowercase extension of a file path without the dot.
func Extension(filePath string) string {
	ext := path.Ext(filePath)
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext[1:])
}

// AlbumKey returns the date bucket for a photo: the UTC date of the capture time
// when known, otherwise of createdAt.
func AlbumKey(captured *time.Time, createdAt time.Time) string {
	if captured != nil && !captured.IsZero() {
		return captured.UTC().Format(albumDateLayout)
	}
	return createdAt.UTC().Format(albumDateLayout)
}
