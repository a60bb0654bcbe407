// Package exifmeta extracts capture time and GPS coordinates from embedded EXIF
// data. Extraction is best-effort: callers receive an explicit error alongside
// an empty Metadata and decide how to proceed.
package exifmeta

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// Extraction errors.
var (
	// ErrNoMetadata is returned when the payload carries no readable EXIF block.
	ErrNoMetadata = errors.New("no exif metadata")
	// ErrFetchFailed is returned when a remote payload cannot be downloaded.
	ErrFetchFailed = errors.New("failed to fetch image")
)

// DefaultMaxFetchBytes caps how much of a remote image is read for parsing.
const DefaultMaxFetchBytes = 32 << 20

// Metadata is the subset of EXIF fields used by the application.
// Nil fields were not present or could not be parsed.
type Metadata struct {
	CaptureTime *time.Time `json:"capture_time,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
}

// HasLocation reports whether both coordinates are present.
func (m Metadata) HasLocation() bool {
	return m.Latitude != nil && m.Longitude != nil
}

// Extract parses EXIF data from r.
func Extract(r io.Reader) (Metadata, error) {
	x, err := exif.Decode(r)
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return Metadata{}, fmt.Errorf("%w: %v", ErrNoMetadata, err)
	}

	var md Metadata
	if t, err := x.DateTime(); err == nil && !t.IsZero() {
		// Without an offset tag the library reports local wall time.
		// Keep the recorded wall clock, pinned to UTC.
		if t.Location() == time.Local {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
		}
		md.CaptureTime = &t
	}
	if lat, lng, err := x.LatLong(); err == nil && validCoordinates(lat, lng) {
		md.Latitude = &lat
		md.Longitude = &lng
	}
	return md, nil
}

// ExtractBytes is a convenience wrapper for in-memory payloads.
func ExtractBytes(data []byte) (Metadata, error) {
	return Extract(bytes.NewReader(data))
}

func validCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Extractor fetches remote images and parses their EXIF data.
type Extractor struct {
	client   *http.Client
	maxBytes int64
}

// NewExtractor creates an Extractor. A nil client uses a client with a 15s timeout.
func NewExtractor(client *http.Client) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Extractor{client: client, maxBytes: DefaultMaxFetchBytes}
}

// ExtractBytes parses an in-memory payload.
func (e *Extractor) ExtractBytes(data []byte) (Metadata, error) {
	return ExtractBytes(data)
}

// ExtractURL downloads the image at url and parses its EXIF data.
func (e *Extractor) ExtractURL(ctx context.Context, url string) (Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}
	return Extract(io.LimitReader(resp.Body, e.maxBytes))
}
