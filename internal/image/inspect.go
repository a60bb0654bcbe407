// Package image inspects uploaded payloads before they are stored.
package image

import (
	"errors"
	"fmt"

	"github.com/h2non/bimg"
)

// Format names reported by Inspect.
const (
	FormatJPEG    = "jpeg"
	FormatPNG     = "png"
	FormatWEBP    = "webp"
	FormatGIF     = "gif"
	FormatHEIF    = "heif"
	FormatUnknown = "unknown"
)

// ErrEmptyPayload is returned for zero-length input.
var ErrEmptyPayload = errors.New("empty payload")

// Info describes an inspected payload. Width and Height are zero when the
// payload is not a decodable image.
type Info struct {
	Format string `json:"format"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// IsHEIF reports whether the payload is a HEIC/HEIF container.
func (i Info) IsHEIF() bool {
	return i.Format == FormatHEIF
}

// Inspector reads payload headers with libvips.
type Inspector struct{}

// NewInspector creates an Inspector.
func NewInspector() *Inspector {
	return &Inspector{}
}

// Inspect detects the payload format and, for decodable images, its dimensions.
// Non-image payloads are not an error; they report FormatUnknown.
func (p *Inspector) Inspect(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, ErrEmptyPayload
	}

	format := normalizeFormat(bimg.DetermineImageTypeName(data))
	info := Info{Format: format}

	// HEIF decoding depends on how libvips was built; the format alone is enough.
	if format == FormatUnknown || format == FormatHEIF {
		return info, nil
	}

	size, err := bimg.NewImage(data).Size()
	if err != nil {
		return info, fmt.Errorf("failed to read image size: %w", err)
	}
	info.Width = size.Width
	info.Height = size.Height
	return info, nil
}

func normalizeFormat(name string) string {
	switch name {
	case "jpeg", "jpg":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "webp":
		return FormatWEBP
	case "gif":
		return FormatGIF
	case "heif", "heic", "avif":
		return FormatHEIF
	default:
		return FormatUnknown
	}
}
