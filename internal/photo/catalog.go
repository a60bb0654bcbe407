package photo

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Catalog validation errors.
var (
	ErrUnknownFolder = errors.New("folder is not in the catalog")
	ErrUnknownTag    = errors.New("tag is not in the catalog")
)

// AllowedFolders lists the folders offered by the upload form.
var AllowedFolders = []string{
	"Wakacje", "Rodzina", "Przyjaciele", "Praca", "Szkoła",
	"Sport", "Sztuka", "Jedzenie", "Podróże", "Inne",
}

// AllowedTags lists the tags offered by the upload form.
var AllowedTags = []string{
	"morze", "góry", "miasto", "plaża", "zachód słońca",
	"rodzina", "zwierzęta", "sport", "kultura", "noc",
}

// Media types derived from file extensions.
const (
	MediaImage = "image"
	MediaVideo = "video"
	MediaAudio = "audio"
	MediaFile  = "file"
)

var (
	imageExts = []string{"jpg", "jpeg", "png", "gif", "webp", "heic"}
	videoExts = []string{"mp4", "webm", "mov", "ogg"}
	audioExts = []string{"mp3", "wav", "ogg", "m4a"}
	// Extensions shown inline in the album view.
	albumExts = []string{"jpg", "jpeg", "png", "webp"}
)

// ValidateFolder accepts an empty folder or one from AllowedFolders.
func ValidateFolder(folder string) error {
	folder = strings.TrimSpace(folder)
	if folder == "" || slices.Contains(AllowedFolders, folder) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownFolder, folder)
}

// ValidateTags checks every tag against AllowedTags.
func ValidateTags(tags []string) error {
	for _, t := range tags {
		if !slices.Contains(AllowedTags, t) {
			return fmt.Errorf("%w: %q", ErrUnknownTag, t)
		}
	}
	return nil
}

// MediaType classifies a file name by extension. "ogg" resolves to video,
// matching the order of the checks.
func MediaType(name string) string {
	ext := Extension(name)
	switch {
	case slices.Contains(imageExts, ext):
		return MediaImage
	case slices.Contains(videoExts, ext):
		return MediaVideo
	case slices.Contains(audioExts, ext):
		return MediaAudio
	default:
		return MediaFile
	}
}

// IsAlbumImage reports whether the file is shown in the date album view.
func IsAlbumImage(name string) bool {
	return slices.Contains(albumExts, Extension(name))
}
