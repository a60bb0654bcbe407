package upload

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// maxNameRunes caps the filename part of a storage key.
const maxNameRunes = 128

// StorageKey returns a collision-free object key: <owner>/<uuid>_<filename>.
// No existence check is made; the UUID prefix keeps concurrent uploads apart.
func StorageKey(ownerID, filename string) string {
	return fmt.Sprintf("%s/%s_%s", sanitizePathComponent(ownerID), uuid.NewString(), sanitizeFilename(filename))
}

// sanitizePathComponent keeps only alphanumerics, hyphens and underscores.
func sanitizePathComponent(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "anonymous"
	}
	return result.String()
}

// sanitizeFilename drops path separators and control characters, turns
// whitespace into underscores and trims leading dots.
func sanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	var result strings.Builder
	n := 0
	for _, r := range name {
		if n >= maxNameRunes {
			break
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.':
			result.WriteRune(r)
		case unicode.IsSpace(r):
			result.WriteRune('_')
		default:
			continue
		}
		n++
	}

	cleaned := strings.TrimLeft(result.String(), ".")
	if cleaned == "" {
		return "file"
	}
	return cleaned
}
