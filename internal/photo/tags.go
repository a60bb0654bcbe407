package photo

import "strings"

// JoinTags serializes tags into the stored comma-joined form.
func JoinTags(tags []string) string {
	return strings.Join(tags, ",")
}

// ParseTags splits a stored tag string, trimming entries and dropping blanks.
// An empty input yields an empty, non-nil slice.
func ParseTags(s string) []string {
	tags := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
