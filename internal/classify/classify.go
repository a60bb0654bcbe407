// Package classify groups photo records into the two-level trees shown by the
// folder, album and public gallery views.
package classify

import (
	"sort"
	"time"

	"github.com/onnwee/galeria/internal/photo"
)

// View selects the second-level key.
type View int

const (
	// ViewFolders groups by folder label.
	ViewFolders View = iota
	// ViewAlbums groups by album date, newest bucket first.
	ViewAlbums
)

// Scope selects which records are kept.
type Scope int

const (
	// ScopeOwner keeps records owned by the principal.
	ScopeOwner Scope = iota
	// ScopePublic keeps records that are not private, regardless of owner.
	ScopePublic
)

// Options controls a classification run.
type Options struct {
	View  View
	Scope Scope
	// Principal is the owner id used by ScopeOwner.
	Principal string
	// URLFor derives the public URL of a storage key. Nil leaves URL empty.
	URLFor func(key string) string
	// CaptureTimes supplies capture times for records whose info row has none,
	// keyed by photo id.
	CaptureTimes map[string]time.Time
}

// Entry is a record enriched for presentation.
type Entry struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Title       string          `json:"title"`
	FilePath    string          `json:"file_path"`
	URL         string          `json:"url"`
	Extension   string          `json:"extension"`
	MediaType   string          `json:"media_type"`
	Tags        []string        `json:"tags"`
	Folder      string          `json:"folder"`
	IsPrivate   bool            `json:"is_private"`
	Description string          `json:"description,omitempty"`
	Location    *photo.Location `json:"location,omitempty"`
	TakenAt     *time.Time      `json:"taken_at,omitempty"`
	AlbumKey    string          `json:"album_key"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Subfolder is a second-level bucket.
type Subfolder struct {
	Name  string  `json:"name"`
	Files []Entry `json:"files"`
}

// TopFolder is a first-level bucket, "Prywatne" or "Publiczne".
type TopFolder struct {
	Name       string      `json:"name"`
	Subfolders []Subfolder `json:"subfolders"`
}

// Tree is the classification result. Top folders appear in first-encounter order.
type Tree struct {
	Folders []TopFolder `json:"folders"`
}

// Len returns the number of entries in the tree.
func (t Tree) Len() int {
	n := 0
	for _, top := range t.Folders {
		for _, sub := range top.Subfolders {
			n += len(sub.Files)
		}
	}
	return n
}

// Entries flattens the tree in bucket order.
func (t Tree) Entries() []Entry {
	entries := make([]Entry, 0, t.Len())
	for _, top := range t.Folders {
		for _, sub := range top.Subfolders {
			entries = append(entries, sub.Files...)
		}
	}
	return entries
}

// Subfolder returns the named bucket, if present.
func (t Tree) Subfolder(top, name string) (Subfolder, bool) {
	for _, tf := range t.Folders {
		if tf.Name != top {
			continue
		}
		for _, sf := range tf.Subfolders {
			if sf.Name == name {
				return sf, true
			}
		}
	}
	return Subfolder{}, false
}

// Keep reports whether a record passes the scope filter.
func Keep(rec photo.Record, opts Options) bool {
	switch opts.Scope {
	case ScopePublic:
		return !rec.IsPrivate()
	default:
		return rec.Photo.OwnerID == opts.Principal
	}
}

// TopKey returns the first-level bucket of a record.
func TopKey(rec photo.Record) string {
	if rec.IsPrivate() {
		return photo.TopPrivate
	}
	return photo.TopPublic
}

// Classify filters records by scope and groups them by privacy and then by
// folder or album key. Encounter order is preserved inside every bucket.
func Classify(records []photo.Record, opts Options) Tree {
	tree := Tree{Folders: []TopFolder{}}
	topIndex := map[string]int{}
	subIndex := map[string]map[string]int{}

	for _, rec := range records {
		if !Keep(rec, opts) {
			continue
		}
		entry := NewEntry(rec, opts)

		top := TopKey(rec)
		ti, ok := topIndex[top]
		if !ok {
			ti = len(tree.Folders)
			topIndex[top] = ti
			subIndex[top] = map[string]int{}
			tree.Folders = append(tree.Folders, TopFolder{Name: top, Subfolders: []Subfolder{}})
		}

		sub := entry.Folder
		if opts.View == ViewAlbums {
			sub = entry.AlbumKey
		}
		si, ok := subIndex[top][sub]
		if !ok {
			si = len(tree.Folders[ti].Subfolders)
			subIndex[top][sub] = si
			tree.Folders[ti].Subfolders = append(tree.Folders[ti].Subfolders, Subfolder{Name: sub, Files: []Entry{}})
		}
		tree.Folders[ti].Subfolders[si].Files = append(tree.Folders[ti].Subfolders[si].Files, entry)
	}

	if opts.View == ViewAlbums {
		for i := range tree.Folders {
			subs := tree.Folders[i].Subfolders
			// Album keys are YYYY-MM-DD, so string order is date order.
			sort.SliceStable(subs, func(a, b int) bool { return subs[a].Name > subs[b].Name })
		}
	}
	return tree
}

// NewEntry enriches a record with its URL, extension, media type, parsed tags
// and album key.
func NewEntry(rec photo.Record, opts Options) Entry {
	e := Entry{
		ID:          rec.Photo.ID,
		OwnerID:     rec.Photo.OwnerID,
		Title:       rec.Photo.Title,
		FilePath:    rec.Photo.FilePath,
		Extension:   photo.Extension(rec.Photo.FilePath),
		MediaType:   photo.MediaType(rec.Photo.FilePath),
		Tags:        photo.ParseTags(photo.JoinTags(rec.Tags())),
		Folder:      rec.FolderName(),
		IsPrivate:   rec.IsPrivate(),
		Description: rec.DescriptionText(),
		Location:    rec.Location(),
		TakenAt:     rec.TakenAt(),
		CreatedAt:   rec.Photo.CreatedAt,
	}
	if opts.URLFor != nil {
		e.URL = opts.URLFor(rec.Photo.FilePath)
	}
	if e.TakenAt == nil {
		if t, ok := opts.CaptureTimes[rec.Photo.ID]; ok {
			e.TakenAt = &t
		}
	}
	e.AlbumKey = photo.AlbumKey(e.TakenAt, rec.Photo.CreatedAt)
	return e
}
