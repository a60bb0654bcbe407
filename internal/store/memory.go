package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/onnwee/galeria/internal/photo"
)

// Method names accepted by Memory.Calls and Memory.FailOn.
const (
	OpInsertPhoto       = "InsertPhoto"
	OpInsertVisibility  = "InsertVisibility"
	OpInsertInfo        = "InsertInfo"
	OpInsertDescription = "InsertDescription"
	OpDeleteInfo        = "DeleteInfo"
	OpDeleteVisibility  = "DeleteVisibility"
	OpDeletePhoto       = "DeletePhoto"
	OpSetVisibility     = "SetVisibility"
	OpGetRecord         = "GetRecord"
	OpListByOwner       = "ListByOwner"
	OpListPublic        = "ListPublic"
	OpListLocated       = "ListLocated"
)

// Memory is an in-memory Store used for development and tests.
// It counts calls per method and can be told to fail specific methods.
type Memory struct {
	mu           sync.RWMutex
	seq          int64
	order        map[string]int64
	photos       map[string]photo.Photo
	visibility   map[string]photo.Visibility
	info         map[string]photo.Info
	descriptions map[string]photo.Description

	calls    map[string]int
	failures map[string]error
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		order:        make(map[string]int64),
		photos:       make(map[string]photo.Photo),
		visibility:   make(map[string]photo.Visibility),
		info:         make(map[string]photo.Info),
		descriptions: make(map[string]photo.Description),
		calls:        make(map[string]int),
		failures:     make(map[string]error),
	}
}

// FailOn makes every later call to op return err. A nil err clears it.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Calls returns how many times op was invoked, including failed calls.
func (m *Memory) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// TotalCalls returns the number of calls across all methods.
func (m *Memory) TotalCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// Counts returns the number of stored rows per table.
func (m *Memory) Counts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int{
		TablePhotos:       len(m.photos),
		TableVisibility:   len(m.visibility),
		TableInfo:         len(m.info),
		TableDescriptions: len(m.descriptions),
	}
}

// begin records the call and returns the injected failure, if any.
// Must be called with the write lock held.
func (m *Memory) begin(op string) error {
	m.calls[op]++
	return m.failures[op]
}

// InsertPhoto stores a new photo row.
func (m *Memory) InsertPhoto(ctx context.Context, p *photo.Photo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpInsertPhoto); err != nil {
		return err
	}
	if p.ID == "" {
		return fmt.Errorf("photo id is required")
	}
	if _, ok := m.photos[p.ID]; ok {
		return fmt.Errorf("%w: photos.id %s", ErrDuplicate, p.ID)
	}
	m.seq++
	m.order[p.ID] = m.seq
	m.photos[p.ID] = *p
	return nil
}

// InsertVisibility stores the visibility row of an existing photo.
func (m *Memory) InsertVisibility(ctx context.Context, v *photo.Visibility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpInsertVisibility); err != nil {
		return err
	}
	if err := m.requirePhoto(v.PhotoID); err != nil {
		return err
	}
	if _, ok := m.visibility[v.PhotoID]; ok {
		return fmt.Errorf("%w: photo_visibility.photo_id %s", ErrDuplicate, v.PhotoID)
	}
	m.visibility[v.PhotoID] = *v
	return nil
}

// InsertInfo stores the info row of an existing photo.
func (m *Memory) InsertInfo(ctx context.Context, info *photo.Info) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpInsertInfo); err != nil {
		return err
	}
	if err := m.requirePhoto(info.PhotoID); err != nil {
		return err
	}
	if _, ok := m.info[info.PhotoID]; ok {
		return fmt.Errorf("%w: photo_info.photo_id %s", ErrDuplicate, info.PhotoID)
	}
	m.info[info.PhotoID] = copyInfo(*info)
	return nil
}

// InsertDescription stores the description row of an existing photo.
func (m *Memory) InsertDescription(ctx context.Context, d *photo.Description) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpInsertDescription); err != nil {
		return err
	}
	if err := m.requirePhoto(d.PhotoID); err != nil {
		return err
	}
	if _, ok := m.descriptions[d.PhotoID]; ok {
		return fmt.Errorf("%w: photo_descriptions.photo_id %s", ErrDuplicate, d.PhotoID)
	}
	m.descriptions[d.PhotoID] = *d
	return nil
}

// DeleteInfo removes the info row. Missing rows are not an error.
func (m *Memory) DeleteInfo(ctx context.Context, photoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpDeleteInfo); err != nil {
		return err
	}
	delete(m.info, photoID)
	return nil
}

// DeleteVisibility removes the visibility row. Missing rows are not an error.
func (m *Memory) DeleteVisibility(ctx context.Context, photoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpDeleteVisibility); err != nil {
		return err
	}
	delete(m.visibility, photoID)
	return nil
}

// DeletePhoto removes the photo row and cascades to its dependent rows.
func (m *Memory) DeletePhoto(ctx context.Context, photoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpDeletePhoto); err != nil {
		return err
	}
	if _, ok := m.photos[photoID]; !ok {
		return ErrNotFound
	}
	delete(m.photos, photoID)
	delete(m.order, photoID)
	delete(m.visibility, photoID)
	delete(m.info, photoID)
	delete(m.descriptions, photoID)
	return nil
}

// SetVisibility updates or creates the visibility row of an existing photo.
func (m *Memory) SetVisibility(ctx context.Context, photoID string, isPrivate bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpSetVisibility); err != nil {
		return err
	}
	if _, ok := m.photos[photoID]; !ok {
		return ErrNotFound
	}
	m.visibility[photoID] = photo.Visibility{PhotoID: photoID, IsPrivate: isPrivate}
	return nil
}

// GetRecord returns the joined record of a photo.
func (m *Memory) GetRecord(ctx context.Context, photoID string) (*photo.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpGetRecord); err != nil {
		return nil, err
	}
	if _, ok := m.photos[photoID]; !ok {
		return nil, ErrNotFound
	}
	rec := m.record(photoID)
	return &rec, nil
}

// ListByOwner returns the owner's records, newest first.
func (m *Memory) ListByOwner(ctx context.Context, ownerID string) ([]photo.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpListByOwner); err != nil {
		return nil, err
	}
	return m.list(func(r photo.Record) bool { return r.Photo.OwnerID == ownerID }), nil
}

// ListPublic returns every record that is not marked private, newest first.
func (m *Memory) ListPublic(ctx context.Context) ([]photo.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpListPublic); err != nil {
		return nil, err
	}
	return m.list(func(r photo.Record) bool { return !r.IsPrivate() }), nil
}

// ListLocated returns the owner's records with both coordinates set.
func (m *Memory) ListLocated(ctx context.Context, ownerID string) ([]photo.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpListLocated); err != nil {
		return nil, err
	}
	return m.list(func(r photo.Record) bool {
		return r.Photo.OwnerID == ownerID && r.Location() != nil
	}), nil
}

func (m *Memory) requirePhoto(photoID string) error {
	if _, ok := m.photos[photoID]; !ok {
		return fmt.Errorf("photo %s: %w", photoID, ErrNotFound)
	}
	return nil
}

func (m *Memory) list(keep func(photo.Record) bool) []photo.Record {
	records := []photo.Record{}
	for id := range m.photos {
		if rec := m.record(id); keep(rec) {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Photo, records[j].Photo
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return m.order[a.ID] > m.order[b.ID]
	})
	return records
}

// record builds a deep copy of the joined projection.
func (m *Memory) record(photoID string) photo.Record {
	rec := photo.Record{Photo: m.photos[photoID]}
	if v, ok := m.visibility[photoID]; ok {
		rec.Visibility = &v
	}
	if info, ok := m.info[photoID]; ok {
		c := copyInfo(info)
		rec.Info = &c
	}
	if d, ok := m.descriptions[photoID]; ok {
		rec.Description = &d
	}
	return rec
}

func copyInfo(info photo.Info) photo.Info {
	c := info
	if info.Tags != nil {
		c.Tags = append([]string(nil), info.Tags...)
	}
	if info.Folder != nil {
		f := *info.Folder
		c.Folder = &f
	}
	if info.Latitude != nil {
		lat := *info.Latitude
		c.Latitude = &lat
	}
	if info.Longitude != nil {
		lng := *info.Longitude
		c.Longitude = &lng
	}
	if info.TakenAt != nil {
		t := *info.TakenAt
		c.TakenAt = &t
	}
	return c
}
