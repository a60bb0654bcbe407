package upload

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/onnwee/galeria/internal/auth"
	"github.com/onnwee/galeria/internal/blob"
	"github.com/onnwee/galeria/internal/events"
	"github.com/onnwee/galeria/internal/exifmeta"
	"github.com/onnwee/galeria/internal/exifmeta/exiftest"
	"github.com/onnwee/galeria/internal/image"
	"github.com/onnwee/galeria/internal/photo"
	"github.com/onnwee/galeria/internal/store"
)

var alice = &auth.Principal{UserID: "alice"}

type stubInspector struct {
	info image.Info
}

func (s stubInspector) Inspect([]byte) (image.Info, error) { return s.info, nil }

type fixture struct {
	store     *store.Memory
	blobs     *blob.Memory
	events    *events.Recorder
	metrics   *Metrics
	committer *Committer
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		store:   store.NewMemory(),
		blobs:   blob.NewMemory("https://cdn.test"),
		events:  events.NewRecorder(),
		metrics: NewMetrics(),
	}
	cfg := Config{
		Store:      f.store,
		Blobs:      f.blobs,
		Extractor:  exifmeta.NewExtractor(nil),
		Publisher:  f.events,
		Metrics:    f.metrics,
		Compensate: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewCommitter(cfg)
	if err != nil {
		t.Fatalf("NewCommitter: %v", err)
	}
	c.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	f.committer = c
	return f
}

func (f *fixture) calls() int {
	return f.store.TotalCalls() + f.blobs.UploadCalls() + f.blobs.RemoveCalls()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func jpegRequest(name string, gps *[2]float64) Request {
	return Request{
		Filename:    name,
		ContentType: "image/jpeg",
		Data:        exiftest.JPEG(exiftest.Options{CaptureTime: "2024:03:02 10:00:00", GPS: gps}),
	}
}

func TestCommit_DeduplicatesTags(t *testing.T) {
	f := newFixture(t, nil)
	req := jpegRequest("a.jpg", nil)
	req.Tags = []string{"morze", "noc", "morze", "noc"}

	receipt, err := f.committer.Commit(context.Background(), alice, req)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := strings.Join(receipt.Info.Tags, ","); got != "morze,noc" {
		t.Errorf("expected receipt tags morze,noc, got %q", got)
	}

	rec, err := f.store.GetRecord(context.Background(), receipt.Photo.ID)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got := strings.Join(rec.Tags(), ","); got != "morze,noc" {
		t.Errorf("expected stored tags morze,noc, got %q", got)
	}
}

func TestCommit_Success(t *testing.T) {
	f := newFixture(t, nil)
	req := jpegRequest("Plaża o zmroku.jpg", nil)
	req.Folder = "Wakacje"
	req.Tags = []string{"morze", "plaża"}
	req.IsPrivate = true
	req.Description = "  Zachód słońca  "

	receipt, err := f.committer.Commit(context.Background(), alice, req)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	counts := f.store.Counts()
	for _, table := range []string{store.TablePhotos, store.TableVisibility, store.TableInfo, store.TableDescriptions} {
		if counts[table] != 1 {
			t.Errorf("expected 1 row in %s, got %d", table, counts[table])
		}
	}
	if f.blobs.Len() != 1 {
		t.Errorf("expected 1 stored object, got %d", f.blobs.Len())
	}

	keyPattern := regexp.MustCompile(`^alice/[0-9a-f-]{36}_Plaża_o_zmroku\.jpg$`)
	if !keyPattern.MatchString(receipt.Photo.FilePath) {
		t.Errorf("unexpected storage key %q", receipt.Photo.FilePath)
	}
	if receipt.Photo.Title != "Plaża o zmroku.jpg" || receipt.Photo.OwnerID != "alice" {
		t.Errorf("unexpected photo %+v", receipt.Photo)
	}
	if receipt.URL != "https://cdn.test/"+receipt.Photo.FilePath {
		t.Errorf("unexpected url %q", receipt.URL)
	}
	if !receipt.Visibility.IsPrivate {
		t.Error("expected private visibility")
	}
	if receipt.Description == nil || receipt.Description.Text != "Zachód słońca" {
		t.Errorf("unexpected description %+v", receipt.Description)
	}
	if receipt.Info.TakenAt == nil || !receipt.Info.TakenAt.Equal(time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("expected capture time from exif, got %v", receipt.Info.TakenAt)
	}

	rec, err := f.store.GetRecord(context.Background(), receipt.Photo.ID)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.FolderName() != "Wakacje" || strings.Join(rec.Tags(), ",") != "morze,plaża" {
		t.Errorf("unexpected stored info %+v", rec.Info)
	}

	got := f.events.Events()
	if len(got) != 1 || got[0].Type != events.TypeCommitted || got[0].PhotoID != receipt.Photo.ID {
		t.Errorf("unexpected events %+v", got)
	}
	if v := counterValue(t, f.metrics.commits.WithLabelValues(OutcomeSuccess)); v != 1 {
		t.Errorf("expected 1 successful commit, got %v", v)
	}
}

func TestCommit_RejectsHEICBeforeAnyCall(t *testing.T) {
	for _, name := range []string{"IMG_0001.HEIC", "photo.heif", "a.heic"} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil)
			_, err := f.committer.Commit(context.Background(), alice, jpegRequest(name, nil))
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
			}
			if n := f.calls(); n != 0 {
				t.Errorf("expected no collaborator calls, got %d", n)
			}
		})
	}
}

func TestCommit_RejectsHEIFContent(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.Inspector = stubInspector{info: image.Info{Format: image.FormatHEIF}}
	})
	_, err := f.committer.Commit(context.Background(), alice, jpegRequest("renamed.jpg", nil))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if n := f.calls(); n != 0 {
		t.Errorf("expected no collaborator calls, got %d", n)
	}
}

func TestCommit_Validation(t *testing.T) {
	big := make([]byte, 1024*1024+1)

	tests := []struct {
		name      string
		principal *auth.Principal
		req       Request
		wantErr   error
	}{
		{"empty file", alice, Request{Filename: "a.jpg"}, ErrEmptyFile},
		{"too large", alice, Request{Filename: "a.jpg", Data: big}, ErrFileTooLarge},
		{"unknown folder", alice, Request{Filename: "a.jpg", Data: []byte{1}, Folder: "Tajne"}, ErrInvalidRequest},
		{"unknown tag", alice, Request{Filename: "a.jpg", Data: []byte{1}, Tags: []string{"kosmos"}}, ErrInvalidRequest},
		{"bad manual location", alice, Request{Filename: "a.jpg", Data: []byte{1}, ManualLocation: &photo.Location{Latitude: 91}}, ErrInvalidRequest},
		{"path in filename", alice, Request{Filename: "../a.jpg", Data: []byte{1}}, ErrInvalidRequest},
		{"description too long", alice, Request{Filename: "a.jpg", Data: []byte{1}, Description: strings.Repeat("x", 2001)}, ErrInvalidRequest},
		{"no principal", nil, Request{Filename: "a.jpg", Data: []byte{1}}, ErrUnauthenticated},
		{"blank user id", &auth.Principal{}, Request{Filename: "a.jpg", Data: []byte{1}}, ErrUnauthenticated},
		{"format checked before auth", nil, Request{Filename: "a.heic", Data: []byte{1}}, ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(cfg *Config) { cfg.MaxSizeMB = 1 })
			_, err := f.committer.Commit(context.Background(), tt.principal, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if n := f.calls(); n != 0 {
				t.Errorf("expected no collaborator calls, got %d", n)
			}
		})
	}
}

func TestCommit_VisibilityFailureWithoutCompensation(t *testing.T) {
	f := newFixture(t, func(cfg *Config) { cfg.Compensate = false })
	f.store.FailOn(store.OpInsertVisibility, errors.New("connection reset"))

	_, err := f.committer.Commit(context.Background(), alice, jpegRequest("a.jpg", nil))

	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StageError, got %v", err)
	}
	if se.Stage != StageVisibility || se.Compensated {
		t.Errorf("unexpected stage error %+v", se)
	}
	if !errors.Is(err, ErrRowInsertFailed) {
		t.Errorf("expected ErrRowInsertFailed, got %v", err)
	}

	// The earlier stages stay in place.
	counts := f.store.Counts()
	if counts[store.TablePhotos] != 1 || counts[store.TableVisibility] != 0 || counts[store.TableInfo] != 0 {
		t.Errorf("unexpected rows %v", counts)
	}
	if f.blobs.Len() != 1 {
		t.Errorf("expected the blob to remain, got %d objects", f.blobs.Len())
	}
	if f.store.Calls(store.OpInsertInfo) != 0 || f.store.Calls(store.OpInsertDescription) != 0 {
		t.Error("later stages must not run after a failure")
	}
	if len(f.events.Events()) != 0 {
		t.Error("no event expected for a failed commit")
	}
}

func TestCommit_CompensatesEarlierStages(t *testing.T) {
	tests := []struct {
		name      string
		fail      func(f *fixture)
		stage     Stage
		wantUndos map[string]int
		sentinel  error
	}{
		{
			name:      "blob upload",
			fail:      func(f *fixture) { f.blobs.FailUploads(errors.New("bucket unavailable")) },
			stage:     StageBlob,
			wantUndos: map[string]int{},
			sentinel:  ErrStorageWriteFailed,
		},
		{
			name:      "photo row",
			fail:      func(f *fixture) { f.store.FailOn(store.OpInsertPhoto, errors.New("timeout")) },
			stage:     StagePhoto,
			wantUndos: map[string]int{"remove": 1},
			sentinel:  ErrRowInsertFailed,
		},
		{
			name:      "info row",
			fail:      func(f *fixture) { f.store.FailOn(store.OpInsertInfo, errors.New("timeout")) },
			stage:     StageInfo,
			wantUndos: map[string]int{"remove": 1, store.OpDeletePhoto: 1, store.OpDeleteVisibility: 1},
			sentinel:  ErrRowInsertFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			tt.fail(f)

			_, err := f.committer.Commit(context.Background(), alice, jpegRequest("a.jpg", nil))

			var se *StageError
			if !errors.As(err, &se) {
				t.Fatalf("expected StageError, got %v", err)
			}
			if se.Stage != tt.stage || !se.Compensated || len(se.Leftovers) != 0 {
				t.Errorf("unexpected stage error %+v", se)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("expected %v, got %v", tt.sentinel, err)
			}
			for table, n := range f.store.Counts() {
				if n != 0 {
					t.Errorf("expected %s to be empty, got %d rows", table, n)
				}
			}
			if f.blobs.Len() != 0 {
				t.Errorf("expected no blobs, got %d", f.blobs.Len())
			}
			if got := f.blobs.RemoveCalls(); got != tt.wantUndos["remove"] {
				t.Errorf("expected %d blob removals, got %d", tt.wantUndos["remove"], got)
			}
			for _, op := range []string{store.OpDeletePhoto, store.OpDeleteVisibility} {
				if got := f.store.Calls(op); got != tt.wantUndos[op] {
					t.Errorf("expected %d %s calls, got %d", tt.wantUndos[op], op, got)
				}
			}
			if v := counterValue(t, f.metrics.stageFailures.WithLabelValues(string(tt.stage))); v != 1 {
				t.Errorf("expected stage failure metric 1, got %v", v)
			}
		})
	}
}

func TestCommit_CompensationFailureReportsLeftovers(t *testing.T) {
	f := newFixture(t, nil)
	f.store.FailOn(store.OpInsertVisibility, errors.New("timeout"))
	f.blobs.FailRemoves(errors.New("access denied"))

	_, err := f.committer.Commit(context.Background(), alice, jpegRequest("a.jpg", nil))

	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StageError, got %v", err)
	}
	if se.Compensated {
		t.Error("expected incomplete compensation")
	}
	if len(se.Leftovers) != 1 || se.Leftovers[0] != "remove_blob" {
		t.Errorf("unexpected leftovers %v", se.Leftovers)
	}
	if !strings.Contains(err.Error(), "cleanup incomplete") {
		t.Errorf("expected leftovers in message, got %q", err.Error())
	}
	if f.store.Counts()[store.TablePhotos] != 0 {
		t.Error("expected the photo row to be removed")
	}
	if v := counterValue(t, f.metrics.compensations.WithLabelValues("remove_blob", "failed")); v != 1 {
		t.Errorf("expected failed compensation metric 1, got %v", v)
	}
}

func TestCommit_ExifLocationWinsOverManual(t *testing.T) {
	f := newFixture(t, nil)
	req := jpegRequest("warszawa.jpg", &[2]float64{52.23, 21.01})
	req.ManualLocation = &photo.Location{Latitude: 50, Longitude: 19}

	receipt, err := f.committer.Commit(context.Background(), alice, req)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if receipt.Info.Latitude == nil || receipt.Info.Longitude == nil {
		t.Fatal("expected stored location")
	}
	if lat, lng := *receipt.Info.Latitude, *receipt.Info.Longitude; !near(lat, 52.23) || !near(lng, 21.01) {
		t.Errorf("expected exif location (52.23, 21.01), got (%v, %v)", lat, lng)
	}
}

func TestCommit_ManualLocationWithoutGPS(t *testing.T) {
	f := newFixture(t, nil)
	req := Request{
		Filename:       "krakow.jpg",
		ContentType:    "image/jpeg",
		Data:           exiftest.Plain(),
		ManualLocation: &photo.Location{Latitude: 50, Longitude: 19},
	}

	receipt, err := f.committer.Commit(context.Background(), alice, req)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if receipt.Info.Latitude == nil || *receipt.Info.Latitude != 50 || *receipt.Info.Longitude != 19 {
		t.Errorf("expected manual location (50, 19), got %+v", receipt.Info)
	}
	if receipt.Info.TakenAt != nil {
		t.Errorf("expected no capture time, got %v", receipt.Info.TakenAt)
	}
}

func TestCommit_NonImageWithoutMetadata(t *testing.T) {
	f := newFixture(t, nil)
	receipt, err := f.committer.Commit(context.Background(), alice, Request{
		Filename: "notatki.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.7"),
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if receipt.Info.Latitude != nil || receipt.Info.Folder != nil {
		t.Errorf("expected empty info, got %+v", receipt.Info)
	}
	if f.store.Counts()[store.TableInfo] != 1 {
		t.Error("expected the info row to be inserted even without metadata")
	}
}

func TestCommit_DescriptionPolicy(t *testing.T) {
	t.Run("optional", func(t *testing.T) {
		f := newFixture(t, nil)
		f.store.FailOn(store.OpInsertDescription, errors.New("timeout"))
		req := jpegRequest("a.jpg", nil)
		req.Description = "opis"

		receipt, err := f.committer.Commit(context.Background(), alice, req)
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if receipt.Description != nil {
			t.Error("expected no description")
		}
		if !errors.Is(receipt.DescriptionErr, ErrRowInsertFailed) {
			t.Errorf("expected DescriptionErr, got %v", receipt.DescriptionErr)
		}
		if f.store.Counts()[store.TablePhotos] != 1 {
			t.Error("expected the photo to be kept")
		}
	})

	t.Run("required", func(t *testing.T) {
		f := newFixture(t, func(cfg *Config) { cfg.DescriptionRequired = true })
		f.store.FailOn(store.OpInsertDescription, errors.New("timeout"))
		req := jpegRequest("a.jpg", nil)
		req.Description = "opis"

		_, err := f.committer.Commit(context.Background(), alice, req)
		var se *StageError
		if !errors.As(err, &se) || se.Stage != StageDescription || !se.Compensated {
			t.Fatalf("expected compensated description failure, got %v", err)
		}
		if f.store.Calls(store.OpDeleteInfo) != 1 {
			t.Error("expected the info row to be undone")
		}
		if f.store.Counts()[store.TablePhotos] != 0 {
			t.Error("expected no photo rows")
		}
	})

	t.Run("blank description skipped", func(t *testing.T) {
		f := newFixture(t, nil)
		req := jpegRequest("a.jpg", nil)
		req.Description = "   "
		if _, err := f.committer.Commit(context.Background(), alice, req); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if f.store.Calls(store.OpInsertDescription) != 0 {
			t.Error("expected no description insert")
		}
	})
}

func TestCommit_PublishFailureDoesNotFailCommit(t *testing.T) {
	f := newFixture(t, nil)
	f.events.FailWith(errors.New("broker down"))
	if _, err := f.committer.Commit(context.Background(), alice, jpegRequest("a.jpg", nil)); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestCommit_UniqueKeysForSameName(t *testing.T) {
	f := newFixture(t, nil)
	first, err := f.committer.Commit(context.Background(), alice, jpegRequest("a.jpg", nil))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	second, err := f.committer.Commit(context.Background(), alice, jpegRequest("a.jpg", nil))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if first.Photo.FilePath == second.Photo.FilePath || first.Photo.ID == second.Photo.ID {
		t.Error("expected distinct keys and ids")
	}
}

func TestNewCommitter_RequiresCollaborators(t *testing.T) {
	if _, err := NewCommitter(Config{}); err == nil {
		t.Error("expected error for empty config")
	}
	if _, err := NewCommitter(Config{Store: store.NewMemory(), Blobs: blob.NewMemory("")}); err == nil {
		t.Error("expected error without extractor")
	}
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-6 && d > -1e-6
}
