package photo

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

// TestTagsRoundTrip covers serialization and parsing of the stored tag string.
func TestTagsRoundTrip(t *testing.T) {
	joined := JoinTags([]string{"morze", "noc"})
	if joined != "morze,noc" {
		t.Fatalf("expected %q, got %q", "morze,noc", joined)
	}

	parsed := ParseTags(joined)
	if !reflect.DeepEqual(parsed, []string{"morze", "noc"}) {
		t.Errorf("expected [morze noc], got %v", parsed)
	}

	empty := ParseTags("")
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestParseTags_DropsBlankEntries(t *testing.T) {
	got := ParseTags(" morze , ,noc,  ,")
	want := []string{"morze", "noc"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestRecord_FolderName(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		want   string
	}{
		{"no info row", Record{}, NoFolder},
		{"nil folder", Record{Info: &Info{}}, NoFolder},
		{"empty folder", Record{Info: &Info{Folder: strPtr("")}}, NoFolder},
		{"whitespace folder", Record{Info: &Info{Folder: strPtr("   ")}}, NoFolder},
		{"trimmed folder", Record{Info: &Info{Folder: strPtr(" Wakacje ")}}, "Wakacje"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.FolderName(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRecord_IsPrivate(t *testing.T) {
	if (Record{}).IsPrivate() {
		t.Error("missing visibility row should count as public")
	}
	if !(Record{Visibility: &Visibility{IsPrivate: true}}).IsPrivate() {
		t.Error("expected private record")
	}
}

func TestAlbumKey(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	captured := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)

	if got := AlbumKey(&captured, created); got != "2024-03-02" {
		t.Errorf("expected capture date, got %q", got)
	}
	if got := AlbumKey(nil, created); got != "2024-05-01" {
		t.Errorf("expected created date, got %q", got)
	}
	zero := time.Time{}
	if got := AlbumKey(&zero, created); got != "2024-05-01" {
		t.Errorf("zero capture time should fall back, got %q", got)
	}
}

func TestMediaType(t *testing.T) {
	tests := map[string]string{
		"a.JPG":    MediaImage,
		"b.heic":   MediaImage,
		"c.mp4":    MediaVideo,
		"d.ogg":    MediaVideo,
		"e.m4a":    MediaAudio,
		"f.pdf":    MediaFile,
		"noext":    MediaFile,
		"dir.x/sz": MediaFile,
	}
	for name, want := range tests {
		if got := MediaType(name); got != want {
			t.Errorf("MediaType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestValidateCatalog(t *testing.T) {
	if err := ValidateFolder(""); err != nil {
		t.Errorf("empty folder should be accepted: %v", err)
	}
	if err := ValidateFolder("Wakacje"); err != nil {
		t.Errorf("catalog folder rejected: %v", err)
	}
	if err := ValidateFolder("Tajne"); !errors.Is(err, ErrUnknownFolder) {
		t.Errorf("expected ErrUnknownFolder, got %v", err)
	}
	if err := ValidateTags([]string{"morze", "zachód słońca"}); err != nil {
		t.Errorf("catalog tags rejected: %v", err)
	}
	if err := ValidateTags([]string{"morze", "selfie"}); !errors.Is(err, ErrUnknownTag) {
		t.Errorf("expected ErrUnknownTag, got %v", err)
	}
}
