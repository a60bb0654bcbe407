package blob

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// mockS3Client records the requests it receives.
type mockS3Client struct {
	putObjectFunc     func(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	deleteObjectsFunc func(ctx context.Context, input *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

func (m *mockS3Client) PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putObjectFunc != nil {
		return m.putObjectFunc(ctx, input, opts...)
	}
	return nil, errors.New("PutObject not mocked")
}

func (m *mockS3Client) DeleteObjects(ctx context.Context, input *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	if m.deleteObjectsFunc != nil {
		return m.deleteObjectsFunc(ctx, input, opts...)
	}
	return nil, errors.New("DeleteObjects not mocked")
}

func TestNewS3_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     S3Config
		wantErr bool
	}{
		{"valid", S3Config{BucketName: "b", AccessKeyID: "k", SecretAccessKey: "s", Endpoint: "https://r2.example.com"}, false},
		{"missing bucket", S3Config{AccessKeyID: "k", SecretAccessKey: "s", Endpoint: "https://r2.example.com"}, true},
		{"missing key", S3Config{BucketName: "b", SecretAccessKey: "s", Endpoint: "https://r2.example.com"}, true},
		{"missing secret", S3Config{BucketName: "b", AccessKeyID: "k", Endpoint: "https://r2.example.com"}, true},
		{"missing endpoint", S3Config{BucketName: "b", AccessKeyID: "k", SecretAccessKey: "s"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewS3(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewS3() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestS3_PublicURL(t *testing.T) {
	s, err := NewS3(S3Config{BucketName: "photos", AccessKeyID: "k", SecretAccessKey: "s", Endpoint: "https://r2.example.com/"})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	want := "https://r2.example.com/photos/alice/123_zd%C4%99cie%201.jpg"
	if got := s.PublicURL("alice/123_zdęcie 1.jpg"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	s, _ = NewS3(S3Config{BucketName: "photos", AccessKeyID: "k", SecretAccessKey: "s", Endpoint: "https://r2.example.com", PublicBaseURL: "https://cdn.example.com"})
	if got := s.PublicURL("a/b.jpg"); got != "https://cdn.example.com/a/b.jpg" {
		t.Errorf("unexpected public url %s", got)
	}
}

func TestS3_Upload(t *testing.T) {
	var got *s3.PutObjectInput
	var body []byte
	s := &S3{
		bucketName: "photos",
		client: &mockS3Client{
			putObjectFunc: func(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
				got = input
				body, _ = io.ReadAll(input.Body)
				return &s3.PutObjectOutput{}, nil
			},
		},
	}

	if err := s.Upload(context.Background(), "alice/1_a.jpg", "image/jpeg", []byte("jpeg")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aws.ToString(got.Bucket) != "photos" || aws.ToString(got.Key) != "alice/1_a.jpg" {
		t.Errorf("unexpected target %s/%s", aws.ToString(got.Bucket), aws.ToString(got.Key))
	}
	if aws.ToInt64(got.ContentLength) != 4 || string(body) != "jpeg" {
		t.Errorf("unexpected body %q (len %d)", body, aws.ToInt64(got.ContentLength))
	}

	if err := s.Upload(context.Background(), "../etc/passwd", "text/plain", nil); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestS3_Remove(t *testing.T) {
	t.Run("batch", func(t *testing.T) {
		var keys []string
		s := &S3{bucketName: "photos", client: &mockS3Client{
			deleteObjectsFunc: func(ctx context.Context, input *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
				for _, o := range input.Delete.Objects {
					keys = append(keys, aws.ToString(o.Key))
				}
				return &s3.DeleteObjectsOutput{}, nil
			},
		}}
		if err := s.Remove(context.Background(), "a", "b"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(keys) != 2 {
			t.Errorf("expected 2 keys, got %v", keys)
		}
	})

	t.Run("per-object errors", func(t *testing.T) {
		s := &S3{bucketName: "photos", client: &mockS3Client{
			deleteObjectsFunc: func(ctx context.Context, input *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
				return &s3.DeleteObjectsOutput{Errors: []types.Error{{Key: aws.String("a"), Message: aws.String("AccessDenied")}}}, nil
			},
		}}
		if err := s.Remove(context.Background(), "a"); err == nil {
			t.Error("expected error for failed object")
		}
	})

	t.Run("no keys", func(t *testing.T) {
		s := &S3{bucketName: "photos", client: &mockS3Client{}}
		if err := s.Remove(context.Background()); err != nil {
			t.Errorf("expected no-op, got %v", err)
		}
	})
}

func TestMemory_UploadRemoveAndServe(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("http://example.test/blobs")

	if err := m.Upload(ctx, "alice/1_a b.jpg", "image/jpeg", []byte("data")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if m.Len() != 1 || m.UploadCalls() != 1 {
		t.Fatalf("expected 1 object and 1 call, got %d/%d", m.Len(), m.UploadCalls())
	}
	if got := m.PublicURL("alice/1_a b.jpg"); got != "http://example.test/blobs/alice/1_a%20b.jpg" {
		t.Errorf("unexpected url %s", got)
	}

	srv := httptest.NewServer(m.Handler("/blobs"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/blobs/alice/1_a%20b.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(data) != "data" {
		t.Errorf("unexpected response %d %q", resp.StatusCode, data)
	}

	if err := m.Remove(ctx, "alice/1_a b.jpg", "missing"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("expected empty store, got %d", m.Len())
	}

	resp, err = http.Get(srv.URL + "/blobs/alice/1_a%20b.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after remove, got %d", resp.StatusCode)
	}
}

func TestMemory_InjectedFailures(t *testing.T) {
	m := NewMemory("")
	boom := errors.New("boom")
	m.FailUploads(boom)
	if err := m.Upload(context.Background(), "a/b", "", nil); !errors.Is(err, boom) {
		t.Errorf("expected injected upload error, got %v", err)
	}
	m.FailRemoves(boom)
	if err := m.Remove(context.Background(), "a/b"); !errors.Is(err, boom) {
		t.Errorf("expected injected remove error, got %v", err)
	}
	if m.Len() != 0 {
		t.Error("failed upload must not store an object")
	}
}
