package mirror

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeUploader struct {
	bucket, key, contentType string
	body                     []byte
	err                      error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(input.Bucket)
	f.key = aws.ToString(input.Key)
	f.contentType = aws.ToString(input.ContentType)
	f.body, _ = io.ReadAll(input.Body)
	return &manager.UploadOutput{}, nil
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		in             string
		bucket, prefix string
		wantErr        bool
	}{
		{"s3://bucket", "bucket", "", false},
		{"s3://bucket/archives/", "bucket", "archives", false},
		{"s3://bucket/a/b", "bucket", "a/b", false},
		{"bucket/a", "", "", true},
		{"s3:///a", "", "", true},
	}
	for _, tt := range tests {
		bucket, prefix, err := ParseS3URL(tt.in)
		if (err != nil) != tt.wantErr || bucket != tt.bucket || prefix != tt.prefix {
			t.Errorf("ParseS3URL(%q) = %q, %q, %v", tt.in, bucket, prefix, err)
		}
	}
}

func TestUpload(t *testing.T) {
	local := filepath.Join(t.TempDir(), "123_title.zip")
	os.WriteFile(local, []byte("archive"), 0644)

	fake := &fakeUploader{}
	m, err := NewWithUploader(fake, "s3://bucket/mirror")
	if err != nil {
		t.Fatal(err)
	}
	dest, err := m.Upload(context.Background(), local, filepath.Join("circle", "123_title.zip"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if dest != "s3://bucket/mirror/circle/123_title.zip" {
		t.Errorf("dest = %s", dest)
	}
	if fake.bucket != "bucket" || fake.key != "mirror/circle/123_title.zip" || fake.contentType != "application/zip" || string(fake.body) != "archive" {
		t.Errorf("upload input = %+v", fake)
	}
}

func TestUploadFailure(t *testing.T) {
	local := filepath.Join(t.TempDir(), "a.zip")
	os.WriteFile(local, []byte("x"), 0644)
	denied := errors.New("access denied")
	m, _ := NewWithUploader(&fakeUploader{err: denied}, "s3://bucket")
	if _, err := m.Upload(context.Background(), local, "a.zip"); !errors.Is(err, denied) {
		t.Fatalf("expected wrapped upload error, got %v", err)
	}
	if _, err := m.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.zip"), "missing.zip"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
