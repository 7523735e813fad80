package mirror

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Uploader is the subset of the S3 upload manager used here.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Mirror copies finished archives to an S3 bucket under a fixed prefix.
type Mirror struct {
	uploader Uploader
	bucket   string
	prefix   string
}

func ParseS3URL(target string) (string, string, error) {
	rest, ok := strings.CutPrefix(target, "s3://")
	if !ok {
		return "", "", fmt.Errorf("invalid S3 URL %q: must start with s3://", target)
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid S3 URL %q: missing bucket", target)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

// New loads AWS credentials for profile (empty for the default chain) and targets s3://bucket/prefix.
func New(ctx context.Context, target, profile string) (*Mirror, error) {
	opts := []func(*config.LoadOptions) error{config.WithRetryMode("adaptive")}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %v", err)
	}
	return NewWithUploader(manager.NewUploader(s3.NewFromConfig(cfg)), target)
}

func NewWithUploader(uploader Uploader, target string) (*Mirror, error) {
	bucket, prefix, err := ParseS3URL(target)
	if err != nil {
		return nil, err
	}
	return &Mirror{uploader: uploader, bucket: bucket, prefix: prefix}, nil
}

// Key maps a path relative to the download folder to its object key.
func (m *Mirror) Key(rel string) string {
	rel = filepath.ToSlash(rel)
	if m.prefix == "" {
		return rel
	}
	return path.Join(m.prefix, rel)
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".zip":
		return "application/zip"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}

// Upload sends localPath to the key derived from rel and returns the object URL.
func (m *Mirror) Upload(ctx context.Context, localPath, rel string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("error opening %s: %v", localPath, err)
	}
	defer file.Close()

	key := m.Key(rel)
	_, err = m.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType(localPath)),
	})
	if err != nil {
		return "", fmt.Errorf("error uploading to s3://%s/%s: %w", m.bucket, key, err)
	}
	log.Debug().Str("op", "mirror/upload").Msgf("uploaded %s to s3://%s/%s", localPath, m.bucket, key)
	return fmt.Sprintf("s3://%s/%s", m.bucket, key), nil
}
