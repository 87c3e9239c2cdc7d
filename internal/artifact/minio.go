package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/generation"
)

// MinIOConfig holds the object store connection settings.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// Bucket is used when a reference names no bucket ("s3:///key").
	Bucket string
}

type objectReader func(ctx context.Context, bucket, key string) (io.ReadCloser, error)

// MinIOSource loads "s3://bucket/key" references from an S3-compatible store.
type MinIOSource struct {
	read          objectReader
	defaultBucket string
	maxBytes      int64
}

// NewMinIOSource creates a source backed by a MinIO client.
func NewMinIOSource(cfg MinIOConfig, maxBytes int64) (*MinIOSource, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("minio endpoint is required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	read := func(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
		obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return nil, err
		}
		return obj, nil
	}
	return newMinIOSource(read, cfg.Bucket, maxBytes), nil
}

func newMinIOSource(read objectReader, bucket string, maxBytes int64) *MinIOSource {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &MinIOSource{read: read, defaultBucket: bucket, maxBytes: maxBytes}
}

// Open implements Source.
func (s *MinIOSource) Open(ctx context.Context, ref string) (*domain.Artifact, error) {
	bucket, key, err := s.parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrUnreadableArtifact, err)
	}

	obj, err := s.read(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get %s: %v", generation.ErrUnreadableArtifact, ref, describe(err))
	}
	defer func() { _ = obj.Close() }()

	return readLimited(ref, &errorDescriber{r: obj}, s.maxBytes)
}

func (s *MinIOSource) parse(ref string) (bucket, key string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	bucket = u.Host
	if bucket == "" {
		bucket = s.defaultBucket
	}
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("reference %q must name a bucket and key", ref)
	}
	return bucket, key, nil
}

// describe turns a missing object into a short message.
func describe(err error) error {
	if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return fmt.Errorf("object not found (%s)", resp.Code)
	}
	return err
}

type errorDescriber struct {
	r io.Reader
}

func (e *errorDescriber) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && err != io.EOF {
		err = describe(err)
	}
	return n, err
}
