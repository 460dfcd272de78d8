package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures the S3-compatible blob store.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL is the CDN or bucket URL assets are served from. When
	// empty, URLs are built from the endpoint and bucket.
	PublicBaseURL string
}

// S3Store uploads assets to an S3-compatible object store via MinIO.
type S3Store struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

func NewS3Store(opts S3Options) (*S3Store, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, errors.New("storage: s3 endpoint and bucket are required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create s3 client: %w", err)
	}
	baseURL := strings.TrimRight(opts.PublicBaseURL, "/")
	if baseURL == "" {
		scheme := "http"
		if opts.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, opts.Endpoint, opts.Bucket)
	}
	return &S3Store{client: client, bucket: opts.Bucket, baseURL: baseURL}, nil
}

// Upload writes the blob under key and returns its path and public URL.
func (s *S3Store) Upload(ctx context.Context, key string, data []byte, contentType string) (Upload, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return Upload{}, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.client.PutObject(
		ctx,
		s.bucket,
		cleanKey,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return Upload{}, fmt.Errorf("storage: s3 put object: %w", err)
	}
	return Upload{Path: cleanKey, URL: s.baseURL + "/" + cleanKey}, nil
}

var _ BlobStore = (*S3Store)(nil)
