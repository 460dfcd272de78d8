package storage

import "context"

// Upload is the result of persisting a blob: the storage path (key) and the
// public URL it is served from.
type Upload struct {
	Path string
	URL  string
}

// BlobStore uploads generated artifacts. Implementations: S3Store (MinIO /
// S3-compatible) for deployments, FileStore for development and tests.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (Upload, error)
}
