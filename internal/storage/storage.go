// Package storage uploads objects to MinIO, Google Cloud Storage or Amazon S3.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/taskboard/apiserver/config"
)

// ObjectStorage is implemented by every object storage client.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Bucket() string
}

// Open builds the client selected by cfg.StorageBackend.
func Open(ctx context.Context, cfg config.Config) (ObjectStorage, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendMinio:
		return NewMinioClient(cfg.Minio)
	case config.StorageBackendGCS:
		return NewGCSClient(ctx, cfg.GCS)
	case config.StorageBackendS3:
		return NewS3Client(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
