// Package storage provides object storage for archived audit batches.
// MinIO and Google Cloud Storage backends are supported.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aura-assist/gateway/config"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// NewObjectStorage constructs the archive backend selected by
// cfg.Audit.ArchiveBackend, or nil when archiving is disabled.
func NewObjectStorage(ctx context.Context, cfg config.Config) (ObjectStorage, error) {
	switch cfg.Audit.ArchiveBackend {
	case "":
		return nil, nil
	case "minio":
		return NewMinioClient(cfg.Minio)
	case "gcs":
		return NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Audit.ArchiveBackend)
	}
}
