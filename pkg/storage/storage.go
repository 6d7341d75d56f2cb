// Package storage archives uploaded documents for asynchronous runs.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/feichai0017/certificate-processor/config"
	"github.com/feichai0017/certificate-processor/pkg/logger"
	"github.com/feichai0017/certificate-processor/pkg/storage/minio"
	"github.com/feichai0017/certificate-processor/pkg/storage/s3"
)

// Storage is an object store keyed by string.
type Storage interface {
	// Store writes reader under key and returns the key.
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	// Get opens the object at key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
	// CleanupBefore removes objects under prefix last modified before
	// threshold and returns how many were removed.
	CleanupBefore(ctx context.Context, prefix string, threshold time.Time) (int, error)
}

// New builds the archive backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.ArchiveConfig, log logger.Logger) (Storage, error) {
	switch cfg.Backend {
	case config.ArchiveBackendS3:
		return s3.NewS3Storage(ctx, s3.Config{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		}, log)
	case config.ArchiveBackendMinio:
		return minio.NewMinioStorage(ctx, minio.Config{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
		}, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Backend)
	}
}
