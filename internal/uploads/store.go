// Package uploads stages normalised recipient files in blob storage with
// typed metadata until a job is created from them.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"NotifyAdmin/internal/config"
	"NotifyAdmin/internal/models"
)

var ErrNotFound = errors.New("upload not found")

// Store is the blob store holding staged uploads. Uploads are keyed by
// service and upload id and are never modified apart from their metadata.
type Store interface {
	Put(ctx context.Context, serviceID, uploadID, csv string, meta models.UploadMetadata) error
	// Get streams the stored CSV. The caller closes the reader.
	Get(ctx context.Context, serviceID, uploadID string) (io.ReadCloser, models.UploadMetadata, error)
	Metadata(ctx context.Context, serviceID, uploadID string) (models.UploadMetadata, error)
	SetMetadata(ctx context.Context, serviceID, uploadID string, patch Patch) error
	Health(ctx context.Context) error
}

// ObjectKey is where an upload lives in the bucket.
func ObjectKey(serviceID, uploadID string) string {
	return fmt.Sprintf("service-%s-notify/%s.csv", serviceID, uploadID)
}

// New builds the store selected by UPLOAD_STORAGE_BACKEND.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (Store, error) {
	switch cfg.UploadBackend {
	case "local":
		return NewLocalStore(cfg.LocalUploadPath, cfg.MetadataBudget, log)
	case "s3":
		return NewS3Store(ctx, cfg, log)
	}
	return nil, fmt.Errorf("unknown upload backend %q", cfg.UploadBackend)
}

// ReadAll fetches an upload into memory.
func ReadAll(ctx context.Context, s Store, serviceID, uploadID string) (string, models.UploadMetadata, error) {
	body, meta, err := s.Get(ctx, serviceID, uploadID)
	if err != nil {
		return "", models.UploadMetadata{}, err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return "", models.UploadMetadata{}, fmt.Errorf("read upload %s: %w", uploadID, err)
	}
	return string(data), meta, nil
}
