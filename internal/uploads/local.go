package uploads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"NotifyAdmin/internal/metrics"
	"NotifyAdmin/internal/models"
)

// LocalStore keeps uploads on disk for development and tests. Metadata is
// stored beside each file as JSON in the same string form S3 would hold.
type LocalStore struct {
	basePath string
	budget   int
	log      *zap.Logger
}

func NewLocalStore(basePath string, budget int, log *zap.Logger) (*LocalStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("LOCAL_UPLOAD_PATH is not set")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	log = log.Named("local-uploads")
	log.Info("local upload storage initialised", zap.String("path", basePath))
	return &LocalStore{basePath: basePath, budget: budget, log: log}, nil
}

func (l *LocalStore) paths(serviceID, uploadID string) (string, string, error) {
	if strings.ContainsAny(serviceID+uploadID, `/\`) || strings.Contains(serviceID+uploadID, "..") {
		return "", "", fmt.Errorf("upload %s: %w", uploadID, ErrNotFound)
	}
	full := filepath.Join(l.basePath, filepath.FromSlash(ObjectKey(serviceID, uploadID)))
	return full, full + ".meta.json", nil
}

func (l *LocalStore) Put(ctx context.Context, serviceID, uploadID, csv string, meta models.UploadMetadata) (err error) {
	defer func() { metrics.RecordBlobOp("put", err) }()

	encoded, err := EncodeMetadata(meta, l.budget)
	if err != nil {
		return err
	}
	data, metaPath, err := l.paths(serviceID, uploadID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(data), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(data, []byte(csv), 0o600); err != nil {
		return fmt.Errorf("write upload %s: %w", uploadID, err)
	}
	return writeSidecar(metaPath, encoded)
}

func (l *LocalStore) Get(ctx context.Context, serviceID, uploadID string) (_ io.ReadCloser, _ models.UploadMetadata, err error) {
	defer func() { metrics.RecordBlobOp("get", err) }()

	meta, err := l.Metadata(ctx, serviceID, uploadID)
	if err != nil {
		return nil, models.UploadMetadata{}, err
	}
	data, _, err := l.paths(serviceID, uploadID)
	if err != nil {
		return nil, models.UploadMetadata{}, err
	}
	f, err := os.Open(data)
	if err != nil {
		return nil, models.UploadMetadata{}, notFound(uploadID, err)
	}
	return f, meta, nil
}

func (l *LocalStore) Metadata(ctx context.Context, serviceID, uploadID string) (models.UploadMetadata, error) {
	_, metaPath, err := l.paths(serviceID, uploadID)
	if err != nil {
		return models.UploadMetadata{}, err
	}
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return models.UploadMetadata{}, notFound(uploadID, err)
	}
	var encoded map[string]string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return models.UploadMetadata{}, fmt.Errorf("read metadata for %s: %w", uploadID, err)
	}
	return DecodeMetadata(encoded)
}

func (l *LocalStore) SetMetadata(ctx context.Context, serviceID, uploadID string, patch Patch) (err error) {
	defer func() { metrics.RecordBlobOp("copy", err) }()

	current, err := l.Metadata(ctx, serviceID, uploadID)
	if err != nil {
		return err
	}
	encoded, err := EncodeMetadata(patch.apply(current), l.budget)
	if err != nil {
		return err
	}
	_, metaPath, err := l.paths(serviceID, uploadID)
	if err != nil {
		return err
	}
	return writeSidecar(metaPath, encoded)
}

func (l *LocalStore) Health(ctx context.Context) error {
	_, err := os.Stat(l.basePath)
	return err
}

func writeSidecar(path string, meta map[string]string) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func notFound(uploadID string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("upload %s: %w", uploadID, ErrNotFound)
	}
	return fmt.Errorf("upload %s: %w", uploadID, err)
}
