// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/board-archiver/internal/archive"
	blobs "github.com/JakeFAU/board-archiver/internal/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
}

// BlobStore keeps blobs in a GCS bucket using the sharded object layout.
type BlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ archive.BlobStore = (*BlobStore)(nil)

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, archive.ErrConfiguration.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, archive.ErrConfiguration.New("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Exists reports whether the object for key is present.
func (s *BlobStore) Exists(ctx context.Context, key, namespace string) (bool, error) {
	name, err := s.objectName(key, namespace)
	if err != nil {
		return false, err
	}
	_, err = s.client.Bucket(s.bucket).Object(name).Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	default:
		return false, archive.ErrStorage.Wrap(fmt.Errorf("stat gs://%s/%s: %w", s.bucket, name, err))
	}
}

// Put uploads data. GCS makes the object visible only once the writer closes
// successfully.
func (s *BlobStore) Put(ctx context.Context, key, namespace string, data []byte) error {
	name, err := s.objectName(key, namespace)
	if err != nil {
		return err
	}
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return archive.ErrStorage.Wrap(fmt.Errorf("write object: %w (close writer: %v)", err, closeErr))
		}
		return archive.ErrStorage.Wrap(fmt.Errorf("write object: %w", err))
	}
	if err := writer.Close(); err != nil {
		return archive.ErrStorage.Wrap(fmt.Errorf("close writer for gs://%s/%s: %w", s.bucket, name, err))
	}
	return nil
}

// Get downloads the object for key.
func (s *BlobStore) Get(ctx context.Context, key, namespace string) ([]byte, error) {
	name, err := s.objectName(key, namespace)
	if err != nil {
		return nil, err
	}
	reader, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, archive.ErrNotFound.Wrap(fmt.Errorf("gs://%s/%s: %w", s.bucket, name, err))
	}
	if err != nil {
		return nil, archive.ErrStorage.Wrap(fmt.Errorf("open gs://%s/%s: %w", s.bucket, name, err))
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, archive.ErrStorage.Wrap(fmt.Errorf("read gs://%s/%s: %w", s.bucket, name, err))
	}
	return data, nil
}

func (s *BlobStore) objectName(key, namespace string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", archive.ErrStorage.New("key is required")
	}
	name := blobs.ObjectName(namespace, key)
	if s.prefix != "" {
		name = s.prefix + "/" + name
	}
	return name, nil
}
