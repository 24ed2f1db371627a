// Package local implements a filesystem blob store rooted at the data
// directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/board-archiver/internal/archive"
	"github.com/JakeFAU/board-archiver/internal/storage"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory where blobs will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes blobs to BaseDir/{namespace}/{shards}/{key}.
type BlobStore struct {
	baseDir string
}

var _ archive.BlobStore = (*BlobStore)(nil)

// New creates a filesystem-backed blob store, creating BaseDir when missing
// and probing it for write access.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, archive.ErrConfiguration.New("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, archive.ErrStorage.Wrap(fmt.Errorf("create base directory: %w", mkErr))
		}
	case err != nil:
		return nil, archive.ErrStorage.Wrap(fmt.Errorf("stat base directory: %w", err))
	case !info.IsDir():
		return nil, archive.ErrConfiguration.New("base directory path %q is not a directory", cfg.BaseDir)
	}

	probe, err := os.CreateTemp(cfg.BaseDir, ".writable-*")
	if err != nil {
		return nil, archive.ErrStorage.Wrap(fmt.Errorf("base directory is not writable: %w", err))
	}
	name := probe.Name()
	if err := probe.Close(); err != nil {
		return nil, archive.ErrStorage.Wrap(fmt.Errorf("close probe file: %w", err))
	}
	if err := os.Remove(name); err != nil {
		return nil, archive.ErrStorage.Wrap(fmt.Errorf("remove probe file: %w", err))
	}

	return &BlobStore{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// Exists reports whether a blob is stored under key.
func (s *BlobStore) Exists(_ context.Context, key, namespace string) (bool, error) {
	path, err := s.resolve(key, namespace)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, archive.ErrStorage.Wrap(fmt.Errorf("stat %s: %w", path, err))
	}
}

// Put writes data under key. The bytes land in a temporary file in the
// target directory first and are renamed into place, so a reader never sees
// a partial blob.
func (s *BlobStore) Put(_ context.Context, key, namespace string, data []byte) error {
	path, err := s.resolve(key, namespace)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return archive.ErrStorage.Wrap(fmt.Errorf("create parent directories: %w", err))
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return archive.ErrStorage.Wrap(fmt.Errorf("create temp file: %w", err))
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return archive.ErrStorage.Wrap(fmt.Errorf("write %s: %w", tmpName, err))
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return archive.ErrStorage.Wrap(fmt.Errorf("sync %s: %w", tmpName, err))
	}
	if err := tmp.Close(); err != nil {
		return archive.ErrStorage.Wrap(fmt.Errorf("close %s: %w", tmpName, err))
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return archive.ErrStorage.Wrap(fmt.Errorf("chmod %s: %w", tmpName, err))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return archive.ErrStorage.Wrap(fmt.Errorf("rename into %s: %w", path, err))
	}
	committed = true
	return nil
}

// Get reads the blob stored under key.
func (s *BlobStore) Get(_ context.Context, key, namespace string) ([]byte, error) {
	path, err := s.resolve(key, namespace)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is confined to baseDir by resolve.
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, fs.ErrNotExist):
		return nil, archive.ErrNotFound.Wrap(fmt.Errorf("blob %s/%s: %w", namespace, key, err))
	default:
		return nil, archive.ErrStorage.Wrap(fmt.Errorf("read %s: %w", path, err))
	}
}

// resolve maps a key to its file path and rejects anything escaping baseDir.
func (s *BlobStore) resolve(key, namespace string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", archive.ErrStorage.New("key is required")
	}
	if strings.ContainsAny(key, `/\`) {
		return "", archive.ErrStorage.New("key %q contains a path separator", key)
	}
	full := filepath.Join(s.baseDir, filepath.FromSlash(storage.ObjectName(namespace, key)))
	if !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", archive.ErrStorage.New("path traversal detected for %q", key)
	}
	return full, nil
}
