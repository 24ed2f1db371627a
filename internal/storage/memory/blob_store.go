// Package memory keeps blobs and posts in process memory for dry runs and
// tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/board-archiver/internal/archive"
	"github.com/JakeFAU/board-archiver/internal/storage"
)

// BlobStore stores blobs in a map keyed by object name.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	puts int
}

var _ archive.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// Exists reports whether key is stored in namespace.
func (s *BlobStore) Exists(_ context.Context, key, namespace string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[storage.ObjectName(namespace, key)]
	return ok, nil
}

// Put stores a copy of data.
func (s *BlobStore) Put(_ context.Context, key, namespace string, data []byte) error {
	if key == "" {
		return archive.ErrStorage.New("key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[storage.ObjectName(namespace, key)] = append([]byte(nil), data...)
	s.puts++
	return nil
}

// Get returns a copy of the stored blob.
func (s *BlobStore) Get(_ context.Context, key, namespace string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[storage.ObjectName(namespace, key)]
	if !ok {
		return nil, archive.ErrNotFound.New("blob %s/%s", namespace, key)
	}
	return append([]byte(nil), data...), nil
}

// Len returns the number of stored blobs.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Puts returns how many writes the store has accepted, including overwrites.
func (s *BlobStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}
