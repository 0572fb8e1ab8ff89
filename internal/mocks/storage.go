package mocks

import (
	"context"
	"sync"

	"github.com/content-sync-engine/internal/storage"
)

// MemoryBlobStore is an in-memory storage.BlobStore
type MemoryBlobStore struct {
	mu       sync.Mutex
	Blobs    map[string][]byte
	PutError error
	GetError error
	PutCalls int
	Deleted  []string
}

// Verify interface compliance
var _ storage.BlobStore = (*MemoryBlobStore)(nil)

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{Blobs: make(map[string][]byte)}
}

func (m *MemoryBlobStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetError != nil {
		return nil, false, m.GetError
	}
	data, ok := m.Blobs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (m *MemoryBlobStore) Put(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls++
	if m.PutError != nil {
		return m.PutError
	}
	m.Blobs[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBlobStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, key)
	delete(m.Blobs, key)
	return nil
}

func (m *MemoryBlobStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryBlobStore) Close() error {
	return nil
}

// Has reports whether key holds a blob
func (m *MemoryBlobStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Blobs[key]
	return ok
}

// Puts returns the number of Put calls so far
func (m *MemoryBlobStore) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PutCalls
}
