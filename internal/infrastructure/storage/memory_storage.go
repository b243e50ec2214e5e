package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
)

var _ catalogapp.MediaStorage = (*MemoryMediaStorage)(nil)

// MemoryMediaStorage keeps media in process, for tests and local runs
type MemoryMediaStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryMediaStorage creates an empty store
func NewMemoryMediaStorage() *MemoryMediaStorage {
	return &MemoryMediaStorage{objects: make(map[string][]byte)}
}

// Upload stores data under key
func (s *MemoryMediaStorage) Upload(_ context.Context, key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

// Promote implements catalogapp.MediaStorage
func (s *MemoryMediaStorage) Promote(_ context.Context, productID int64, key string) (string, error) {
	if !catalogapp.IsTmpMedia(key) {
		return key, nil
	}
	dst := PromotedKey(productID, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		if _, done := s.objects[dst]; done {
			return dst, nil
		}
		return "", fmt.Errorf("uploaded media %s does not exist", key)
	}
	s.objects[dst] = data
	delete(s.objects, key)
	return dst, nil
}

// Delete implements catalogapp.MediaStorage
func (s *MemoryMediaStorage) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.objects, k)
	}
	return nil
}

// Keys lists stored keys in order
func (s *MemoryMediaStorage) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
