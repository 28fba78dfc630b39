package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/keyauthd/keyauthd/internal/domain"
)

// Store is an in-memory implementation of the storage interface. All state
// is lost on process exit; it exists for tests and explicitly ephemeral
// deployments.
type Store struct {
	mu   sync.RWMutex
	keys map[string]*domain.KeyRecord // key value -> record
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		keys: make(map[string]*domain.KeyRecord),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateKey(ctx context.Context, record *domain.KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[record.Key]; exists {
		return domain.ErrDuplicateKey
	}
	s.keys[record.Key] = record.Clone()
	return nil
}

func (s *Store) GetKey(ctx context.Context, key string) (*domain.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, exists := s.keys[key]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return record.Clone(), nil
}

// UpdateKey runs mutate on a copy of the record while holding the write
// lock, so concurrent updates to the same key are fully serialized. The
// copy is only committed when mutate returns nil.
func (s *Store) UpdateKey(ctx context.Context, key string, mutate func(*domain.KeyRecord) error) (*domain.KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, exists := s.keys[key]
	if !exists {
		return nil, domain.ErrNotFound
	}
	updated := record.Clone()
	if err := mutate(updated); err != nil {
		return nil, err
	}
	s.keys[key] = updated
	return updated.Clone(), nil
}

func (s *Store) DeleteKey(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[key]; !exists {
		return domain.ErrNotFound
	}
	delete(s.keys, key)
	return nil
}

func (s *Store) ListKeys(ctx context.Context) ([]*domain.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]*domain.KeyRecord, 0, len(s.keys))
	for _, record := range s.keys {
		records = append(records, record.Clone())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (s *Store) CountKeys(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys), nil
}
