package storage

import (
	"context"

	"github.com/keyauthd/keyauthd/internal/domain"
)

// Store defines the interface for the key store. Implementations must be
// safe for concurrent use and must serialize UpdateKey per key so that the
// verify read-check-mutate-write cycle never loses an update.
type Store interface {
	// Close closes the storage connection.
	Close() error

	// CreateKey inserts a new record. Returns domain.ErrDuplicateKey if a
	// record with the same key value already exists.
	CreateKey(ctx context.Context, record *domain.KeyRecord) error

	// GetKey returns the record for a key value, or domain.ErrNotFound.
	GetKey(ctx context.Context, key string) (*domain.KeyRecord, error)

	// UpdateKey atomically applies mutate to the record for key and
	// persists the result. If mutate returns an error, nothing is written
	// and that error is returned unchanged. Returns domain.ErrNotFound if
	// the key is absent. The returned record is the post-mutation state.
	UpdateKey(ctx context.Context, key string, mutate func(*domain.KeyRecord) error) (*domain.KeyRecord, error)

	// DeleteKey permanently removes the record, or domain.ErrNotFound.
	DeleteKey(ctx context.Context, key string) error

	// ListKeys returns all records ordered by creation time, newest first.
	ListKeys(ctx context.Context) ([]*domain.KeyRecord, error)

	// CountKeys returns the number of stored records.
	CountKeys(ctx context.Context) (int, error)
}
