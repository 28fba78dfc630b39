// Package license implements the key lifecycle engine: creation, status
// derivation, revocation, and the verify state transition. All persistence
// goes through the storage.Store interface; verification runs its entire
// read-check-mutate-write cycle inside a single atomic UpdateKey call.
package license

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/keyauthd/keyauthd/internal/domain"
	"github.com/keyauthd/keyauthd/internal/storage"
	"github.com/keyauthd/keyauthd/internal/validation"
)

// unknownDevice is the display name recorded when a client activates a key
// without supplying a device name.
const unknownDevice = "Unknown Device"

// maxGenerateAttempts bounds retries on the (astronomically unlikely)
// random key collision before giving up.
const maxGenerateAttempts = 4

// Service is the lifecycle engine. Mode is fixed at configuration time and
// selects between fixed-date expiry and device-binding with deferred
// duration expiry.
type Service struct {
	store storage.Store
	mode  domain.PolicyMode
	now   func() time.Time
}

// New creates a lifecycle engine over the given store.
func New(store storage.Store, mode domain.PolicyMode) *Service {
	return &Service{
		store: store,
		mode:  mode,
		now:   time.Now,
	}
}

// WithClock overrides the engine's time source. Used by tests to simulate
// expiry boundaries.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Mode returns the configured policy mode.
func (s *Service) Mode() domain.PolicyMode {
	return s.mode
}

// generateKey returns a new random key value: "sk-" followed by 48 hex
// characters (24 random bytes).
func generateKey() (string, error) {
	bytes := make([]byte, 24)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return "sk-" + hex.EncodeToString(bytes), nil
}

// Create mints a new key. In fixed mode a positive expiresInDays sets the
// expiry date immediately; zero or negative means no expiry. In device mode
// keyType must be one of the enumerated duration classes and expiry is
// deferred to activation. The returned record carries the plaintext key,
// the only time it is ever returned.
func (s *Service) Create(ctx context.Context, name string, expiresInDays int, keyType domain.KeyType) (*domain.KeyRecord, error) {
	if err := validation.ValidateKeyName(name); err != nil {
		return nil, err
	}
	if s.mode == domain.PolicyDevice {
		if err := validation.ValidateKeyType(keyType); err != nil {
			return nil, err
		}
	}

	now := s.now()
	record := &domain.KeyRecord{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(name),
		Active:    true,
		Uses:      0,
		CreatedAt: now,
	}

	switch s.mode {
	case domain.PolicyDevice:
		record.Type = keyType
	default:
		if expiresInDays > 0 {
			expiresAt := now.Add(time.Duration(expiresInDays) * 24 * time.Hour)
			record.ExpiresAt = &expiresAt
		}
	}

	// Regenerate on the negligible-probability collision; a store that
	// still reports duplicates after that is broken.
	backoff := retry.WithMaxRetries(maxGenerateAttempts, retry.NewConstant(time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		key, err := generateKey()
		if err != nil {
			return err
		}
		record.Key = key
		if err := s.store.CreateKey(ctx, record); err != nil {
			if errors.Is(err, domain.ErrDuplicateKey) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: key generation kept colliding", domain.ErrInternal)
		}
		return nil, err
	}

	return record, nil
}

// Revoke permanently deactivates a key. Idempotent: revoking an already
// revoked key succeeds. Returns domain.ErrNotFound if the key is absent.
func (s *Service) Revoke(ctx context.Context, key string) error {
	_, err := s.store.UpdateKey(ctx, key, func(record *domain.KeyRecord) error {
		record.Active = false
		return nil
	})
	return err
}

// Delete permanently removes a key. Irreversible. Returns
// domain.ErrNotFound if the key is absent.
func (s *Service) Delete(ctx context.Context, key string) error {
	return s.store.DeleteKey(ctx, key)
}

// List returns all keys newest first, each decorated with the derived
// expired flag and, in device mode, the lifecycle status.
func (s *Service) List(ctx context.Context) ([]*domain.KeyView, error) {
	records, err := s.store.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]*domain.KeyView, 0, len(records))
	for _, record := range records {
		view := &domain.KeyView{
			Key:       record.Key,
			Expired:   record.Expired(now),
			KeyRecord: record,
		}
		if s.mode == domain.PolicyDevice {
			view.Status = record.Status(now)
		}
		views = append(views, view)
	}
	return views, nil
}

// Count returns the number of issued keys.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.CountKeys(ctx)
}

// Verify runs the key state machine. Rejection order is fixed: missing
// input before lookup, revoked before device and expiry checks, device
// mismatch before expired. On first use in device mode the key is
// atomically bound to the presenting device and its expiry clock starts.
// Successful verification increments the use counter.
func (s *Service) Verify(ctx context.Context, key, deviceID, deviceName string) (*domain.VerifyUser, error) {
	if key == "" {
		return nil, domain.Reject(domain.RejectMissingKey)
	}
	if s.mode == domain.PolicyDevice && deviceID == "" {
		return nil, domain.Reject(domain.RejectMissingDeviceID)
	}

	now := s.now()
	record, err := s.store.UpdateKey(ctx, key, func(record *domain.KeyRecord) error {
		if !record.Active {
			return domain.Reject(domain.RejectRevoked)
		}

		if s.mode == domain.PolicyDevice {
			if record.ActivatedAt != nil {
				// Already bound: the wrong device is reported before
				// expiry, so a key that is both reports the mismatch.
				if record.DeviceID == nil || *record.DeviceID != deviceID {
					verr := domain.Reject(domain.RejectDeviceMismatch)
					if record.DeviceName != nil {
						verr.BoundDeviceName = *record.DeviceName
					}
					return verr
				}
				if record.Expired(now) {
					return domain.Reject(domain.RejectExpired)
				}
			} else {
				// Activation: bind the device and start the expiry clock.
				record.ActivatedAt = &now
				record.DeviceID = &deviceID
				name := strings.TrimSpace(deviceName)
				if name == "" {
					name = unknownDevice
				}
				record.DeviceName = &name
				if d := record.Type.Duration(); d > 0 {
					expiresAt := now.Add(d)
					record.ExpiresAt = &expiresAt
				}
			}
		} else if record.Expired(now) {
			return domain.Reject(domain.RejectExpired)
		}

		record.Uses++
		record.LastUsedAt = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Reject(domain.RejectInvalidKey)
		}
		return nil, err
	}

	user := &domain.VerifyUser{
		Name:      record.Name,
		Uses:      record.Uses,
		ExpiresAt: record.ExpiresAt,
	}
	if s.mode == domain.PolicyDevice {
		user.Type = record.Type
		if record.DeviceName != nil {
			user.DeviceName = *record.DeviceName
		}
	}
	return user, nil
}
