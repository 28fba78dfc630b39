package domain

import (
	"time"
)

// PolicyMode selects how key expiry is computed, fixed at configuration time.
type PolicyMode string

const (
	// PolicyFixed computes expiry at creation: createdAt + expiresInDays.
	PolicyFixed PolicyMode = "fixed"
	// PolicyDevice defers expiry to first verification, which also binds
	// the key to the presenting device.
	PolicyDevice PolicyMode = "device"
)

// Valid reports whether the mode is one of the known policy modes.
func (m PolicyMode) Valid() bool {
	return m == PolicyFixed || m == PolicyDevice
}

// KeyType is a named duration class for device-mode keys.
type KeyType string

const (
	KeyTypeDay      KeyType = "day"
	KeyTypeWeek     KeyType = "week"
	KeyTypeMonth    KeyType = "month"
	KeyTypeLifetime KeyType = "lifetime"
)

// Duration returns the expiry offset from activation for the class.
// Lifetime returns 0, meaning no expiry. Month is fixed at 30 days.
func (t KeyType) Duration() time.Duration {
	switch t {
	case KeyTypeDay:
		return 24 * time.Hour
	case KeyTypeWeek:
		return 7 * 24 * time.Hour
	case KeyTypeMonth:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether the key type is one of the enumerated classes.
func (t KeyType) Valid() bool {
	switch t {
	case KeyTypeDay, KeyTypeWeek, KeyTypeMonth, KeyTypeLifetime:
		return true
	}
	return false
}

// KeyStatus is the derived lifecycle state of a device-mode key.
type KeyStatus string

const (
	StatusUnused  KeyStatus = "unused"
	StatusActive  KeyStatus = "active"
	StatusExpired KeyStatus = "expired"
	StatusRevoked KeyStatus = "revoked"
)

// KeyRecord is one issued key. The Key field is the bearer credential and
// is only ever returned to the admin caller at creation time.
type KeyRecord struct {
	ID          string     `json:"id" db:"id"`
	Key         string     `json:"-" db:"key"`
	Name        string     `json:"name" db:"name"`
	Active      bool       `json:"active" db:"active"`
	Type        KeyType    `json:"type,omitempty" db:"key_type"`
	Uses        int64      `json:"uses" db:"uses"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	LastUsedAt  *time.Time `json:"lastUsedAt" db:"last_used_at"`
	ActivatedAt *time.Time `json:"activatedAt,omitempty" db:"activated_at"`
	ExpiresAt   *time.Time `json:"expiresAt" db:"expires_at"`
	DeviceID    *string    `json:"-" db:"device_id"`
	DeviceName  *string    `json:"deviceName,omitempty" db:"device_name"`
}

// Expired reports whether the key has an expiry date in the past.
// Keys with no expiry date never expire.
func (k *KeyRecord) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// Status derives the lifecycle state with strict precedence:
// revoked beats expired beats active beats unused.
func (k *KeyRecord) Status(now time.Time) KeyStatus {
	switch {
	case !k.Active:
		return StatusRevoked
	case k.Expired(now):
		return StatusExpired
	case k.ActivatedAt != nil:
		return StatusActive
	default:
		return StatusUnused
	}
}

// Clone returns a deep copy of the record. Stores hand out and accept
// clones so callers can never mutate stored state in place.
func (k *KeyRecord) Clone() *KeyRecord {
	c := *k
	c.LastUsedAt = cloneTime(k.LastUsedAt)
	c.ActivatedAt = cloneTime(k.ActivatedAt)
	c.ExpiresAt = cloneTime(k.ExpiresAt)
	c.DeviceID = cloneString(k.DeviceID)
	c.DeviceName = cloneString(k.DeviceName)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// KeyView decorates a stored record for admin listings. The full key value
// is included: listing is an admin-only surface and the original service
// exposed it there.
type KeyView struct {
	Key     string    `json:"key"`
	Expired bool      `json:"expired"`
	Status  KeyStatus `json:"status,omitempty"` // device mode only
	*KeyRecord
}

// CreateKeyRequest is the request body for minting a key.
// ExpiresInDays applies in fixed mode, Type in device mode.
type CreateKeyRequest struct {
	Name          string  `json:"name"`
	ExpiresInDays int     `json:"expiresInDays,omitempty"`
	Type          KeyType `json:"type,omitempty"`
}

// CreateKeyResponse is returned on creation, the only time the plaintext
// key is ever returned.
type CreateKeyResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Key       string     `json:"key"`
	Name      string     `json:"name"`
	Type      KeyType    `json:"type,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// KeyRequest is the request body for operations addressing a key by value
// (revoke, delete).
type KeyRequest struct {
	Key string `json:"key"`
}

// ListKeysResponse is the admin listing envelope.
type ListKeysResponse struct {
	Success bool       `json:"success"`
	Total   int        `json:"total"`
	Keys    []*KeyView `json:"keys"`
}

// VerifyRequest is the public verification request. DeviceID and DeviceName
// are only consulted in device mode.
type VerifyRequest struct {
	Key        string `json:"key"`
	DeviceID   string `json:"deviceId,omitempty"`
	DeviceName string `json:"deviceName,omitempty"`
}

// VerifyUser is the client-visible view of a successfully verified key.
// It never carries the device identifier or other internal fields.
type VerifyUser struct {
	Name       string     `json:"name"`
	Uses       int64      `json:"uses"`
	ExpiresAt  *time.Time `json:"expiresAt"`
	Type       KeyType    `json:"type,omitempty"`
	DeviceName string     `json:"deviceName,omitempty"`
}

// VerifyResponse is the public verification envelope.
type VerifyResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	User    *VerifyUser `json:"user,omitempty"`
}

// StatusResponse is the health endpoint payload.
type StatusResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	TotalKeys int    `json:"totalKeys"`
}
