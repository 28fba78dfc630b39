// Package validation provides input validation for key management requests.
package validation

import (
	"strings"

	"github.com/keyauthd/keyauthd/internal/domain"
)

// ValidateKeyName validates a key's human-readable label. Names must be
// non-empty after trimming surrounding whitespace.
func ValidateKeyName(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewValidationError("name", name, "name is required")
	}
	return nil
}

// ValidateKeyType validates a duration class against the enumerated set
// {day, week, month, lifetime}.
func ValidateKeyType(keyType domain.KeyType) error {
	if !keyType.Valid() {
		return NewValidationError("type", string(keyType),
			"type must be one of: day, week, month, lifetime")
	}
	return nil
}
