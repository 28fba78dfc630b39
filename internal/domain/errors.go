package domain

import (
	"errors"
	"fmt"
)

// Common errors used throughout the application.
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("key already exists")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
)

// RejectReason classifies why a verification was refused. Each reason maps
// to its own client-visible message and HTTP status; reasons are never
// merged.
type RejectReason string

const (
	RejectMissingKey      RejectReason = "missing_key"
	RejectMissingDeviceID RejectReason = "missing_device_id"
	RejectInvalidKey      RejectReason = "invalid_key"
	RejectRevoked         RejectReason = "revoked"
	RejectExpired         RejectReason = "expired"
	RejectDeviceMismatch  RejectReason = "device_mismatch"
)

// VerifyError is a verification rejection. BoundDeviceName is set only for
// RejectDeviceMismatch so the client can tell the user which device holds
// the key, without ever seeing the device identifier.
type VerifyError struct {
	Reason          RejectReason
	BoundDeviceName string
}

// Error implements the error interface.
func (e *VerifyError) Error() string {
	return fmt.Sprintf("verification rejected: %s", e.Reason)
}

// Reject returns a VerifyError for the given reason.
func Reject(reason RejectReason) *VerifyError {
	return &VerifyError{Reason: reason}
}

// APIError is a minimal JSON error payload for non-enveloped failures.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}
