// Package store provides the persisted key-value stores backing the client:
// a plain store for session metadata and preference flags, and a secure store
// for tokens. Both are device-local files; writes are last-write-wins.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("store: key not found")

// Plain store keys.
const (
	KeySession             = "session"
	KeyUserDetails         = "user_details"
	KeyBackgroundEnteredAt = "background_entered_at"
	KeyWasTerminated       = "was_terminated"
	KeyLockEnabled         = "lock_enabled"
	KeyBiometricEnabled    = "biometric_enabled"
	KeyNotificationsPref   = "notifications_enabled"
	KeyInstallationID      = "installation_id"
)

// Secure store keys.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

// Plain is the unencrypted key-value store for session metadata and flags.
type Plain interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Secure is the encrypted key-value store for tokens. Same contract as Plain.
type Secure interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// InstallationID returns the stable per-install identifier, generating and
// persisting one on first use. It deliberately survives logout; the sweeper
// and ClearPersisted never touch it.
func InstallationID(ctx context.Context, p Plain) (string, error) {
	if raw, err := p.Get(ctx, KeyInstallationID); err == nil && len(raw) > 0 {
		return string(raw), nil
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	id := uuid.New().String()
	if err := p.Set(ctx, KeyInstallationID, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}
