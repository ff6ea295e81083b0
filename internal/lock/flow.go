// Package lock gates access to the authenticated app after the process
// resumes from a long background stay or a termination-while-authenticated.
// The gate holds until a biometric or password re-authentication succeeds.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"billpoint/client/internal/session/domain"
	"billpoint/client/internal/store"
)

// Phase is the lock flow's presentation state.
type Phase int

const (
	// PhaseUnlocked means the gate is open (or was never engaged).
	PhaseUnlocked Phase = iota
	// PhaseLocked means the gate is engaged and no prompt has resolved it.
	PhaseLocked
	// PhaseBiometricPrompt means a biometric challenge is in progress.
	PhaseBiometricPrompt
	// PhasePasswordPrompt means the manual password fallback is showing.
	PhasePasswordPrompt
	// PhaseExited means the user abandoned the gate via Switch Account.
	PhaseExited
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseUnlocked:
		return "unlocked"
	case PhaseLocked:
		return "locked"
	case PhaseBiometricPrompt:
		return "biometric_prompt"
	case PhasePasswordPrompt:
		return "password_prompt"
	case PhaseExited:
		return "exited"
	default:
		return "invalid"
	}
}

// Authenticator is the device biometric capability. Available reports
// hardware presence AND enrolled credentials.
type Authenticator interface {
	Available(ctx context.Context) (bool, error)
	Authenticate(ctx context.Context) error
}

// SessionControl is the slice of the session manager the flow drives.
type SessionControl interface {
	Lock()
	Unlock()
	Logout(ctx context.Context) error
	Reauthenticate(ctx context.Context, id, password string) (*domain.Session, error)
}

// Flow is the re-authentication gate. It never times out on its own; it
// stays engaged until PhaseUnlocked or PhaseExited.
type Flow struct {
	mgr           SessionControl
	plain         store.Plain
	auth          Authenticator
	idleThreshold time.Duration
	log           *zap.Logger
	nowF          func() time.Time

	mu    sync.Mutex
	phase Phase
}

// NewFlow returns a Flow in PhaseUnlocked. auth may be nil (no biometric
// hardware at all).
func NewFlow(mgr SessionControl, plain store.Plain, auth Authenticator, idleThreshold time.Duration, log *zap.Logger) *Flow {
	if idleThreshold <= 0 {
		idleThreshold = 2 * time.Minute
	}
	return &Flow{
		mgr:           mgr,
		plain:         plain,
		auth:          auth,
		idleThreshold: idleThreshold,
		log:           log,
		nowF:          time.Now,
		phase:         PhaseUnlocked,
	}
}

// Phase returns the current phase.
func (f *Flow) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

// ShouldLock reports whether resuming now must engage the gate: a persisted
// session exists AND either the was-terminated flag is set or the idle
// marker exceeds the threshold.
func (f *Flow) ShouldLock(ctx context.Context) bool {
	if _, err := f.plain.Get(ctx, store.KeySession); err != nil {
		return false
	}
	if _, err := f.plain.Get(ctx, store.KeyWasTerminated); err == nil {
		return true
	}
	raw, err := f.plain.Get(ctx, store.KeyBackgroundEnteredAt)
	if err != nil {
		return false
	}
	enteredMilli, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return false
	}
	return f.nowF().UnixMilli()-enteredMilli > f.idleThreshold.Milliseconds()
}

// Enter engages the gate and, when the biometric preference is on and the
// device can serve it, runs the biometric challenge immediately. Hardware or
// enrollment absence presents the password fallback directly without ever
// attempting the challenge; a failed challenge leaves the gate in
// PhaseLocked with the fallback still available.
func (f *Flow) Enter(ctx context.Context) Phase {
	f.mu.Lock()
	f.phase = PhaseLocked
	f.mu.Unlock()
	f.mgr.Lock()

	if !f.biometricEnabled(ctx) {
		return f.setPhase(PhasePasswordPrompt)
	}
	available, err := f.auth.Available(ctx)
	if err != nil {
		f.log.Warn("biometric availability", zap.Error(err))
	}
	if err != nil || !available {
		return f.setPhase(PhasePasswordPrompt)
	}

	f.setPhase(PhaseBiometricPrompt)
	if err := f.auth.Authenticate(ctx); err != nil {
		f.log.Info("biometric challenge failed", zap.Error(err))
		return f.setPhase(PhaseLocked)
	}
	return f.unlock(ctx)
}

// RequestPasswordFallback moves an engaged gate to the password prompt.
func (f *Flow) RequestPasswordFallback() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phase == PhaseLocked || f.phase == PhaseBiometricPrompt {
		f.phase = PhasePasswordPrompt
	}
	return f.phase
}

// SubmitPassword runs the full re-authentication round-trip (fresh tokens)
// and opens the gate on success. Backend errors propagate; the gate stays
// engaged.
func (f *Flow) SubmitPassword(ctx context.Context, password string) (Phase, error) {
	f.mu.Lock()
	if f.phase == PhaseUnlocked || f.phase == PhaseExited {
		phase := f.phase
		f.mu.Unlock()
		return phase, nil
	}
	f.mu.Unlock()

	id, err := f.persistedIdentity(ctx)
	if err != nil {
		return f.Phase(), err
	}
	if _, err := f.mgr.Reauthenticate(ctx, id, password); err != nil {
		return f.Phase(), err
	}
	return f.unlock(ctx), nil
}

// SwitchAccount abandons the gate without restoring the previous session:
// full logout, then the logged-out surface takes over.
func (f *Flow) SwitchAccount(ctx context.Context) (Phase, error) {
	if err := f.mgr.Logout(ctx); err != nil {
		return f.Phase(), err
	}
	return f.setPhase(PhaseExited), nil
}

func (f *Flow) unlock(ctx context.Context) Phase {
	for _, key := range []string{store.KeyWasTerminated, store.KeyBackgroundEnteredAt} {
		if err := f.plain.Delete(ctx, key); err != nil {
			f.log.Warn("clear lock marker", zap.String("key", key), zap.Error(err))
		}
	}
	f.mgr.Unlock()
	return f.setPhase(PhaseUnlocked)
}

func (f *Flow) setPhase(p Phase) Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phase = p
	return p
}

// biometricEnabled reports the user preference; absent or unreadable counts
// as off. A nil Authenticator also counts as off.
func (f *Flow) biometricEnabled(ctx context.Context) bool {
	if f.auth == nil {
		return false
	}
	raw, err := f.plain.Get(ctx, store.KeyBiometricEnabled)
	if err != nil {
		return false
	}
	return string(raw) == "true"
}

// persistedIdentity returns the login id of the persisted session.
func (f *Flow) persistedIdentity(ctx context.Context) (string, error) {
	raw, err := f.plain.Get(ctx, store.KeySession)
	if err != nil {
		return "", errors.New("lock: no persisted session to re-authenticate")
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return "", fmt.Errorf("lock: decode persisted session: %w", err)
	}
	return sess.Email, nil
}
