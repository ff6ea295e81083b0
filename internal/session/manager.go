// Package session owns the authentication state machine: startup restore,
// login/onboarding/logout, idle tracking across app-state transitions, and
// the forced-logout path shared by 401 handling and the credential sweeper.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"billpoint/client/internal/lifecycle"
	"billpoint/client/internal/session/domain"
	"billpoint/client/internal/store"
	"billpoint/client/internal/token"
)

// State is the authentication state. Exactly one holds at a time; AppReady
// is a separate readiness flag, not a state.
type State int

const (
	// StateUnknown holds until the startup storage read settles.
	StateUnknown State = iota
	// StateLoggedOut means no usable session exists.
	StateLoggedOut
	// StateLoggingIn means a login round-trip is in flight.
	StateLoggingIn
	// StateLoggedIn means a structurally valid session is active.
	StateLoggedIn
	// StateLocked means a session exists but the lock flow gates access.
	StateLocked
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateLoggedOut:
		return "logged_out"
	case StateLoggingIn:
		return "logging_in"
	case StateLoggedIn:
		return "logged_in"
	case StateLocked:
		return "locked"
	default:
		return "invalid"
	}
}

// ErrLoginInFlight is returned when a login is attempted while another login
// round-trip is still pending.
var ErrLoginInFlight = errors.New("session: login already in flight")

// ErrNoRefreshToken is returned by Refresh when no refresh token is stored.
var ErrNoRefreshToken = errors.New("session: no refresh token stored")

// API is the slice of the HTTP client the manager needs.
type API interface {
	Post(ctx context.Context, path string, body, out any) error
	Get(ctx context.Context, path string) ([]byte, error)
}

// OnboardParams are the fields sent to POST /auth/onboarding.
type OnboardParams struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	CountryCode string `json:"countryCode"`
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber"`
	Referral    string `json:"referral,omitempty"`
}

// authResponse is the session payload the auth endpoints return.
type authResponse struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	FullName     string `json:"fullName"`
	PhoneNumber  string `json:"phoneNumber"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// Manager is the auth state machine. All state sits behind one mutex so
// transitions are atomic; every operation is safe for concurrent use.
type Manager struct {
	api           API
	plain         store.Plain
	secure        store.Secure
	hub           *lifecycle.Hub
	idleThreshold time.Duration
	log           *zap.Logger
	nowF          func() time.Time

	mu    sync.Mutex
	state State
	ready bool
	sess  *domain.Session
	subs  []*lifecycle.Subscription
}

// NewManager returns a Manager in StateUnknown. Call Start to restore the
// persisted session and begin idle tracking. hub may be nil (no idle
// tracking; tests drive transitions directly).
func NewManager(api API, plain store.Plain, secure store.Secure, hub *lifecycle.Hub, idleThreshold time.Duration, log *zap.Logger) *Manager {
	if idleThreshold <= 0 {
		idleThreshold = 2 * time.Minute
	}
	return &Manager{
		api:           api,
		plain:         plain,
		secure:        secure,
		hub:           hub,
		idleThreshold: idleThreshold,
		log:           log,
		nowF:          time.Now,
	}
}

// Start restores the persisted session and subscribes to app-state
// transitions. Ready() stays false until the storage read settles, success
// or failure; the UI gates its first render on it.
func (m *Manager) Start(ctx context.Context) {
	sess, err := m.loadPersisted(ctx)

	// A background marker surviving into a fresh start means the process died
	// while backgrounded. The lock flow treats that like a termination.
	if sess != nil {
		if _, markerErr := m.plain.Get(ctx, store.KeyBackgroundEnteredAt); markerErr == nil {
			if setErr := m.plain.Set(ctx, store.KeyWasTerminated, []byte("true")); setErr != nil {
				m.log.Warn("record unclean exit", zap.Error(setErr))
			}
		}
	}

	m.mu.Lock()
	if err != nil {
		m.log.Warn("restore session", zap.Error(err))
	}
	if sess != nil && sess.LoggedIn(m.nowF()) {
		m.sess = sess
		m.state = StateLoggedIn
	} else {
		m.state = StateLoggedOut
	}
	m.ready = true
	m.mu.Unlock()

	if m.hub != nil {
		m.subs = append(m.subs, m.hub.SubscribeAppState(m.onAppState))
	}
}

// Close releases the lifecycle subscriptions.
func (m *Manager) Close() {
	for _, s := range m.subs {
		s.Cancel()
	}
}

// Ready reports whether the startup storage read has settled.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// State returns the current authentication state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the current session, or nil when logged out.
func (m *Manager) Session() *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil
	}
	cp := *m.sess
	return &cp
}

// Login authenticates id/password against the backend, persists the
// returned session, and eagerly fetches extended user details. Backend
// errors propagate untouched after logging. A second login while one is in
// flight returns ErrLoginInFlight.
func (m *Manager) Login(ctx context.Context, id, password string) (*domain.Session, error) {
	m.mu.Lock()
	if m.state == StateLoggingIn {
		m.mu.Unlock()
		return nil, ErrLoginInFlight
	}
	prev := m.state
	m.state = StateLoggingIn
	m.mu.Unlock()

	var resp authResponse
	err := m.api.Post(ctx, "/auth/login", map[string]string{"id": id, "password": password}, &resp)
	if err != nil {
		m.mu.Lock()
		m.state = prev
		m.mu.Unlock()
		m.log.Warn("login failed", zap.Error(err))
		return nil, err
	}

	sess, err := m.adopt(ctx, resp)
	if err != nil {
		m.mu.Lock()
		m.state = prev
		m.mu.Unlock()
		m.log.Warn("persist session failed", zap.Error(err))
		return nil, err
	}

	// Eager detail fetch; failure here never fails the login.
	if raw, err := m.api.Get(ctx, "/user/me"); err != nil {
		m.log.Warn("fetch user details", zap.Error(err))
	} else if err := m.plain.Set(ctx, store.KeyUserDetails, raw); err != nil {
		m.log.Warn("cache user details", zap.Error(err))
	}

	return sess, nil
}

// Onboard creates an account and, on success, adopts the returned session
// exactly like a login. Backend errors propagate untouched.
func (m *Manager) Onboard(ctx context.Context, p OnboardParams) (*domain.Session, error) {
	var resp authResponse
	if err := m.api.Post(ctx, "/auth/onboarding", p, &resp); err != nil {
		m.log.Warn("onboarding failed", zap.Error(err))
		return nil, err
	}
	return m.adopt(ctx, resp)
}

// VerifyEmail submits the emailed verification code. No state transition.
func (m *Manager) VerifyEmail(ctx context.Context, code string) error {
	if err := m.api.Post(ctx, "/auth/verify-email", map[string]string{"code": code}, nil); err != nil {
		m.log.Warn("verify email failed", zap.Error(err))
		return err
	}
	return nil
}

// CreatePin sets the transaction PIN. Authenticated call, no state
// transition; backend errors propagate as-is.
func (m *Manager) CreatePin(ctx context.Context, pin string) error {
	if err := m.api.Post(ctx, "/auth/create-pin", map[string]string{"pin": pin}, nil); err != nil {
		m.log.Warn("create pin failed", zap.Error(err))
		return err
	}
	return nil
}

// Refresh exchanges the stored refresh token for a rotated token pair.
func (m *Manager) Refresh(ctx context.Context) error {
	refresh, err := m.secure.Get(ctx, store.KeyRefreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoRefreshToken
		}
		return err
	}

	var resp authResponse
	if err := m.api.Post(ctx, "/auth/refresh-token", map[string]string{"refreshToken": string(refresh)}, &resp); err != nil {
		m.log.Warn("token refresh failed", zap.Error(err))
		return err
	}

	if _, err := m.adopt(ctx, resp); err != nil {
		return err
	}
	return nil
}

// RefreshIfNeeded rotates the token pair only when the stored access token is
// missing or its exp claim has passed. A live token is left alone.
func (m *Manager) RefreshIfNeeded(ctx context.Context) error {
	access, err := m.secure.Get(ctx, store.KeyAccessToken)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err == nil && !token.Expired(string(access), m.nowF()) {
		return nil
	}
	return m.Refresh(ctx)
}

// Reauthenticate performs the full password round-trip used by the lock
// flow: fresh tokens, persisted session, StateLoggedIn.
func (m *Manager) Reauthenticate(ctx context.Context, id, password string) (*domain.Session, error) {
	var resp authResponse
	if err := m.api.Post(ctx, "/auth/reauthenticate", map[string]string{"id": id, "password": password}, &resp); err != nil {
		m.log.Warn("reauthenticate failed", zap.Error(err))
		return nil, err
	}
	return m.adopt(ctx, resp)
}

// Logout clears the in-memory session and every persisted session key.
// Safe to call repeatedly and concurrently; an already-logged-out manager
// only re-clears storage.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.sess = nil
	m.state = StateLoggedOut
	m.mu.Unlock()

	if err := ClearPersisted(ctx, m.plain, m.secure); err != nil {
		m.log.Warn("clear persisted session", zap.Error(err))
		return err
	}
	return nil
}

// HandleUnauthorized is the process-wide 401 hook: same effect as a forced
// logout. Concurrent 401s collapse into one transition; later calls find
// the manager already logged out and only re-clear storage.
func (m *Manager) HandleUnauthorized() {
	m.mu.Lock()
	already := m.state == StateLoggedOut
	m.mu.Unlock()
	if already {
		return
	}
	m.log.Info("unauthorized response, forcing logout")
	if err := m.Logout(context.Background()); err != nil {
		m.log.Warn("forced logout", zap.Error(err))
	}
}

// Lock moves a logged-in manager to StateLocked. The lock flow calls this
// when it gates the UI.
func (m *Manager) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateLoggedIn {
		m.state = StateLocked
	}
}

// Unlock restores StateLoggedIn after the lock flow succeeds.
func (m *Manager) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateLocked {
		m.state = StateLoggedIn
	}
}

// adopt persists the session from an auth response and makes it current.
// Fields the payload omits fall back to the access token's claims: exp for
// the expiry, sub for the user id.
func (m *Manager) adopt(ctx context.Context, resp authResponse) (*domain.Session, error) {
	expiresAt := resp.ExpiresAt
	if expiresAt == 0 {
		if exp, err := token.ExpiryOf(resp.AccessToken); err == nil && !exp.IsZero() {
			expiresAt = exp.Unix()
		}
	}
	userID := resp.UserID
	if userID == "" {
		if sub, err := token.SubjectOf(resp.AccessToken); err == nil {
			userID = sub
		}
	}
	sess := &domain.Session{
		UserID:        userID,
		Email:         resp.Email,
		FullName:      resp.FullName,
		PhoneNumber:   resp.PhoneNumber,
		AccessToken:   resp.AccessToken,
		RefreshToken:  resp.RefreshToken,
		ExpiresAt:     expiresAt,
		Authenticated: true,
	}
	if err := m.persist(ctx, sess); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sess = sess
	m.state = StateLoggedIn
	m.mu.Unlock()
	return sess, nil
}

// persist writes metadata to the plain store and tokens to the secure store.
func (m *Manager) persist(ctx context.Context, sess *domain.Session) error {
	md := sess.Metadata()
	raw, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := m.plain.Set(ctx, store.KeySession, raw); err != nil {
		return err
	}
	if err := m.secure.Set(ctx, store.KeyAccessToken, []byte(sess.AccessToken)); err != nil {
		return err
	}
	return m.secure.Set(ctx, store.KeyRefreshToken, []byte(sess.RefreshToken))
}

// loadPersisted reassembles the session from the plain metadata blob and the
// secure token pair. Returns nil, nil when nothing is stored.
func (m *Manager) loadPersisted(ctx context.Context) (*domain.Session, error) {
	raw, err := m.plain.Get(ctx, store.KeySession)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	if access, err := m.secure.Get(ctx, store.KeyAccessToken); err == nil {
		sess.AccessToken = string(access)
	}
	if refresh, err := m.secure.Get(ctx, store.KeyRefreshToken); err == nil {
		sess.RefreshToken = string(refresh)
	}
	return &sess, nil
}

// onAppState records the background-entry timestamp when leaving the
// foreground and enforces the idle threshold when returning to it.
func (m *Manager) onAppState(prev, next lifecycle.AppState) {
	ctx := context.Background()
	switch {
	case prev.Foreground() && !next.Foreground():
		ms := strconv.FormatInt(m.nowF().UnixMilli(), 10)
		if err := m.plain.Set(ctx, store.KeyBackgroundEnteredAt, []byte(ms)); err != nil {
			m.log.Warn("record background entry", zap.Error(err))
		}
	case !prev.Foreground() && next == lifecycle.StateActive:
		m.onResume(ctx)
	}
}

// onResume applies the idle policy: strictly more than the threshold in the
// background forces logout, which clears the marker. Under the threshold the
// marker is left in place for the lock flow. A resume with no persisted
// session at all also forces logout (the session was invalidated externally
// while backgrounded).
func (m *Manager) onResume(ctx context.Context) {
	if _, err := m.plain.Get(ctx, store.KeySession); errors.Is(err, store.ErrNotFound) {
		m.mu.Lock()
		loggedIn := m.state == StateLoggedIn || m.state == StateLocked
		m.mu.Unlock()
		if loggedIn {
			m.log.Info("persisted session gone, forcing logout")
			_ = m.Logout(ctx)
		}
		return
	}

	raw, err := m.plain.Get(ctx, store.KeyBackgroundEnteredAt)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		m.log.Warn("read background entry", zap.Error(err))
		return
	}
	enteredMilli, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		m.log.Warn("parse background entry", zap.String("value", string(raw)))
		_ = m.plain.Delete(ctx, store.KeyBackgroundEnteredAt)
		return
	}

	elapsed := m.nowF().UnixMilli() - enteredMilli
	if elapsed > m.idleThreshold.Milliseconds() {
		m.log.Info("idle threshold exceeded, forcing logout", zap.Int64("elapsed_ms", elapsed))
		// Logout clears the marker with the rest of the persisted keys.
		_ = m.Logout(ctx)
		return
	}
	// Under the threshold the marker stays: the lock flow reads it and clears
	// it on unlock, and the next backgrounding overwrites it.
}

// ClearPersisted removes every persisted session key from both stores. The
// sweeper and Logout share it.
func ClearPersisted(ctx context.Context, plain store.Plain, secure store.Secure) error {
	var firstErr error
	for _, key := range []string{store.KeySession, store.KeyUserDetails, store.KeyBackgroundEnteredAt, store.KeyWasTerminated} {
		if err := plain.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, key := range []string{store.KeyAccessToken, store.KeyRefreshToken} {
		if err := secure.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
