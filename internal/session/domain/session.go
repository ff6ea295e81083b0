// Package domain holds the session model for the authenticated principal.
package domain

import "time"

// Session is the authenticated principal: identity fields plus the token
// pair the backend issued for it.
type Session struct {
	UserID        string `json:"userId"`
	Email         string `json:"email"`
	FullName      string `json:"fullName"`
	PhoneNumber   string `json:"phoneNumber"`
	AccessToken   string `json:"accessToken,omitempty"`
	RefreshToken  string `json:"refreshToken,omitempty"`
	ExpiresAt     int64  `json:"expiresAt"` // unix seconds
	Authenticated bool   `json:"authenticated"`
}

// LoggedIn reports whether the session counts as logged in: authenticated,
// both tokens present, and the expiry still in the future.
func (s *Session) LoggedIn(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.Authenticated &&
		s.AccessToken != "" &&
		s.RefreshToken != "" &&
		s.ExpiresAt > now.Unix()
}

// Metadata returns a copy with the token pair stripped, for the plain store.
// Tokens only ever live in the secure store.
func (s *Session) Metadata() Session {
	cp := *s
	cp.AccessToken = ""
	cp.RefreshToken = ""
	return cp
}
