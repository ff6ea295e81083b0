// Package token reads claims out of backend-issued JWTs. The client never
// validates signatures (the backend does); it only needs exp and sub to
// evaluate the logged-in invariant and decide when to refresh eagerly.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed.
var ErrInvalidToken = errors.New("invalid token")

var parser = jwt.NewParser()

// ExpiryOf returns the exp claim of the token. Tokens without exp return the
// zero time and no error; malformed tokens return ErrInvalidToken.
func ExpiryOf(tokenString string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return time.Time{}, ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// SubjectOf returns the sub claim of the token, or ErrInvalidToken.
func SubjectOf(tokenString string) (string, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Expired reports whether the token's exp claim is at or before now.
// Malformed tokens and tokens without exp count as expired.
func Expired(tokenString string, now time.Time) bool {
	exp, err := ExpiryOf(tokenString)
	if err != nil || exp.IsZero() {
		return true
	}
	return !exp.After(now)
}
