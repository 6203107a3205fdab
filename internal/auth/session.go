// Package auth inspects the account session token. The daemon never
// verifies token signatures (that is the server's job); it only needs
// to know whether a token is present and unexpired to pick the storage
// mode, and which account it belongs to.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	lifeoserrors "github.com/alexjbarnes/lifeos/internal/errors"
)

// Session describes the current authentication state.
type Session struct {
	Token     string
	Subject   string
	ExpiresAt time.Time
}

// ParseSession decodes a session token without signature verification
// and extracts the subject and expiry claims. A token with no expiry
// claim is treated as non-expiring.
func ParseSession(token string) (*Session, error) {
	if token == "" {
		return nil, lifeoserrors.ErrInvalidToken
	}

	parser := jwt.NewParser()

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parsing session token: %w", err)
	}

	s := &Session{Token: token}

	if sub, err := claims.GetSubject(); err == nil {
		s.Subject = sub
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}

	return s, nil
}

// Valid reports whether the session can be used for cloud operations
// at the given instant.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.Token == "" {
		return false
	}

	if s.ExpiresAt.IsZero() {
		return true
	}

	return now.Before(s.ExpiresAt)
}
