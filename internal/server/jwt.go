// Package server provides the HTTP API for the audit report generator.
package server

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// loginStateTTL bounds how long a login attempt may stay open.
const loginStateTTL = 15 * time.Minute

// LoginClaims carries the PKCE verifier and CSRF state through the login
// round trip inside a signed cookie, so the server stays stateless across
// the redirect to the identity provider.
type LoginClaims struct {
	Verifier string `json:"verifier"`
	State    string `json:"state"`
	jwt.RegisteredClaims
}

// StateSigner signs and validates login-state cookies.
type StateSigner struct {
	secret []byte
}

// NewStateSigner creates a StateSigner over the given secret.
func NewStateSigner(secret string) *StateSigner {
	return &StateSigner{secret: []byte(secret)}
}

// Sign produces a signed, time-limited token for one login attempt.
func (s *StateSigner) Sign(verifier, state string) (string, error) {
	now := time.Now()
	claims := &LoginClaims{
		Verifier: verifier,
		State:    state,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(loginStateTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign login state: %w", err)
	}
	return signed, nil
}

// Validate parses a login-state token and returns its claims.
func (s *StateSigner) Validate(tokenString string) (*LoginClaims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("login state token is empty")
	}

	claims := &LoginClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse login state: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("login state token is not valid")
	}
	return claims, nil
}
