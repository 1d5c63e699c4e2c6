// Package middleware provides HTTP middleware for authentication.
package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
)

// AccessTokenCookie carries the identity provider access token after the
// OAuth callback.
const AccessTokenCookie = "accessToken"

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// subjectKey is the context key for the authenticated subject.
const subjectKey ContextKey = "subject"

// RequireAuth redirects requests without an access token cookie to
// /login. Authenticated requests carry a stable subject (derived from the
// token, never the token itself) in the request context; the subject keys
// the report-context store.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(AccessTokenCookie)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey, Subject(cookie.Value))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Subject derives the store key from an access token.
func Subject(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:16])
}

// GetSubject extracts the authenticated subject from the request context.
func GetSubject(r *http.Request) (string, error) {
	subject, ok := r.Context().Value(subjectKey).(string)
	if !ok || subject == "" {
		return "", fmt.Errorf("subject not found in request context")
	}
	return subject, nil
}

// WithSubject returns a copy of the request carrying the given subject.
// Intended for handler tests.
func WithSubject(r *http.Request, subject string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), subjectKey, subject))
}
