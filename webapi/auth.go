package webapi

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashCost is the bcrypt cost for API token hashes.
const HashCost = 12

// ErrEmptyToken is returned when hashing an empty token.
var ErrEmptyToken = errors.New("webapi: token cannot be empty")

// HashToken hashes an API token for storage in configuration. Only the
// hash is ever configured; the plaintext token stays with the caller.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), HashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// bearerToken extracts the token from an Authorization header.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// requireAuth wraps a handler with bearer-token authentication against the
// configured bcrypt hash. An empty hash disables auth; that is the dev-mode
// escape hatch and startup validation warns about it.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.TokenHash == "" {
			next(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(s.config.TokenHash), []byte(token)); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r)
	}
}
