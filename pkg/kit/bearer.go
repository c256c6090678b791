package kit

import (
	"errors"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

var (
	ErrMissingAuthorization   = errors.New("authorization header is missing")
	ErrMalformedAuthorization = errors.New("invalid authorization header format")
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
// It checks presence and shape only.
func BearerToken(r *http.Request) (string, error) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return "", ErrMissingAuthorization
	}
	if !strings.HasPrefix(authz, bearerPrefix) {
		return "", ErrMalformedAuthorization
	}

	tok := strings.TrimSpace(strings.TrimPrefix(authz, bearerPrefix))
	if tok == "" {
		return "", ErrMalformedAuthorization
	}
	return tok, nil
}
