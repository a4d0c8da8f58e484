package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// APIKeyHeader carries API keys.
const APIKeyHeader = "X-API-Key"

// APIKeyAuthenticator accepts a fixed set of keys. Only SHA-256 digests
// are kept in memory.
type APIKeyAuthenticator struct {
	digests [][sha256.Size]byte
}

// NewAPIKeyAuthenticator creates an authenticator for keys. Blank keys are ignored.
func NewAPIKeyAuthenticator(keys ...string) *APIKeyAuthenticator {
	a := &APIKeyAuthenticator{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			a.digests = append(a.digests, sha256.Sum256([]byte(k)))
		}
	}
	return a
}

// Name returns "api_key".
func (a *APIKeyAuthenticator) Name() string { return string(MethodAPIKey) }

// Supports reports whether r has an X-API-Key header.
func (a *APIKeyAuthenticator) Supports(r *http.Request) bool {
	return r.Header.Get(APIKeyHeader) != ""
}

// Authenticate compares the presented key against every configured key in
// constant time.
func (a *APIKeyAuthenticator) Authenticate(_ context.Context, r *http.Request) (*Identity, error) {
	key := strings.TrimSpace(r.Header.Get(APIKeyHeader))
	if key == "" {
		return nil, ErrMissingCredentials
	}
	got := sha256.Sum256([]byte(key))
	match := 0
	for _, d := range a.digests {
		match |= subtle.ConstantTimeCompare(got[:], d[:])
	}
	if match != 1 {
		return nil, ErrInvalidCredentials
	}
	return &Identity{
		Principal: "key:" + hex.EncodeToString(got[:4]),
		Method:    MethodAPIKey,
	}, nil
}

var _ Authenticator = (*APIKeyAuthenticator)(nil)
