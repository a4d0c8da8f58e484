package auth

import (
	"context"
	"net/http"
)

// Authenticator validates the credentials on a request.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: credential problems are reported with the sentinel errors of
//     this package; anything else is an internal failure.
type Authenticator interface {
	Name() string
	// Supports reports whether the request carries credentials of this kind.
	Supports(r *http.Request) bool
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)
}

// Chain tries authenticators in order and returns the first success.
type Chain []Authenticator

// Name returns "chain".
func (c Chain) Name() string { return "chain" }

// Supports reports whether any member supports r.
func (c Chain) Supports(r *http.Request) bool {
	for _, a := range c {
		if a.Supports(r) {
			return true
		}
	}
	return false
}

// Authenticate returns the first successful identity. With no supporting
// member it fails with ErrMissingCredentials; otherwise with the last error.
func (c Chain) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	if len(c) == 0 {
		return nil, ErrNoAuthenticators
	}
	err := ErrMissingCredentials
	for _, a := range c {
		if !a.Supports(r) {
			continue
		}
		id, aerr := a.Authenticate(ctx, r)
		if aerr == nil {
			return id, nil
		}
		err = aerr
	}
	return nil, err
}

// Config selects the authenticators built by New.
type Config struct {
	APIKeys   []string
	JWTSecret string
	JWTIssuer string
}

// New returns a Chain for cfg, or nil when cfg enables nothing.
func New(cfg Config) Authenticator {
	var chain Chain
	if len(cfg.APIKeys) > 0 {
		chain = append(chain, NewAPIKeyAuthenticator(cfg.APIKeys...))
	}
	if cfg.JWTSecret != "" {
		chain = append(chain, NewJWTAuthenticator(JWTConfig{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer}))
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}
