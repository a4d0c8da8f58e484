package auth

import "time"

// Method indicates how authentication was performed.
type Method string

const (
	MethodAPIKey    Method = "api_key"
	MethodJWT       Method = "jwt"
	MethodAnonymous Method = "anonymous"
)

// Identity is an authenticated caller.
type Identity struct {
	// Principal identifies the caller: the JWT subject, or "key:" plus a
	// short fingerprint of the API key.
	Principal string
	Method    Method
	Claims    map[string]any
	// ExpiresAt is zero when the credential does not expire.
	ExpiresAt time.Time
}

// IsExpired reports whether the identity's credential has expired at now.
func (id *Identity) IsExpired(now time.Time) bool {
	return !id.ExpiresAt.IsZero() && now.After(id.ExpiresAt)
}

// Anonymous is the identity used when authentication is disabled.
func Anonymous() *Identity {
	return &Identity{Principal: "anonymous", Method: MethodAnonymous}
}
