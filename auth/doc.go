// Package auth authenticates callers of the ragcache HTTP API.
//
// Two authenticators are provided: static API keys sent in X-API-Key, and
// HS256 JWTs sent as "Authorization: Bearer <token>". A Chain tries each
// authenticator that recognises the request's credentials. Middleware
// attaches the resulting Identity to the request context or answers 401.
package auth
