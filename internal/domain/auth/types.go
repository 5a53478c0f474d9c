// Package auth contains domain-level types for gateway sessions: credential pairs,
// scope selectors, and the per-request context threaded through the proxy.
// It is pure and free of framework/adapter concerns.
package auth

import (
	"encoding/json"
	"time"
)

// Default credential lifetimes used when the backend omits an expiry.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultScopeTTL   = 30 * 24 * time.Hour
)

// CredentialPair is the access/refresh token pair issued by core-backend.
// Expiries are expressed in seconds, as on the wire.
type CredentialPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	AccessExpiresIn  int64  `json:"access_expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

// Complete reports whether both tokens are present.
func (p CredentialPair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// AccessTTL returns the access token lifetime, falling back to DefaultAccessTTL.
func (p CredentialPair) AccessTTL() time.Duration {
	if p.AccessExpiresIn <= 0 {
		return DefaultAccessTTL
	}
	return time.Duration(p.AccessExpiresIn) * time.Second
}

// RefreshTTL returns the refresh token lifetime, falling back to DefaultRefreshTTL.
func (p CredentialPair) RefreshTTL() time.Duration {
	if p.RefreshExpiresIn <= 0 {
		return DefaultRefreshTTL
	}
	return time.Duration(p.RefreshExpiresIn) * time.Second
}

// LoginResult is what a successful backend login yields. User is relayed verbatim.
type LoginResult struct {
	Pair CredentialPair
	User json.RawMessage
}

// LoginLocked describes a rate-limited login attempt (backend 429).
type LoginLocked struct {
	Locked           bool  `json:"locked"`
	RemainingSeconds int64 `json:"remaining_seconds"`
}

// RequestContext carries the credentials and scope of one incoming request.
// It is built once by middleware and passed explicitly to the proxy and token store.
// Rotated and Cleared record auth work done while serving the request so the
// handler can flush it to cookies exactly once.
type RequestContext struct {
	AccessToken  string
	RefreshToken string
	Scope        Scope
	ClientIP     string
	RequestID    string

	// Rotated is set after a successful refresh.
	Rotated *CredentialPair
	// Cleared is set when a refresh failed and credentials must be deleted.
	Cleared bool
}

// HasCredentials reports whether any credential cookie is present.
func (rc *RequestContext) HasCredentials() bool {
	return rc != nil && (rc.AccessToken != "" || rc.RefreshToken != "")
}

// ApplyRotation records a rotated pair and switches the context to the new tokens.
func (rc *RequestContext) ApplyRotation(pair CredentialPair) {
	p := pair
	rc.AccessToken = pair.AccessToken
	rc.RefreshToken = pair.RefreshToken
	rc.Rotated = &p
	rc.Cleared = false
}

// MarkCleared drops both tokens and records that cookies must be deleted.
func (rc *RequestContext) MarkCleared() {
	rc.AccessToken = ""
	rc.RefreshToken = ""
	rc.Rotated = nil
	rc.Cleared = true
}
