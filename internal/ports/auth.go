package ports

// Package ports defines interfaces (hexagonal ports) for the gateway's collaborators.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"fmt"
	"net/http"
	"time"

	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
)

// Upstream names understood by the backend client.
const (
	UpstreamCore = "core"
	UpstreamAI   = "ai"
)

// TokenBackend is the auth surface of core-backend.
type TokenBackend interface {
	// Login exchanges username/password for a credential pair and the user profile.
	// A non-2xx response is reported as *StatusError.
	Login(ctx context.Context, username, password string) (domainauth.LoginResult, error)

	// Refresh exchanges a refresh token for a new pair. Rejection is reported as *StatusError.
	Refresh(ctx context.Context, refreshToken string) (domainauth.CredentialPair, error)

	// Logout invalidates the session server-side. Best effort.
	Logout(ctx context.Context, accessToken string) error
}

// UpstreamRequest is one outbound call the auth proxy issues.
type UpstreamRequest struct {
	Upstream string
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
	// BearerToken, when set, is sent as the Authorization credential.
	BearerToken string
}

// UpstreamResponse is a fully buffered upstream response.
type UpstreamResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// Upstream sends requests to core-backend or ai-orchestrator.
type Upstream interface {
	Do(ctx context.Context, req UpstreamRequest) (*UpstreamResponse, error)
}

// RefreshLock is a shared lock guarding refresh of one credential across gateway instances.
// Tokens identify the owner so a holder whose lease expired cannot release a newer lease.
type RefreshLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

// RefreshResultCache remembers the pair a refresh credential was rotated into for a short window.
type RefreshResultCache interface {
	Get(ctx context.Context, key string) (domainauth.CredentialPair, bool, error)
	Put(ctx context.Context, key string, pair domainauth.CredentialPair, ttl time.Duration) error
}

// StatusError reports a non-2xx answer from a backend auth endpoint.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend responded %d", e.Status)
}
