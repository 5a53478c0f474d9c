// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit and concurrency tests without codegen.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.TokenBackend = (*RotatingBackend)(nil)
	_ ports.Upstream     = (*ScriptedUpstream)(nil)
)

// RotatingBackend issues single-use refresh tokens the way core-backend does: a refresh
// token is valid exactly once and presenting it again fails.
type RotatingBackend struct {
	// Delay is applied to every Refresh before answering.
	Delay time.Duration
	// Gate, when non-nil, blocks every Refresh until it is closed or ctx ends.
	Gate chan struct{}
	// RefreshFunc overrides the default behavior entirely.
	RefreshFunc func(ctx context.Context, refreshToken string) (domainauth.CredentialPair, error)
	// PanicOnRefresh makes Refresh panic (release-on-panic tests).
	PanicOnRefresh bool

	RefreshCalls atomic.Int64
	LoginCalls   atomic.Int64
	LogoutCalls  atomic.Int64

	mu    sync.Mutex
	seq   int
	valid map[string]bool
}

// NewRotatingBackend creates a backend that accepts the given refresh tokens.
func NewRotatingBackend(validRefresh ...string) *RotatingBackend {
	b := &RotatingBackend{valid: make(map[string]bool)}
	for _, rt := range validRefresh {
		b.valid[rt] = true
	}
	return b
}

func (b *RotatingBackend) Login(_ context.Context, username, password string) (domainauth.LoginResult, error) {
	b.LoginCalls.Add(1)
	if username == "" || password != "secret" {
		return domainauth.LoginResult{}, &ports.StatusError{Status: 401, Body: []byte(`{"detail":"invalid credentials"}`)}
	}
	pair := b.issue()
	user, _ := json.Marshal(map[string]string{"username": username})
	return domainauth.LoginResult{Pair: pair, User: user}, nil
}

func (b *RotatingBackend) Refresh(ctx context.Context, refreshToken string) (domainauth.CredentialPair, error) {
	b.RefreshCalls.Add(1)
	if b.PanicOnRefresh {
		panic("refresh exploded")
	}
	if b.Gate != nil {
		select {
		case <-b.Gate:
		case <-ctx.Done():
			return domainauth.CredentialPair{}, ctx.Err()
		}
	}
	if b.Delay > 0 {
		select {
		case <-time.After(b.Delay):
		case <-ctx.Done():
			return domainauth.CredentialPair{}, ctx.Err()
		}
	}
	if b.RefreshFunc != nil {
		return b.RefreshFunc(ctx, refreshToken)
	}

	b.mu.Lock()
	ok := b.valid[refreshToken]
	delete(b.valid, refreshToken)
	b.mu.Unlock()
	if !ok {
		return domainauth.CredentialPair{}, &ports.StatusError{Status: 401, Body: []byte(`{"detail":"invalid refresh token"}`)}
	}
	return b.issue(), nil
}

func (b *RotatingBackend) Logout(context.Context, string) error {
	b.LogoutCalls.Add(1)
	return nil
}

func (b *RotatingBackend) issue() domainauth.CredentialPair {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	pair := domainauth.CredentialPair{
		AccessToken:      fmt.Sprintf("access-%d", b.seq),
		RefreshToken:     fmt.Sprintf("refresh-%d", b.seq),
		AccessExpiresIn:  900,
		RefreshExpiresIn: 604800,
	}
	b.valid[pair.RefreshToken] = true
	return pair
}

// ScriptedUpstream answers Do calls from a handler func and records every request.
type ScriptedUpstream struct {
	Handler func(req ports.UpstreamRequest) (*ports.UpstreamResponse, error)

	mu    sync.Mutex
	calls []ports.UpstreamRequest
}

func (u *ScriptedUpstream) Do(_ context.Context, req ports.UpstreamRequest) (*ports.UpstreamResponse, error) {
	u.mu.Lock()
	u.calls = append(u.calls, req)
	u.mu.Unlock()
	if u.Handler == nil {
		return &ports.UpstreamResponse{Status: 200, Body: []byte(`{}`)}, nil
	}
	return u.Handler(req)
}

// Calls returns a copy of the recorded requests.
func (u *ScriptedUpstream) Calls() []ports.UpstreamRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]ports.UpstreamRequest(nil), u.calls...)
}

// AcceptBearer returns a handler that answers 200 for the given access tokens and 401 otherwise.
func AcceptBearer(tokens ...string) func(ports.UpstreamRequest) (*ports.UpstreamResponse, error) {
	ok := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		ok[t] = true
	}
	return func(req ports.UpstreamRequest) (*ports.UpstreamResponse, error) {
		if ok[req.BearerToken] {
			body, _ := json.Marshal(map[string]string{"token": req.BearerToken, "path": req.Path})
			return &ports.UpstreamResponse{Status: 200, Body: body}, nil
		}
		return &ports.UpstreamResponse{Status: 401, Body: []byte(`{"detail":"unauthorized"}`)}, nil
	}
}
