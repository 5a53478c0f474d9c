package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
)

// FakeBackend is an httptest server speaking the core-backend auth contract.
// Refresh tokens are single use: a successful refresh revokes the presented token
// and the access token issued alongside it.
type FakeBackend struct {
	Server *httptest.Server

	// Username/Password accepted by /auth/login (defaults admin/secret).
	Username string
	Password string
	// ServiceKey, when set, authorizes resource calls carrying X-Internal-API-Key.
	ServiceKey string
	// Envelope wraps token responses in {Envelope: {...}} when non-empty.
	Envelope string

	mu            sync.Mutex
	refreshDelay  time.Duration
	lockedSeconds int64
	access        map[string]bool
	refresh       map[string]string // refresh -> paired access
	seq           int

	LoginCalls    atomic.Int64
	RefreshCalls  atomic.Int64
	MeCalls       atomic.Int64
	LogoutCalls   atomic.Int64
	ResourceCalls atomic.Int64
}

// NewFakeBackend starts a fake backend that is closed with the test.
func NewFakeBackend(t testing.TB) *FakeBackend {
	t.Helper()
	fb := &FakeBackend{
		Username: "admin",
		Password: "secret",
		access:   make(map[string]bool),
		refresh:  make(map[string]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", fb.handleLogin)
	mux.HandleFunc("POST /auth/refresh", fb.handleRefresh)
	mux.HandleFunc("GET /auth/me", fb.handleMe)
	mux.HandleFunc("POST /auth/logout", fb.handleLogout)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeFakeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/", fb.handleResource)
	fb.Server = httptest.NewServer(mux)
	t.Cleanup(fb.Server.Close)
	return fb
}

// URL returns the server base URL.
func (fb *FakeBackend) URL() string { return fb.Server.URL }

// SetRefreshDelay makes /auth/refresh sleep before answering.
func (fb *FakeBackend) SetRefreshDelay(d time.Duration) {
	fb.mu.Lock()
	fb.refreshDelay = d
	fb.mu.Unlock()
}

// LockLogin makes /auth/login answer 429 with the given remaining seconds; 0 unlocks.
func (fb *FakeBackend) LockLogin(remaining int64) {
	fb.mu.Lock()
	fb.lockedSeconds = remaining
	fb.mu.Unlock()
}

// IssuePair mints a valid credential pair without going through /auth/login.
func (fb *FakeBackend) IssuePair() domainauth.CredentialPair {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.issueLocked()
}

// ExpireAccess invalidates an access token; its refresh token stays valid.
func (fb *FakeBackend) ExpireAccess(token string) {
	fb.mu.Lock()
	delete(fb.access, token)
	fb.mu.Unlock()
}

// RevokeRefresh invalidates a refresh token.
func (fb *FakeBackend) RevokeRefresh(token string) {
	fb.mu.Lock()
	delete(fb.refresh, token)
	fb.mu.Unlock()
}

// AccessValid reports whether the backend currently accepts token.
func (fb *FakeBackend) AccessValid(token string) bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.access[token]
}

func (fb *FakeBackend) issueLocked() domainauth.CredentialPair {
	fb.seq++
	pair := domainauth.CredentialPair{
		AccessToken:      fmt.Sprintf("at-%d", fb.seq),
		RefreshToken:     fmt.Sprintf("rt-%d", fb.seq),
		AccessExpiresIn:  900,
		RefreshExpiresIn: 604800,
	}
	fb.access[pair.AccessToken] = true
	fb.refresh[pair.RefreshToken] = pair.AccessToken
	return pair
}

func (fb *FakeBackend) wrap(v any) any {
	if fb.Envelope == "" {
		return v
	}
	return map[string]any{fb.Envelope: v}
}

func (fb *FakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	fb.LoginCalls.Add(1)
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFakeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad request"})
		return
	}

	fb.mu.Lock()
	locked := fb.lockedSeconds
	fb.mu.Unlock()
	if locked > 0 {
		writeFakeJSON(w, http.StatusTooManyRequests, map[string]any{"locked": true, "remaining_seconds": locked})
		return
	}
	if req.Username != fb.Username || req.Password != fb.Password {
		writeFakeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid credentials"})
		return
	}

	fb.mu.Lock()
	pair := fb.issueLocked()
	fb.mu.Unlock()
	writeFakeJSON(w, http.StatusOK, fb.wrap(map[string]any{
		"access_token":       pair.AccessToken,
		"refresh_token":      pair.RefreshToken,
		"access_expires_in":  pair.AccessExpiresIn,
		"refresh_expires_in": pair.RefreshExpiresIn,
		"user":               map[string]string{"id": "u-1", "username": req.Username},
	}))
}

func (fb *FakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	fb.RefreshCalls.Add(1)
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFakeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad request"})
		return
	}

	fb.mu.Lock()
	delay := fb.refreshDelay
	fb.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	fb.mu.Lock()
	oldAccess, ok := fb.refresh[req.RefreshToken]
	if !ok {
		fb.mu.Unlock()
		writeFakeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid refresh token"})
		return
	}
	delete(fb.refresh, req.RefreshToken)
	delete(fb.access, oldAccess)
	pair := fb.issueLocked()
	fb.mu.Unlock()

	writeFakeJSON(w, http.StatusOK, fb.wrap(map[string]any{
		"access_token":       pair.AccessToken,
		"refresh_token":      pair.RefreshToken,
		"access_expires_in":  pair.AccessExpiresIn,
		"refresh_expires_in": pair.RefreshExpiresIn,
	}))
}

func (fb *FakeBackend) handleMe(w http.ResponseWriter, r *http.Request) {
	fb.MeCalls.Add(1)
	if !fb.AccessValid(bearer(r)) {
		writeFakeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "unauthorized"})
		return
	}
	writeFakeJSON(w, http.StatusOK, map[string]string{"id": "u-1", "username": fb.Username})
}

func (fb *FakeBackend) handleLogout(w http.ResponseWriter, r *http.Request) {
	fb.LogoutCalls.Add(1)
	fb.ExpireAccess(bearer(r))
	w.WriteHeader(http.StatusNoContent)
}

func (fb *FakeBackend) handleResource(w http.ResponseWriter, r *http.Request) {
	fb.ResourceCalls.Add(1)

	principal := ""
	switch {
	case fb.AccessValid(bearer(r)):
		principal = "user"
	case fb.ServiceKey != "" && r.Header.Get("X-Internal-API-Key") == fb.ServiceKey:
		principal = "service"
	default:
		writeFakeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "unauthorized"})
		return
	}

	body, _ := io.ReadAll(r.Body)
	writeFakeJSON(w, http.StatusOK, map[string]any{
		"method":       r.Method,
		"path":         r.URL.Path,
		"query":        r.URL.RawQuery,
		"tenant_id":    r.Header.Get("X-Tenant-ID"),
		"site_id":      r.Header.Get("X-Site-ID"),
		"request_id":   r.Header.Get("X-Request-ID"),
		"content_type": r.Header.Get("Content-Type"),
		"principal":    principal,
		"token":        bearer(r),
		"body":         string(body),
	})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return h[7:]
	}
	return ""
}

func writeFakeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
