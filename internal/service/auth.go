package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
	apperrors "github.com/HenryT2023/YT-AI-Platform-sub000/internal/errors"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/ports"
)

// ErrNeedRefresh is returned by Me when only a refresh credential is present; the browser is
// expected to call the refresh endpoint and retry.
var ErrNeedRefresh = errors.New("access token missing, refresh required")

// LoginLockedError reports a rate-limited login in the backend's shape.
type LoginLockedError struct {
	Locked domainauth.LoginLocked
}

func (e *LoginLockedError) Error() string {
	return fmt.Sprintf("login locked, retry in %ds", e.Locked.RemainingSeconds)
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Backend   ports.TokenBackend
	Refresher Refresher
	Proxy     *AuthProxy
	Logger    *slog.Logger
}

// AuthService implements the gateway's own auth endpoints on top of the backend, the refresh
// coordinator and the auth proxy. It never touches cookies; outcomes are recorded on the
// RequestContext or returned.
type AuthService struct {
	backend   ports.TokenBackend
	refresher Refresher
	proxy     *AuthProxy
	logger    *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	if opts.Backend == nil {
		return nil, errors.New("Backend is required")
	}
	if opts.Refresher == nil {
		return nil, errors.New("Refresher is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("Proxy is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		backend:   opts.Backend,
		refresher: opts.Refresher,
		proxy:     opts.Proxy,
		logger:    logger.With("component", "auth_service"),
	}, nil
}

// Login exchanges username/password for a credential pair. A backend 429 becomes
// *LoginLockedError; other rejections are returned as *ports.StatusError for relaying.
func (s *AuthService) Login(ctx context.Context, username, password string) (domainauth.LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domainauth.LoginResult{}, apperrors.ValidationField("username", "username is required")
	}
	if password == "" {
		return domainauth.LoginResult{}, apperrors.ValidationField("password", "password is required")
	}

	res, err := s.backend.Login(ctx, username, password)
	if err != nil {
		var se *ports.StatusError
		if errors.As(err, &se) {
			if se.Status == http.StatusTooManyRequests {
				return domainauth.LoginResult{}, &LoginLockedError{Locked: parseLocked(se.Body)}
			}
			return domainauth.LoginResult{}, err
		}
		return domainauth.LoginResult{}, apperrors.Upstream(ports.UpstreamCore, err)
	}
	if !res.Pair.Complete() {
		return domainauth.LoginResult{}, apperrors.Upstream(ports.UpstreamCore,
			errors.New("login response missing tokens"))
	}
	s.logger.InfoContext(ctx, "login succeeded", "username", username)
	return res, nil
}

// Me resolves the current user. With no credentials it returns an Unauthenticated error; with
// only a refresh credential it returns ErrNeedRefresh without contacting the backend.
func (s *AuthService) Me(ctx context.Context, rc *domainauth.RequestContext) (*ports.UpstreamResponse, error) {
	if !rc.HasCredentials() {
		return nil, apperrors.Unauthenticated("unauthenticated")
	}
	if rc.AccessToken == "" {
		return nil, ErrNeedRefresh
	}
	return s.proxy.Forward(ctx, rc, ForwardRequest{
		Upstream: ports.UpstreamCore,
		Method:   http.MethodGet,
		Path:     "/auth/me",
	})
}

// Refresh rotates the request's credentials explicitly. On failure rc is marked cleared.
func (s *AuthService) Refresh(ctx context.Context, rc *domainauth.RequestContext) error {
	if rc == nil || rc.RefreshToken == "" {
		return apperrors.Unauthenticated("no refresh token")
	}
	if err := s.refresher.AcquireAndRefresh(ctx, rc); err != nil {
		if errors.Is(err, ErrRefreshFailed) {
			rc.MarkCleared()
			return apperrors.RefreshFailed(err)
		}
		return refreshUnavailable(err)
	}
	return nil
}

// Logout tells the backend the access token is done (best effort) and marks rc cleared.
func (s *AuthService) Logout(ctx context.Context, rc *domainauth.RequestContext) {
	if rc == nil {
		return
	}
	if rc.AccessToken != "" {
		if err := s.backend.Logout(ctx, rc.AccessToken); err != nil {
			s.logger.WarnContext(ctx, "backend logout failed", "error", err)
		}
	}
	rc.MarkCleared()
}

func parseLocked(body []byte) domainauth.LoginLocked {
	locked := domainauth.LoginLocked{Locked: true}
	if len(body) == 0 {
		return locked
	}
	var wire domainauth.LoginLocked
	if err := json.Unmarshal(body, &wire); err == nil {
		locked.RemainingSeconds = wire.RemainingSeconds
	}
	return locked
}
