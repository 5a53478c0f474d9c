package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
	apperrors "github.com/HenryT2023/YT-AI-Platform-sub000/internal/errors"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/ports"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/service"
)

// AuthAPI is the auth service surface used by the handlers.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (domainauth.LoginResult, error)
	Me(ctx context.Context, rc *domainauth.RequestContext) (*ports.UpstreamResponse, error)
	Refresh(ctx context.Context, rc *domainauth.RequestContext) error
	Logout(ctx context.Context, rc *domainauth.RequestContext)
}

var _ AuthAPI = (*service.AuthService)(nil)

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc      AuthAPI
	Throttle *LoginThrottle
	Logger   *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges credentials for a cookie pair.
// POST /api/auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	st, ok := stateOrError(w, r)
	if !ok {
		return
	}
	if allowed, wait := h.Throttle.Allow(st.rc.ClientIP); !allowed {
		h.logger().WarnContext(r.Context(), "login throttled", "client_ip", st.rc.ClientIP)
		WriteJSON(w, http.StatusTooManyRequests, domainauth.LoginLocked{Locked: true, RemainingSeconds: wait})
		return
	}

	var in loginRequest
	if !DecodeJSON(w, r, &in) {
		return
	}

	res, err := h.Svc.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		var locked *service.LoginLockedError
		var rejected *ports.StatusError
		switch {
		case errors.As(err, &locked):
			WriteJSON(w, http.StatusTooManyRequests, locked.Locked)
		case errors.As(err, &rejected):
			WriteUpstream(w, &ports.UpstreamResponse{Status: rejected.Status, Body: rejected.Body})
		default:
			WriteAppError(w, err)
		}
		return
	}

	if err := st.tokens.SetCredentialPair(res.Pair); err != nil {
		WriteAppError(w, apperrors.Wrap(err, apperrors.ErrCodeInternal, "store credentials"))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"user": res.User})
}

// Me returns the current user's profile through the auth proxy.
// GET /api/auth/me.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	st, ok := stateOrError(w, r)
	if !ok {
		return
	}
	resp, err := h.Svc.Me(r.Context(), st.rc)
	if errors.Is(err, service.ErrNeedRefresh) {
		WriteJSON(w, http.StatusUnauthorized, map[string]bool{"needRefresh": true})
		return
	}
	h.flush(r, st)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteUpstream(w, resp)
}

// Refresh rotates the credential cookies.
// POST /api/auth/refresh.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	st, ok := stateOrError(w, r)
	if !ok {
		return
	}
	err := h.Svc.Refresh(r.Context(), st.rc)
	h.flush(r, st)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Logout clears the credential cookies after telling the backend.
// POST /api/auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	st, ok := stateOrError(w, r)
	if !ok {
		return
	}
	h.Svc.Logout(r.Context(), st.rc)
	h.flush(r, st)
	WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandlers) flush(r *http.Request, st *requestState) {
	flushState(r.Context(), h.logger(), st)
}

// flushState writes the auth outcome recorded on the request context to cookies. It must run
// before the response status is written.
func flushState(ctx context.Context, logger *slog.Logger, st *requestState) {
	if err := st.tokens.Flush(st.rc); err != nil {
		logger.ErrorContext(ctx, "writing credential cookies failed",
			"request_id", st.rc.RequestID, "error", err)
	}
}

func stateOrError(w http.ResponseWriter, r *http.Request) (*requestState, bool) {
	st, ok := getRequestState(r.Context())
	if !ok {
		WriteAppError(w, apperrors.Internalf("request context middleware not installed"))
		return nil, false
	}
	return st, true
}
