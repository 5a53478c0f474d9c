package httpx

import (
	"context"

	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/session"
)

// requestStateKey is an unexported context key type to avoid collisions across packages.
type requestStateKey struct{}

// requestState is the per-request auth state installed by WithRequestContext.
type requestState struct {
	tokens *session.TokenStore
	rc     *domainauth.RequestContext
}

// setRequestState returns a child context carrying the token store and request context.
func setRequestState(ctx context.Context, st *requestState) context.Context {
	if st == nil {
		return ctx
	}
	return context.WithValue(ctx, requestStateKey{}, st)
}

func getRequestState(ctx context.Context) (*requestState, bool) {
	st, ok := ctx.Value(requestStateKey{}).(*requestState)
	return st, ok && st != nil
}

// RequestContextFrom returns the auth request context for ctx and a boolean indicating presence.
func RequestContextFrom(ctx context.Context) (*domainauth.RequestContext, bool) {
	if st, ok := getRequestState(ctx); ok {
		return st.rc, true
	}
	return nil, false
}

// RequestIDFrom returns the request ID assigned by WithRequestContext, or "".
func RequestIDFrom(ctx context.Context) string {
	if rc, ok := RequestContextFrom(ctx); ok {
		return rc.RequestID
	}
	return ""
}
