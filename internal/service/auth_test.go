package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
	apperrors "github.com/HenryT2023/YT-AI-Platform-sub000/internal/errors"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/mocks"
	mockauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/mocks/auth"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/ports"
)

func newTestAuthService(t *testing.T, backend ports.TokenBackend, upstream ports.Upstream) *AuthService {
	t.Helper()
	coord := newTestCoordinator(t, RefreshCoordinatorOptions{Backend: backend})
	proxy, err := NewAuthProxy(AuthProxyOptions{Upstream: upstream, Refresher: coord})
	require.NoError(t, err)
	svc, err := NewAuthService(AuthServiceOptions{Backend: backend, Refresher: coord, Proxy: proxy})
	require.NoError(t, err)
	return svc
}

func TestNewAuthService_Validation(t *testing.T) {
	backend := mockauth.NewRotatingBackend()
	proxy := &AuthProxy{}
	coord := &RefreshCoordinator{}

	_, err := NewAuthService(AuthServiceOptions{Refresher: coord, Proxy: proxy})
	require.Error(t, err)
	_, err = NewAuthService(AuthServiceOptions{Backend: backend, Proxy: proxy})
	require.Error(t, err)
	_, err = NewAuthService(AuthServiceOptions{Backend: backend, Refresher: coord})
	require.Error(t, err)
}

func TestAuthService_Login(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		backend := mockauth.NewRotatingBackend()
		svc := newTestAuthService(t, backend, &mockauth.ScriptedUpstream{})

		res, err := svc.Login(context.Background(), "  guide  ", "secret")
		require.NoError(t, err)
		assert.Equal(t, "access-1", res.Pair.AccessToken)
		assert.Equal(t, "refresh-1", res.Pair.RefreshToken)
		assert.JSONEq(t, `{"username":"guide"}`, string(res.User))
	})

	t.Run("missing fields", func(t *testing.T) {
		backend := mockauth.NewRotatingBackend()
		svc := newTestAuthService(t, backend, &mockauth.ScriptedUpstream{})

		_, err := svc.Login(context.Background(), " ", "secret")
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		assert.Equal(t, "username", apperrors.GetField(err))

		_, err = svc.Login(context.Background(), "guide", "")
		assert.Equal(t, "password", apperrors.GetField(err))
		assert.Equal(t, int64(0), backend.LoginCalls.Load())
	})

	t.Run("rejected credentials are relayed", func(t *testing.T) {
		svc := newTestAuthService(t, mockauth.NewRotatingBackend(), &mockauth.ScriptedUpstream{})

		_, err := svc.Login(context.Background(), "guide", "wrong")
		var se *ports.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusUnauthorized, se.Status)
	})

	t.Run("locked", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockTokenBackend(ctrl)
		backend.EXPECT().Login(gomock.Any(), "guide", "pw").Return(domainauth.LoginResult{}, &ports.StatusError{
			Status: http.StatusTooManyRequests,
			Body:   []byte(`{"locked":true,"remaining_seconds":120}`),
		})
		svc := newTestAuthService(t, backend, &mockauth.ScriptedUpstream{})

		_, err := svc.Login(context.Background(), "guide", "pw")
		var locked *LoginLockedError
		require.ErrorAs(t, err, &locked)
		assert.True(t, locked.Locked.Locked)
		assert.Equal(t, int64(120), locked.Locked.RemainingSeconds)
	})

	t.Run("transport failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockTokenBackend(ctrl)
		backend.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(domainauth.LoginResult{}, errors.New("dial tcp: connection refused"))
		svc := newTestAuthService(t, backend, &mockauth.ScriptedUpstream{})

		_, err := svc.Login(context.Background(), "guide", "pw")
		assert.True(t, apperrors.IsUpstream(err))
	})

	t.Run("incomplete pair", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockTokenBackend(ctrl)
		backend.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(domainauth.LoginResult{Pair: domainauth.CredentialPair{AccessToken: "a"}}, nil)
		svc := newTestAuthService(t, backend, &mockauth.ScriptedUpstream{})

		_, err := svc.Login(context.Background(), "guide", "pw")
		assert.True(t, apperrors.IsUpstream(err))
	})
}

func TestParseLocked(t *testing.T) {
	assert.Equal(t, domainauth.LoginLocked{Locked: true}, parseLocked(nil))
	assert.Equal(t, domainauth.LoginLocked{Locked: true}, parseLocked([]byte("not json")))
	assert.Equal(t, domainauth.LoginLocked{Locked: true, RemainingSeconds: 30},
		parseLocked([]byte(`{"remaining_seconds":30}`)))
}

func TestAuthService_Me(t *testing.T) {
	t.Run("no credentials", func(t *testing.T) {
		upstream := &mockauth.ScriptedUpstream{}
		svc := newTestAuthService(t, mockauth.NewRotatingBackend(), upstream)

		_, err := svc.Me(context.Background(), &domainauth.RequestContext{})
		assert.True(t, apperrors.IsUnauthenticated(err))
		assert.Empty(t, upstream.Calls())
	})

	t.Run("refresh only", func(t *testing.T) {
		upstream := &mockauth.ScriptedUpstream{}
		backend := mockauth.NewRotatingBackend("rt-0")
		svc := newTestAuthService(t, backend, upstream)

		_, err := svc.Me(context.Background(), &domainauth.RequestContext{RefreshToken: "rt-0"})
		require.ErrorIs(t, err, ErrNeedRefresh)
		assert.Empty(t, upstream.Calls())
		assert.Equal(t, int64(0), backend.RefreshCalls.Load())
	})

	t.Run("proxied with retry", func(t *testing.T) {
		upstream := &mockauth.ScriptedUpstream{Handler: mockauth.AcceptBearer("access-1")}
		svc := newTestAuthService(t, mockauth.NewRotatingBackend("rt-0"), upstream)

		rc := &domainauth.RequestContext{AccessToken: "stale", RefreshToken: "rt-0"}
		resp, err := svc.Me(context.Background(), rc)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, "/auth/me", upstream.Calls()[0].Path)
		require.NotNil(t, rc.Rotated)
	})
}

func TestAuthService_Refresh(t *testing.T) {
	t.Run("no refresh token", func(t *testing.T) {
		svc := newTestAuthService(t, mockauth.NewRotatingBackend(), &mockauth.ScriptedUpstream{})
		err := svc.Refresh(context.Background(), &domainauth.RequestContext{AccessToken: "a"})
		assert.True(t, apperrors.IsUnauthenticated(err))
	})

	t.Run("rotates", func(t *testing.T) {
		svc := newTestAuthService(t, mockauth.NewRotatingBackend("rt-0"), &mockauth.ScriptedUpstream{})
		rc := &domainauth.RequestContext{RefreshToken: "rt-0"}
		require.NoError(t, svc.Refresh(context.Background(), rc))
		assert.Equal(t, "access-1", rc.AccessToken)
		require.NotNil(t, rc.Rotated)
	})

	t.Run("rejected clears", func(t *testing.T) {
		svc := newTestAuthService(t, mockauth.NewRotatingBackend(), &mockauth.ScriptedUpstream{})
		rc := &domainauth.RequestContext{AccessToken: "a", RefreshToken: "revoked"}
		err := svc.Refresh(context.Background(), rc)
		assert.True(t, apperrors.IsRefreshFailed(err))
		assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))
		assert.True(t, rc.Cleared)
		assert.False(t, rc.HasCredentials())
	})

	t.Run("unreachable backend keeps credentials", func(t *testing.T) {
		backend := mockauth.NewRotatingBackend()
		backend.RefreshFunc = func(context.Context, string) (domainauth.CredentialPair, error) {
			return domainauth.CredentialPair{}, errors.New("dial tcp: connection refused")
		}
		svc := newTestAuthService(t, backend, &mockauth.ScriptedUpstream{})
		rc := &domainauth.RequestContext{AccessToken: "a", RefreshToken: "rt-0"}
		err := svc.Refresh(context.Background(), rc)
		assert.False(t, apperrors.IsRefreshFailed(err))
		assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(err))
		assert.False(t, rc.Cleared)
		assert.True(t, rc.HasCredentials())
	})
}

func TestAuthService_Logout(t *testing.T) {
	t.Run("calls backend with access token", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockTokenBackend(ctrl)
		backend.EXPECT().Logout(gomock.Any(), "at").Return(errors.New("backend down"))
		svc := newTestAuthService(t, backend, &mockauth.ScriptedUpstream{})

		rc := &domainauth.RequestContext{AccessToken: "at", RefreshToken: "rt"}
		svc.Logout(context.Background(), rc)
		assert.True(t, rc.Cleared, "backend failure does not block local logout")
	})

	t.Run("refresh only skips backend", func(t *testing.T) {
		backend := mockauth.NewRotatingBackend()
		svc := newTestAuthService(t, backend, &mockauth.ScriptedUpstream{})

		rc := &domainauth.RequestContext{RefreshToken: "rt"}
		svc.Logout(context.Background(), rc)
		assert.True(t, rc.Cleared)
		assert.Equal(t, int64(0), backend.LogoutCalls.Load())
	})
}
