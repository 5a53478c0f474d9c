package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/ports"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/testutil"
)

func newTestClient(t *testing.T, opts Options) *Client {
	t.Helper()
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err, "core url is required")

	_, err = New(Options{CoreURL: "ftp://core"})
	require.Error(t, err)

	_, err = New(Options{CoreURL: "http://core", TokenEnvelope: "data[["})
	require.Error(t, err)
}

func TestClient_LoginAndRefresh(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	c := newTestClient(t, Options{CoreURL: fb.URL()})
	ctx := context.Background()

	res, err := c.Login(ctx, "admin", "secret")
	require.NoError(t, err)
	assert.True(t, res.Pair.Complete())
	assert.Equal(t, int64(900), res.Pair.AccessExpiresIn)
	assert.Equal(t, int64(604800), res.Pair.RefreshExpiresIn)
	assert.JSONEq(t, `{"id":"u-1","username":"admin"}`, string(res.User))

	next, err := c.Refresh(ctx, res.Pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.Pair.RefreshToken, next.RefreshToken)

	_, err = c.Refresh(ctx, res.Pair.RefreshToken)
	var se *ports.StatusError
	require.ErrorAs(t, err, &se, "a rotated refresh token is single use")
	assert.Equal(t, http.StatusUnauthorized, se.Status)
}

func TestClient_LoginLocked(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.LockLogin(42)
	c := newTestClient(t, Options{CoreURL: fb.URL()})

	_, err := c.Login(context.Background(), "admin", "secret")
	var se *ports.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Status)
	assert.JSONEq(t, `{"locked":true,"remaining_seconds":42}`, string(se.Body))
}

func TestClient_TokenEnvelope(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.Envelope = "data"
	c := newTestClient(t, Options{CoreURL: fb.URL(), TokenEnvelope: "data"})

	res, err := c.Login(context.Background(), "admin", "secret")
	require.NoError(t, err)
	assert.True(t, res.Pair.Complete())

	plain := newTestClient(t, Options{CoreURL: fb.URL()})
	_, err = plain.Login(context.Background(), "admin", "secret")
	require.Error(t, err, "fields are not at the root when enveloped")
}

func TestClient_DoForwardsRequest(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	pair := fb.IssuePair()
	c := newTestClient(t, Options{CoreURL: fb.URL() + "/"})

	resp, err := c.Do(context.Background(), ports.UpstreamRequest{
		Upstream:    ports.UpstreamCore,
		Method:      http.MethodPost,
		Path:        "api/v1/quests",
		RawQuery:    "status=active",
		Header:      http.Header{"X-Tenant-ID": []string{"t1"}, "Content-Type": []string{"application/json"}},
		Body:        []byte(`{"name":"q"}`),
		BearerToken: pair.AccessToken,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)

	var echo map[string]string
	require.NoError(t, json.Unmarshal(resp.Body, &echo))
	assert.Equal(t, "POST", echo["method"])
	assert.Equal(t, "/api/v1/quests", echo["path"])
	assert.Equal(t, "status=active", echo["query"])
	assert.Equal(t, "t1", echo["tenant_id"])
	assert.Equal(t, pair.AccessToken, echo["token"])
	assert.Equal(t, `{"name":"q"}`, echo["body"])
}

func TestClient_DoUnknownUpstream(t *testing.T) {
	c := newTestClient(t, Options{CoreURL: "http://core.invalid"})
	_, err := c.Do(context.Background(), ports.UpstreamRequest{Upstream: ports.UpstreamAI, Path: "/chat"})
	require.Error(t, err)
	assert.Equal(t, []string{ports.UpstreamCore}, c.Upstreams())
}

func TestClient_ResponseCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, Options{CoreURL: srv.URL, MaxResponseBytes: 16})
	_, err := c.Do(context.Background(), ports.UpstreamRequest{Upstream: ports.UpstreamCore, Path: "/big"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResponseTooLarge))
}

func TestClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, Options{CoreURL: url})
	_, err := c.Do(context.Background(), ports.UpstreamRequest{Upstream: ports.UpstreamCore, Path: "/x"})
	require.Error(t, err)
}

func TestClient_LogoutAndHealth(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	pair := fb.IssuePair()
	c := newTestClient(t, Options{CoreURL: fb.URL(), AIURL: fb.URL()})
	ctx := context.Background()

	require.NoError(t, c.Logout(ctx, pair.AccessToken))
	assert.False(t, fb.AccessValid(pair.AccessToken))
	assert.Equal(t, int64(1), fb.LogoutCalls.Load())

	require.NoError(t, c.Health(ctx, ports.UpstreamCore))
	require.NoError(t, c.Health(ctx, ports.UpstreamAI))
}
