package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
)

func newTestStore(t *testing.T, opts StoreOptions) *Store {
	t.Helper()
	s, err := NewStore(opts)
	require.NoError(t, err)
	return s
}

func responseCookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestTokenStore_ReadsAbsentAsEmpty(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ts := s.Bind(nil, req)

	assert.Empty(t, ts.AccessToken())
	assert.Empty(t, ts.RefreshToken())
	assert.Equal(t, domainauth.FallbackScopeID, ts.TenantID())
	assert.Equal(t, domainauth.FallbackScopeID, ts.SiteID())
}

func TestTokenStore_ScopeResolution(t *testing.T) {
	s := newTestStore(t, StoreOptions{DefaultScope: domainauth.Scope{TenantID: "yantian", SiteID: "main"}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "site_id", Value: "north-gate"})
	ts := s.Bind(nil, req)

	assert.Equal(t, "yantian", ts.TenantID(), "env default when cookie absent")
	assert.Equal(t, "north-gate", ts.SiteID(), "cookie wins")
}

func TestTokenStore_SetCredentialPair(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	rec := httptest.NewRecorder()
	ts := s.Bind(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	err := ts.SetCredentialPair(domainauth.CredentialPair{
		AccessToken: "at", RefreshToken: "rt", AccessExpiresIn: 60,
	})
	require.NoError(t, err)

	cookies := responseCookies(rec)
	require.Contains(t, cookies, "access_token")
	require.Contains(t, cookies, "refresh_token")
	assert.Equal(t, "at", cookies["access_token"].Value)
	assert.Equal(t, 60, cookies["access_token"].MaxAge)
	assert.Equal(t, "rt", cookies["refresh_token"].Value)
	assert.Equal(t, 7*24*3600, cookies["refresh_token"].MaxAge)

	assert.Equal(t, "at", ts.AccessToken(), "written values shadow the request")
}

func TestTokenStore_RefusesIncompletePair(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	rec := httptest.NewRecorder()
	ts := s.Bind(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	err := ts.SetCredentialPair(domainauth.CredentialPair{AccessToken: "only"})
	require.ErrorIs(t, err, ErrIncompletePair)
	assert.Empty(t, rec.Result().Cookies(), "nothing may be written for a partial pair")
}

func TestTokenStore_ClearCredentials(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "at"})
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "rt"})
	rec := httptest.NewRecorder()
	ts := s.Bind(rec, req)

	ts.ClearCredentials()

	cookies := responseCookies(rec)
	assert.Equal(t, -1, cookies["access_token"].MaxAge)
	assert.Equal(t, -1, cookies["refresh_token"].MaxAge)
	assert.Empty(t, ts.AccessToken())
	assert.Empty(t, ts.RefreshToken())
}

func TestTokenStore_SetScope(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	rec := httptest.NewRecorder()
	ts := s.Bind(rec, httptest.NewRequest(http.MethodPut, "/", nil))

	require.NoError(t, ts.SetScope(domainauth.Scope{TenantID: "t1", SiteID: "s1"}))
	cookies := responseCookies(rec)
	assert.False(t, cookies["tenant_id"].HttpOnly)
	assert.Equal(t, 30*24*3600, cookies["site_id"].MaxAge)
	assert.Equal(t, "t1", ts.TenantID())

	require.Error(t, ts.SetScope(domainauth.Scope{TenantID: "bad id", SiteID: "s1"}))
}

func TestTokenStore_Flush(t *testing.T) {
	s := newTestStore(t, StoreOptions{})

	rec := httptest.NewRecorder()
	rc := &domainauth.RequestContext{RefreshToken: "old"}
	rc.ApplyRotation(domainauth.CredentialPair{AccessToken: "a2", RefreshToken: "r2"})
	require.NoError(t, s.Bind(rec, nil).Flush(rc))
	assert.Equal(t, "a2", responseCookies(rec)["access_token"].Value)

	rec = httptest.NewRecorder()
	rc.MarkCleared()
	require.NoError(t, s.Bind(rec, nil).Flush(rc))
	assert.Equal(t, -1, responseCookies(rec)["refresh_token"].MaxAge)

	rec = httptest.NewRecorder()
	require.NoError(t, s.Bind(rec, nil).Flush(&domainauth.RequestContext{AccessToken: "x"}))
	assert.Empty(t, rec.Result().Cookies(), "untouched context writes nothing")
}

func TestTokenStore_SealedCookies(t *testing.T) {
	opts := StoreOptions{
		HashKey:  []byte(strings.Repeat("h", 32)),
		BlockKey: []byte(strings.Repeat("b", 32)),
	}
	s := newTestStore(t, opts)

	rec := httptest.NewRecorder()
	require.NoError(t, s.Bind(rec, nil).SetCredentialPair(domainauth.CredentialPair{AccessToken: "at", RefreshToken: "rt"}))
	cookies := responseCookies(rec)
	assert.NotEqual(t, "at", cookies["access_token"].Value)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies["access_token"])
	req.AddCookie(cookies["refresh_token"])
	ts := s.Bind(nil, req)
	assert.Equal(t, "at", ts.AccessToken())
	assert.Equal(t, "rt", ts.RefreshToken())

	// A plaintext or forged value reads as absent.
	forged := httptest.NewRequest(http.MethodGet, "/", nil)
	forged.AddCookie(&http.Cookie{Name: "access_token", Value: "at"})
	assert.Empty(t, s.Bind(nil, forged).AccessToken())
}

// sealAt produces a hash-only securecookie value stamped with issuedAt.
func sealAt(hashKey []byte, name, value string, issuedAt time.Time) string {
	body := fmt.Sprintf("%s|%d|%s|", name, issuedAt.UTC().Unix(), base64.URLEncoding.EncodeToString([]byte(value)))
	mac := hmac.New(sha256.New, hashKey)
	mac.Write([]byte(body[:len(body)-1]))
	signed := append([]byte(body), mac.Sum(nil)...)[len(name)+1:]
	return base64.URLEncoding.EncodeToString(signed)
}

func TestTokenStore_SealedCookiesOutliveDefaultRefreshTTL(t *testing.T) {
	hashKey := []byte(strings.Repeat("h", 32))
	s := newTestStore(t, StoreOptions{HashKey: hashKey})

	rec := httptest.NewRecorder()
	pair := domainauth.CredentialPair{AccessToken: "a", RefreshToken: "r", RefreshExpiresIn: 30 * 24 * 3600}
	require.NoError(t, s.Bind(rec, nil).SetCredentialPair(pair))
	assert.Equal(t, 30*24*3600, responseCookies(rec)["refresh_token"].MaxAge)

	for _, age := range []time.Duration{0, 8 * 24 * time.Hour, 40 * 24 * time.Hour} {
		t.Run(strconv.Itoa(int(age.Hours()/24))+"d", func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: "refresh_token", Value: sealAt(hashKey, "refresh_token", "r", time.Now().Add(-age))})
			assert.Equal(t, "r", s.Bind(nil, req).RefreshToken())
		})
	}

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		other := []byte(strings.Repeat("x", 32))
		req.AddCookie(&http.Cookie{Name: "refresh_token", Value: sealAt(other, "refresh_token", "r", time.Now())})
		assert.Empty(t, s.Bind(nil, req).RefreshToken())
	})
}

func TestNewStore_KeyValidation(t *testing.T) {
	_, err := NewStore(StoreOptions{HashKey: []byte("short")})
	require.Error(t, err)
	_, err = NewStore(StoreOptions{BlockKey: []byte(strings.Repeat("b", 16))})
	require.Error(t, err)
	_, err = NewStore(StoreOptions{HashKey: []byte(strings.Repeat("h", 32)), BlockKey: []byte("odd")})
	require.Error(t, err)
}
