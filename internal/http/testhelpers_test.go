package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/publicsuffix"

	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/adapters/backend"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/adapters/memory"
	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/observability/statsd"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/service"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/session"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/testutil"
)

const testServiceKey = "svc-key"

// testGateway is a full gateway stack in front of a fake core-backend.
type testGateway struct {
	Backend *testutil.FakeBackend
	Server  *httptest.Server
	Client  *http.Client
	Metrics *statsd.Recorder
	Store   *session.Store
}

type gatewayOption func(*RouterServices)

func withThrottle(t *LoginThrottle) gatewayOption {
	return func(s *RouterServices) { s.Throttle = t }
}

func withCSRF() gatewayOption {
	return func(s *RouterServices) { s.CSRF = true }
}

func newTestStore(t *testing.T, production bool) *session.Store {
	t.Helper()
	store, err := session.NewStore(session.StoreOptions{
		Policy:       session.Policy{Production: production},
		DefaultScope: domainauth.Scope{TenantID: "yantian", SiteID: "main"},
	})
	require.NoError(t, err)
	return store
}

func newTestGateway(t *testing.T, opts ...gatewayOption) *testGateway {
	t.Helper()
	fb := testutil.NewFakeBackend(t)
	fb.ServiceKey = testServiceKey

	client, err := backend.New(backend.Options{CoreURL: fb.URL(), AIURL: fb.URL(), Timeout: 5 * time.Second})
	require.NoError(t, err)

	metrics := &statsd.Recorder{}
	coord, err := service.NewRefreshCoordinator(service.RefreshCoordinatorOptions{
		Backend: client,
		Grace:   memory.NewRefreshResultCache(),
		Metrics: metrics,
	})
	require.NoError(t, err)
	proxy, err := service.NewAuthProxy(service.AuthProxyOptions{
		Upstream:   client,
		Refresher:  coord,
		ServiceKey: testServiceKey,
		Metrics:    metrics,
	})
	require.NoError(t, err)
	authSvc, err := service.NewAuthService(service.AuthServiceOptions{Backend: client, Refresher: coord, Proxy: proxy})
	require.NoError(t, err)

	store := newTestStore(t, false)
	services := RouterServices{
		Auth:             authSvc,
		Proxy:            proxy,
		Store:            store,
		Surfaces:         []string{SurfaceAdmin, SurfaceVisitor},
		AdminResources:   []string{"achievements", "quests", "quest-submissions"},
		VisitorResources: []string{"quests", "profile", "checkins"},
	}
	for _, opt := range opts {
		opt(&services)
	}
	srv := httptest.NewServer(Recover(nil)(NewRouter(services)))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	require.NoError(t, err)
	return &testGateway{
		Backend: fb,
		Server:  srv,
		Client:  &http.Client{Jar: jar, Timeout: 10 * time.Second},
		Metrics: metrics,
		Store:   store,
	}
}

// do issues a request and returns the status and raw body.
func (g *testGateway) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, g.Server.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := g.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

// cookie returns the jar's value for name, or "".
func (g *testGateway) cookie(t *testing.T, name string) string {
	t.Helper()
	u, err := url.Parse(g.Server.URL)
	require.NoError(t, err)
	for _, c := range g.Client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// seed installs a credential pair in the jar as if the browser had logged in earlier.
func (g *testGateway) seed(t *testing.T, pair domainauth.CredentialPair) {
	t.Helper()
	u, err := url.Parse(g.Server.URL)
	require.NoError(t, err)
	var cookies []*http.Cookie
	if pair.AccessToken != "" {
		cookies = append(cookies, &http.Cookie{Name: "access_token", Value: pair.AccessToken, Path: "/"})
	}
	if pair.RefreshToken != "" {
		cookies = append(cookies, &http.Cookie{Name: "refresh_token", Value: pair.RefreshToken, Path: "/"})
	}
	g.Client.Jar.SetCookies(u, cookies)
}

func decodeMap(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return out
}

func jsonDecode(resp *http.Response, v any) error {
	return json.NewDecoder(resp.Body).Decode(v)
}
