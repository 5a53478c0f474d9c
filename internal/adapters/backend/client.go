// Package backend is the HTTP client for core-backend and ai-orchestrator.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/oauth2"

	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/ports"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxResponseBytes = 10 << 20
)

var (
	_ ports.TokenBackend = (*Client)(nil)
	_ ports.Upstream     = (*Client)(nil)
)

// ErrResponseTooLarge is returned when an upstream body exceeds the configured cap.
var ErrResponseTooLarge = errors.New("upstream response too large")

// Options configures a Client.
type Options struct {
	CoreURL string
	AIURL   string
	// Timeout applies per call when HTTPClient is nil.
	Timeout          time.Duration
	MaxResponseBytes int64
	// TokenEnvelope is a JMESPath expression selecting the object that holds token fields
	// in login/refresh responses. Empty means the response root.
	TokenEnvelope string
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Client talks to the configured upstreams.
type Client struct {
	bases    map[string]*url.URL
	http     *http.Client
	maxBytes int64
	fields   tokenFields
	logger   *slog.Logger
}

type tokenFields struct {
	access, refresh, accessExp, refreshExp, user string
}

func newTokenFields(envelope string) (tokenFields, error) {
	envelope = strings.TrimSpace(envelope)
	path := func(name string) string {
		if envelope == "" {
			return name
		}
		return envelope + "." + name
	}
	f := tokenFields{
		access:     path("access_token"),
		refresh:    path("refresh_token"),
		accessExp:  path("access_expires_in"),
		refreshExp: path("refresh_expires_in"),
		user:       path("user"),
	}
	for _, expr := range []string{f.access, f.refresh, f.accessExp, f.refreshExp, f.user} {
		if _, err := jmespath.Compile(expr); err != nil {
			return tokenFields{}, fmt.Errorf("invalid token envelope %q: %w", envelope, err)
		}
	}
	return f, nil
}

// New validates opts and creates a Client.
func New(opts Options) (*Client, error) {
	bases := make(map[string]*url.URL, 2)
	for name, raw := range map[string]string{ports.UpstreamCore: opts.CoreURL, ports.UpstreamAI: opts.AIURL} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		u, err := url.Parse(strings.TrimRight(raw, "/"))
		if err != nil {
			return nil, fmt.Errorf("parse %s upstream url: %w", name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("invalid %s upstream url scheme: %q", name, u.Scheme)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("invalid %s upstream url: missing host", name)
		}
		bases[name] = u
	}
	if _, ok := bases[ports.UpstreamCore]; !ok {
		return nil, errors.New("core upstream url is required")
	}

	fields, err := newTokenFields(opts.TokenEnvelope)
	if err != nil {
		return nil, err
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	maxBytes := opts.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxResponseBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{bases: bases, http: hc, maxBytes: maxBytes, fields: fields, logger: logger}, nil
}

// Do sends req to its upstream and buffers the response.
func (c *Client) Do(ctx context.Context, req ports.UpstreamRequest) (*ports.UpstreamResponse, error) {
	base, ok := c.bases[req.Upstream]
	if !ok {
		return nil, fmt.Errorf("unknown upstream %q", req.Upstream)
	}
	u := *base
	u.Path = base.Path + "/" + strings.TrimLeft(req.Path, "/")
	u.RawQuery = req.RawQuery

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.BearerToken != "" {
		setBearer(httpReq, req.BearerToken)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()

	data, err := c.readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", u.Path, err)
	}
	return &ports.UpstreamResponse{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: data}, nil
}

// Login posts credentials to /auth/login.
func (c *Client) Login(ctx context.Context, username, password string) (domainauth.LoginResult, error) {
	doc, err := c.postAuth(ctx, "/auth/login", map[string]string{"username": username, "password": password})
	if err != nil {
		return domainauth.LoginResult{}, err
	}
	pair, err := c.extractPair(doc)
	if err != nil {
		return domainauth.LoginResult{}, err
	}
	result := domainauth.LoginResult{Pair: pair}
	if user, searchErr := jmespath.Search(c.fields.user, doc); searchErr == nil && user != nil {
		if raw, marshalErr := json.Marshal(user); marshalErr == nil {
			result.User = raw
		}
	}
	return result, nil
}

// Refresh posts the refresh token to /auth/refresh.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (domainauth.CredentialPair, error) {
	doc, err := c.postAuth(ctx, "/auth/refresh", map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return domainauth.CredentialPair{}, err
	}
	return c.extractPair(doc)
}

// Logout notifies the backend that the access token is no longer in use.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	resp, err := c.Do(ctx, ports.UpstreamRequest{
		Upstream:    ports.UpstreamCore,
		Method:      http.MethodPost,
		Path:        "/auth/logout",
		BearerToken: accessToken,
	})
	if err != nil {
		return err
	}
	if !is2xx(resp.Status) {
		return &ports.StatusError{Status: resp.Status, Body: resp.Body}
	}
	return nil
}

// Health checks GET /health on the named upstream.
func (c *Client) Health(ctx context.Context, upstream string) error {
	resp, err := c.Do(ctx, ports.UpstreamRequest{Upstream: upstream, Method: http.MethodGet, Path: "/health"})
	if err != nil {
		return err
	}
	if !is2xx(resp.Status) {
		return &ports.StatusError{Status: resp.Status, Body: resp.Body}
	}
	return nil
}

// Upstreams lists the configured upstream names.
func (c *Client) Upstreams() []string {
	out := make([]string, 0, len(c.bases))
	for _, name := range []string{ports.UpstreamCore, ports.UpstreamAI} {
		if _, ok := c.bases[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func (c *Client) postAuth(ctx context.Context, path string, payload any) (any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", path, err)
	}
	resp, err := c.Do(ctx, ports.UpstreamRequest{
		Upstream: ports.UpstreamCore,
		Method:   http.MethodPost,
		Path:     path,
		Header:   http.Header{"Content-Type": []string{"application/json"}},
		Body:     body,
	})
	if err != nil {
		return nil, err
	}
	if !is2xx(resp.Status) {
		c.logger.DebugContext(ctx, "backend auth call rejected", "path", path, "status", resp.Status)
		return nil, &ports.StatusError{Status: resp.Status, Body: resp.Body}
	}
	var doc any
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	return doc, nil
}

func (c *Client) extractPair(doc any) (domainauth.CredentialPair, error) {
	pair := domainauth.CredentialPair{
		AccessToken:      searchString(c.fields.access, doc),
		RefreshToken:     searchString(c.fields.refresh, doc),
		AccessExpiresIn:  searchInt(c.fields.accessExp, doc),
		RefreshExpiresIn: searchInt(c.fields.refreshExp, doc),
	}
	if !pair.Complete() {
		return domainauth.CredentialPair{}, errors.New("token response missing access or refresh token")
	}
	return pair, nil
}

func (c *Client) readBody(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, c.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrResponseTooLarge, c.maxBytes)
	}
	return data, nil
}

func setBearer(req *http.Request, token string) {
	(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
}

func searchString(expr string, doc any) string {
	v, err := jmespath.Search(expr, doc)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func searchInt(expr string, doc any) int64 {
	v, err := jmespath.Search(expr, doc)
	if err != nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

func is2xx(status int) bool { return status >= 200 && status < 300 }
