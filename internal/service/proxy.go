package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
	apperrors "github.com/HenryT2023/YT-AI-Platform-sub000/internal/errors"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/observability/metrics"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/observability/statsd"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/ports"
)

// Headers attached to every upstream call.
const (
	HeaderTenantID   = "X-Tenant-ID"
	HeaderSiteID     = "X-Site-ID"
	HeaderRequestID  = "X-Request-ID"
	HeaderServiceKey = "X-Internal-API-Key"
)

// Refresher rotates the credentials carried by a request context.
type Refresher interface {
	AcquireAndRefresh(ctx context.Context, rc *domainauth.RequestContext) error
}

var _ Refresher = (*RefreshCoordinator)(nil)

// ForwardRequest describes one logical call a route handler wants made upstream.
type ForwardRequest struct {
	Upstream    string
	Method      string
	Path        string
	RawQuery    string
	ContentType string
	Body        []byte
	// AllowAnonymous permits the internal service key when the caller has no access token.
	AllowAnonymous bool
}

// AuthProxyOptions groups dependencies for AuthProxy.
type AuthProxyOptions struct {
	Upstream   ports.Upstream
	Refresher  Refresher
	ServiceKey string
	Metrics    statsd.Sink
	Logger     *slog.Logger
	Now        func() time.Time
}

// AuthProxy forwards requests with identity and scope attached and performs at most one
// refresh per logical request: either proactively, when the access token is missing or
// visibly expired, or after the first 401. Each request therefore reaches the upstream at
// most twice, and a second 401 is relayed.
type AuthProxy struct {
	upstream   ports.Upstream
	refresher  Refresher
	serviceKey string
	metrics    statsd.Sink
	logger     *slog.Logger
	now        func() time.Time
	parser     *jwt.Parser
}

// NewAuthProxy constructs an AuthProxy.
func NewAuthProxy(opts AuthProxyOptions) (*AuthProxy, error) {
	if opts.Upstream == nil {
		return nil, errors.New("Upstream is required")
	}
	if opts.Refresher == nil {
		return nil, errors.New("Refresher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AuthProxy{
		upstream:   opts.Upstream,
		refresher:  opts.Refresher,
		serviceKey: opts.ServiceKey,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "auth_proxy"),
		now:        now,
		parser:     jwt.NewParser(),
	}, nil
}

// Forward issues req on behalf of rc. Auth outcomes (rotation or clearing) are recorded on rc
// for the caller to flush to cookies. The returned response is the final upstream answer,
// whatever its status; an error means the upstream could not be reached or read.
func (p *AuthProxy) Forward(
	ctx context.Context,
	rc *domainauth.RequestContext,
	req ForwardRequest,
) (*ports.UpstreamResponse, error) {
	if rc == nil {
		rc = &domainauth.RequestContext{}
	}

	refreshed := false
	if rc.RefreshToken != "" && p.accessUnusable(rc.AccessToken) {
		refreshed = true
		if err := p.refresher.AcquireAndRefresh(ctx, rc); err != nil {
			if !errors.Is(err, ErrRefreshFailed) {
				return nil, refreshUnavailable(err)
			}
			rc.MarkCleared()
			return UnauthenticatedResponse(), nil
		}
	}

	resp, err := p.send(ctx, rc, req, 1)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusUnauthorized || refreshed || rc.RefreshToken == "" {
		return resp, nil
	}

	if err := p.refresher.AcquireAndRefresh(ctx, rc); err != nil {
		if !errors.Is(err, ErrRefreshFailed) {
			return nil, refreshUnavailable(err)
		}
		p.logger.InfoContext(ctx, "refresh after 401 failed, clearing credentials",
			"request_id", rc.RequestID, "path", req.Path)
		rc.MarkCleared()
		return resp, nil
	}
	return p.send(ctx, rc, req, 2)
}

func (p *AuthProxy) send(
	ctx context.Context,
	rc *domainauth.RequestContext,
	req ForwardRequest,
	attempt int,
) (*ports.UpstreamResponse, error) {
	up := ports.UpstreamRequest{
		Upstream:    req.Upstream,
		Method:      req.Method,
		Path:        req.Path,
		RawQuery:    req.RawQuery,
		Header:      p.headers(rc, req),
		Body:        req.Body,
		BearerToken: rc.AccessToken,
	}

	start := p.now()
	resp, err := p.upstream.Do(ctx, up)
	call := metrics.UpstreamCall{Upstream: req.Upstream, Attempt: attempt, Duration: p.now().Sub(start), Err: err}
	if resp != nil {
		call.Status = resp.Status
	}
	metrics.EmitUpstream(p.metrics, call)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperrors.Wrap(ctxErr, apperrors.ErrCodeUpstream, "upstream call aborted")
		}
		return nil, apperrors.Upstream(req.Upstream, err)
	}
	return resp, nil
}

// headers builds the identity and scope headers for one attempt. The bearer token itself is
// attached by the upstream client from UpstreamRequest.BearerToken.
func (p *AuthProxy) headers(rc *domainauth.RequestContext, req ForwardRequest) http.Header {
	h := make(http.Header, 6)
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	h.Set("Content-Type", contentType)
	h.Set("Accept", "application/json")
	h.Set(HeaderTenantID, rc.Scope.TenantID)
	h.Set(HeaderSiteID, rc.Scope.SiteID)
	if rc.RequestID != "" {
		h.Set(HeaderRequestID, rc.RequestID)
	}
	if rc.ClientIP != "" {
		h.Set("X-Forwarded-For", rc.ClientIP)
	}
	if rc.AccessToken == "" && req.AllowAnonymous && p.serviceKey != "" {
		h.Set(HeaderServiceKey, p.serviceKey)
	}
	return h
}

// accessUnusable reports whether the access token is missing or is a JWT whose exp has passed.
// The signature is not checked; the upstream remains the authority on validity.
func (p *AuthProxy) accessUnusable(access string) bool {
	if access == "" {
		return true
	}
	token, _, err := p.parser.ParseUnverified(access, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !p.now().Before(exp.Time)
}

// refreshUnavailable reports a refresh that neither succeeded nor was rejected. Credentials
// are kept.
func refreshUnavailable(err error) error {
	if apperrors.GetCode(err) != "" {
		return err
	}
	return apperrors.Wrap(err, apperrors.ErrCodeInternal, "refresh credentials")
}

// UnauthenticatedResponse is the synthesized answer when no usable credential remains.
func UnauthenticatedResponse() *ports.UpstreamResponse {
	return &ports.UpstreamResponse{
		Status: http.StatusUnauthorized,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   []byte(fmt.Sprintf(`{"error":%q}`, string(apperrors.ErrCodeUnauthenticated))),
	}
}
