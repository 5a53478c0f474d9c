package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"slices"
	"strings"

	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/ports"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/service"
)

// Forwarder sends one logical request upstream on behalf of a request context.
type Forwarder interface {
	Forward(ctx context.Context, rc *domainauth.RequestContext, req service.ForwardRequest) (*ports.UpstreamResponse, error)
}

var _ Forwarder = (*service.AuthProxy)(nil)

// DefaultAPIPrefix is the core-backend path prefix resource routes are mapped onto.
const DefaultAPIPrefix = "/api/v1"

var pathSegmentPattern = regexp.MustCompile(`^[A-Za-z0-9._:~-]{1,128}$`)

// ProxyHandlers forwards allowlisted resource routes to core-backend and chat to ai-orchestrator.
type ProxyHandlers struct {
	Proxy Forwarder
	// Admin and Visitor are the resource allowlists for each surface.
	Admin   []string
	Visitor []string
	// APIPrefix is prepended to every core-backend resource path (default DefaultAPIPrefix).
	APIPrefix    string
	MaxBodyBytes int64
	Logger       *slog.Logger
}

func (h *ProxyHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// AdminResource forwards /api/admin/{resource}[/{id}[/{action}]]. Credentials are required upstream of
// this handler by RequireCredentials.
func (h *ProxyHandlers) AdminResource(w http.ResponseWriter, r *http.Request) {
	h.resource(w, r, h.Admin, false)
}

// VisitorResource forwards /api/visitor/{resource}[/{id}[/{action}]]; anonymous callers fall
// back to the internal service key.
func (h *ProxyHandlers) VisitorResource(w http.ResponseWriter, r *http.Request) {
	h.resource(w, r, h.Visitor, true)
}

// Chat forwards the visitor chat to ai-orchestrator.
// POST /api/visitor/chat.
func (h *ProxyHandlers) Chat(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, service.ForwardRequest{
		Upstream:       ports.UpstreamAI,
		Method:         http.MethodPost,
		Path:           "/chat",
		RawQuery:       r.URL.RawQuery,
		AllowAnonymous: true,
	})
}

func (h *ProxyHandlers) resource(w http.ResponseWriter, r *http.Request, allow []string, anonymous bool) {
	upstreamPath, ok := h.resourcePath(r, allow)
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errUnknownResource})
		return
	}
	h.forward(w, r, service.ForwardRequest{
		Upstream:       ports.UpstreamCore,
		Method:         r.Method,
		Path:           upstreamPath,
		RawQuery:       r.URL.RawQuery,
		AllowAnonymous: anonymous,
	})
}

func (h *ProxyHandlers) forward(w http.ResponseWriter, r *http.Request, req service.ForwardRequest) {
	st, ok := stateOrError(w, r)
	if !ok {
		return
	}
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := readBody(w, r, limit)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	req.Body = body
	req.ContentType = r.Header.Get("Content-Type")

	resp, err := h.Proxy.Forward(r.Context(), st.rc, req)
	flushState(r.Context(), h.logger(), st)
	if err != nil {
		h.logger().WarnContext(r.Context(), "proxy request failed",
			"request_id", st.rc.RequestID,
			"upstream", req.Upstream,
			"path", req.Path,
			"error", err)
		WriteAppError(w, err)
		return
	}
	WriteUpstream(w, resp)
}

// resourcePath maps the route's path values onto the upstream path, or reports false when the
// resource is not allowlisted or a segment is malformed.
func (h *ProxyHandlers) resourcePath(r *http.Request, allow []string) (string, bool) {
	resource := r.PathValue("resource")
	if !slices.Contains(allow, resource) {
		return "", false
	}
	segments := []string{h.prefix(), resource}
	for _, key := range []string{"id", "action"} {
		v := r.PathValue(key)
		if v == "" {
			break
		}
		if !pathSegmentPattern.MatchString(v) || v == "." || v == ".." {
			return "", false
		}
		segments = append(segments, v)
	}
	return path.Join(segments...), true
}

func (h *ProxyHandlers) prefix() string {
	p := strings.TrimSpace(h.APIPrefix)
	if p == "" {
		return DefaultAPIPrefix
	}
	return "/" + strings.Trim(p, "/")
}

var errUnknownResource = errors.New("unknown resource")
