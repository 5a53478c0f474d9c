package httpx

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/session"
)

// API surfaces that can be enabled independently.
const (
	SurfaceAdmin   = "admin"
	SurfaceVisitor = "visitor"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Auth     AuthAPI
	Proxy    Forwarder
	Store    *session.Store
	Throttle *LoginThrottle
	// Health backs /readyz; nil makes readiness equal liveness.
	Health HealthChecker

	// Surfaces lists the enabled API surfaces (SurfaceAdmin, SurfaceVisitor).
	Surfaces         []string
	AdminResources   []string
	VisitorResources []string
	APIPrefix        string
	MaxBodyBytes     int64

	TrustProxy bool
	CSRF       bool
	Logger     *slog.Logger
}

// NewRouter creates and configures the gateway's HTTP router. Every route except the health
// check runs behind WithRequestContext, so handlers see a bound token store.
func NewRouter(services RouterServices) http.Handler {
	api := http.NewServeMux()

	authHandlers := &AuthHandlers{Svc: services.Auth, Throttle: services.Throttle, Logger: services.Logger}
	registerAuthRoutes(api, authHandlers)
	api.HandleFunc("GET /api/scope", GetScope)
	api.HandleFunc("PUT /api/scope", PutScope)

	proxyHandlers := &ProxyHandlers{
		Proxy:        services.Proxy,
		Admin:        services.AdminResources,
		Visitor:      services.VisitorResources,
		APIPrefix:    services.APIPrefix,
		MaxBodyBytes: services.MaxBodyBytes,
		Logger:       services.Logger,
	}
	if slices.Contains(services.Surfaces, SurfaceAdmin) {
		registerAdminRoutes(api, proxyHandlers)
	}
	if slices.Contains(services.Surfaces, SurfaceVisitor) {
		registerVisitorRoutes(api, proxyHandlers)
	}

	var h http.Handler = api
	if services.CSRF {
		h = CSRFProtection(CSRFConfig{Policy: services.Store.Policy()})(h)
	}
	h = WithRequestContext(RequestContextConfig{Store: services.Store, TrustProxy: services.TrustProxy})(h)

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readinessHandler(services.Health))
	mux.Handle("/api/", h)
	mux.Handle("/", http.HandlerFunc(notFound))
	return mux
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("GET /api/auth/me", h.Me)
	mux.HandleFunc("POST /api/auth/refresh", h.Refresh)
	mux.HandleFunc("POST /api/auth/logout", h.Logout)
}

func registerAdminRoutes(mux *http.ServeMux, h *ProxyHandlers) {
	admin := RequireCredentials()(http.HandlerFunc(h.AdminResource))
	mux.Handle("GET /api/admin/{resource}", admin)
	mux.Handle("POST /api/admin/{resource}", admin)
	for _, method := range []string{http.MethodGet, http.MethodPatch, http.MethodPut, http.MethodDelete} {
		mux.Handle(method+" /api/admin/{resource}/{id}", admin)
	}
	mux.Handle("POST /api/admin/{resource}/{id}/{action}", admin)
}

func registerVisitorRoutes(mux *http.ServeMux, h *ProxyHandlers) {
	visitor := http.HandlerFunc(h.VisitorResource)
	mux.HandleFunc("POST /api/visitor/chat", h.Chat)
	mux.Handle("GET /api/visitor/{resource}", visitor)
	mux.Handle("POST /api/visitor/{resource}", visitor)
	for _, method := range []string{http.MethodGet, http.MethodPatch, http.MethodPut, http.MethodDelete} {
		mux.Handle(method+" /api/visitor/{resource}/{id}", visitor)
	}
	mux.Handle("POST /api/visitor/{resource}/{id}/{action}", visitor)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
}
