package httpx

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/ports"
)

const (
	healthResponse    = `{"status":"ok"}`
	readinessTimeout  = 2 * time.Second
	statusUnavailable = "unavailable"
)

// HealthChecker probes an upstream's health endpoint.
type HealthChecker interface {
	Health(ctx context.Context, upstream string) error
}

// healthHandler reports liveness. It never touches upstreams.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// readinessHandler reports ready only while core-backend answers its health check.
func readinessHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			healthHandler(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := checker.Health(ctx, ports.UpstreamCore); err != nil {
			w.Header().Set("Cache-Control", "no-store")
			WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   statusUnavailable,
				"upstream": ports.UpstreamCore,
			})
			return
		}
		healthHandler(w, r)
	}
}
