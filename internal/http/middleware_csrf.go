package httpx

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/session"
)

const (
	// DefaultCSRFCookieName is the default name for the CSRF cookie.
	DefaultCSRFCookieName = "csrf_token"
	// DefaultCSRFHeaderName is the default name for the CSRF header (canonical form).
	DefaultCSRFHeaderName = "X-Csrf-Token"
	// DefaultCSRFTokenLength is the default length of the CSRF token in bytes.
	DefaultCSRFTokenLength = 32

	csrfCookieMaxAge = 12 * time.Hour
)

// CSRFConfig holds configuration for CSRF protection middleware.
type CSRFConfig struct {
	// CookieName is the name of the CSRF cookie (default: "csrf_token").
	CookieName string
	// HeaderName is the header the browser app echoes the token in (default: "X-Csrf-Token").
	HeaderName string
	// Policy supplies Secure/SameSite/Domain so the CSRF cookie matches the credential cookies.
	Policy session.Policy
	// TokenLength is the length of the CSRF token in bytes (default: 32).
	TokenLength int
}

var errCSRFMismatch = errors.New("csrf token missing or invalid")

// CSRFProtection guards state-changing requests with the double-submit cookie pattern. The
// token cookie is readable by script (scope-cookie attributes) and must be echoed in the header.
// GET, HEAD, OPTIONS, and TRACE requests are exempt.
func CSRFProtection(cfg CSRFConfig) func(http.Handler) http.Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCSRFCookieName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultCSRFHeaderName
	}
	if cfg.TokenLength == 0 {
		cfg.TokenLength = DefaultCSRFTokenLength
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if c, err := r.Cookie(cfg.CookieName); err == nil {
				token = c.Value
			}

			if requiresCSRFValidation(r.Method) {
				header := r.Header.Get(cfg.HeaderName)
				if token == "" || header == "" || subtle.ConstantTimeCompare([]byte(header), []byte(token)) != 1 {
					WriteError(w, ErrorParams{Code: http.StatusForbidden, ErrCode: "csrf_failed", Err: errCSRFMismatch})
					return
				}
			}

			if token == "" {
				fresh, err := generateCSRFToken(cfg.TokenLength)
				if err != nil {
					WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "internal", Err: err})
					return
				}
				http.SetCookie(w, cfg.Policy.Cookie(session.KindScope, cfg.CookieName, fresh, csrfCookieMaxAge))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requiresCSRFValidation returns true if the HTTP method requires CSRF validation.
func requiresCSRFValidation(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}

// generateCSRFToken generates a cryptographically secure random CSRF token.
// It fails closed rather than falling back to a predictable token.
func generateCSRFToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("csrf token generation failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
