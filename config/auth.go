package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// CookieNames holds the names of the four session cookies.
type CookieNames struct {
	Access  string `env:"ACCESS"  envDefault:"access_token"`
	Refresh string `env:"REFRESH" envDefault:"refresh_token"`
	Tenant  string `env:"TENANT"  envDefault:"tenant_id"`
	Site    string `env:"SITE"    envDefault:"site_id"`
}

// AuthConfig groups session cookie and refresh coordination configuration.
type AuthConfig struct {
	Cookies CookieNames `envPrefix:"AUTH_COOKIE_"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request host.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// CookieHashKey enables signing of credential cookies (at least 32 bytes).
	CookieHashKey string `env:"COOKIE_HASH_KEY"`
	// CookieBlockKey additionally encrypts credential cookies (16, 24 or 32 bytes).
	CookieBlockKey string `env:"COOKIE_BLOCK_KEY"`

	// Default lifetimes when the backend does not supply expiries.
	AccessTTL  time.Duration `env:"AUTH_ACCESS_TTL"  envDefault:"15m"`
	RefreshTTL time.Duration `env:"AUTH_REFRESH_TTL" envDefault:"168h"`
	ScopeTTL   time.Duration `env:"AUTH_SCOPE_TTL"   envDefault:"720h"`

	// LoginRatePerMinute limits login attempts per client IP. Zero disables the throttle.
	LoginRatePerMinute int `env:"AUTH_LOGIN_RATE_PER_MINUTE" envDefault:"10"`
	LoginBurst         int `env:"AUTH_LOGIN_BURST"           envDefault:"5"`

	// RefreshLockTimeout is how long a refresh flight may be joined.
	RefreshLockTimeout time.Duration `env:"AUTH_REFRESH_LOCK_TIMEOUT"   envDefault:"10s"`
	// RefreshGraceWindow is how long a rotated pair is served to late callers of the old token.
	RefreshGraceWindow time.Duration `env:"AUTH_REFRESH_GRACE_WINDOW"   envDefault:"15s"`
	// RefreshFlightTimeout bounds the backend refresh call.
	RefreshFlightTimeout time.Duration `env:"AUTH_REFRESH_FLIGHT_TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	a.CookieDomain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(a.CookieDomain)), ".")
	a.Cookies.Access = strings.TrimSpace(a.Cookies.Access)
	a.Cookies.Refresh = strings.TrimSpace(a.Cookies.Refresh)
	a.Cookies.Tenant = strings.TrimSpace(a.Cookies.Tenant)
	a.Cookies.Site = strings.TrimSpace(a.Cookies.Site)

	if a.LoginRatePerMinute < 0 {
		a.LoginRatePerMinute = 0
	}
	if a.LoginBurst < 1 {
		a.LoginBurst = 1
	}
	if a.RefreshLockTimeout <= 0 {
		a.RefreshLockTimeout = 10 * time.Second
	}
	if a.RefreshGraceWindow <= 0 {
		a.RefreshGraceWindow = 15 * time.Second
	}
	if a.RefreshFlightTimeout <= 0 {
		a.RefreshFlightTimeout = 30 * time.Second
	}
}

// Validate rejects cookie settings a browser would refuse or that would leak credentials.
func (a *AuthConfig) Validate() error {
	var errs []error
	if err := validateCookieDomain(a.CookieDomain); err != nil {
		errs = append(errs, err)
	}
	names := map[string]bool{}
	for _, n := range []string{a.Cookies.Access, a.Cookies.Refresh, a.Cookies.Tenant, a.Cookies.Site} {
		if n == "" {
			errs = append(errs, errors.New("cookie names must not be empty"))
			break
		}
		if names[n] {
			errs = append(errs, fmt.Errorf("duplicate cookie name %q", n))
		}
		names[n] = true
	}
	if a.CookieBlockKey != "" && a.CookieHashKey == "" {
		errs = append(errs, errors.New("COOKIE_BLOCK_KEY requires COOKIE_HASH_KEY"))
	}
	return errors.Join(errs...)
}

// validateCookieDomain refuses public suffixes such as "com" or "co.uk"; browsers drop
// such cookies and a misconfiguration would silently log every user out.
func validateCookieDomain(domain string) error {
	if domain == "" {
		return nil
	}
	if strings.ContainsAny(domain, ":/ ") {
		return fmt.Errorf("APP_COOKIE_DOMAIN %q must be a bare host name", domain)
	}
	suffix, _ := publicsuffix.PublicSuffix(domain)
	if suffix == domain {
		return fmt.Errorf("APP_COOKIE_DOMAIN %q is a public suffix", domain)
	}
	return nil
}

// ScopeConfig holds the environment-level tenant and site defaults.
type ScopeConfig struct {
	DefaultTenantID string `env:"DEFAULT_TENANT_ID"`
	DefaultSiteID   string `env:"DEFAULT_SITE_ID"`
}

// Sanitize trims the defaults.
func (s *ScopeConfig) Sanitize() {
	s.DefaultTenantID = strings.TrimSpace(s.DefaultTenantID)
	s.DefaultSiteID = strings.TrimSpace(s.DefaultSiteID)
}
