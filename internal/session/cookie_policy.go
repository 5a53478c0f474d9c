// Package session owns the browser-facing side of authentication: which cookies exist,
// how they are secured, and how credential pairs are read from and written to them.
package session

import (
	"net/http"
	"time"

	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
)

// Kind identifies the class of a cookie; attributes are derived from it.
type Kind int

const (
	KindAccess Kind = iota
	KindRefresh
	KindScope
)

func (k Kind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindRefresh:
		return "refresh"
	case KindScope:
		return "scope"
	default:
		return "unknown"
	}
}

// Names holds the cookie names used by the gateway.
type Names struct {
	Access  string
	Refresh string
	Tenant  string
	Site    string
}

// DefaultNames returns the standard cookie names.
func DefaultNames() Names {
	return Names{
		Access:  "access_token",
		Refresh: "refresh_token",
		Tenant:  "tenant_id",
		Site:    "site_id",
	}
}

func (n Names) withDefaults() Names {
	d := DefaultNames()
	if n.Access == "" {
		n.Access = d.Access
	}
	if n.Refresh == "" {
		n.Refresh = d.Refresh
	}
	if n.Tenant == "" {
		n.Tenant = d.Tenant
	}
	if n.Site == "" {
		n.Site = d.Site
	}
	return n
}

// Policy derives cookie security attributes. The zero value is a valid development policy.
type Policy struct {
	Production bool
	// Domain is optional; empty means host-only cookies.
	Domain string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ScopeTTL   time.Duration
}

// DefaultMaxAge returns the lifetime used for kind when the backend does not supply one.
func (p Policy) DefaultMaxAge(kind Kind) time.Duration {
	switch kind {
	case KindAccess:
		if p.AccessTTL > 0 {
			return p.AccessTTL
		}
		return domainauth.DefaultAccessTTL
	case KindRefresh:
		if p.RefreshTTL > 0 {
			return p.RefreshTTL
		}
		return domainauth.DefaultRefreshTTL
	default:
		if p.ScopeTTL > 0 {
			return p.ScopeTTL
		}
		return domainauth.DefaultScopeTTL
	}
}

// Cookie builds a cookie of the given kind. A non-positive maxAge selects the kind default.
func (p Policy) Cookie(kind Kind, name, value string, maxAge time.Duration) *http.Cookie {
	if maxAge <= 0 {
		maxAge = p.DefaultMaxAge(kind)
	}
	c := p.base(kind, name)
	c.Value = value
	c.MaxAge = int(maxAge / time.Second)
	return c
}

// Expired builds a deletion cookie for name carrying the same attributes it was set with.
func (p Policy) Expired(kind Kind, name string) *http.Cookie {
	c := p.base(kind, name)
	c.MaxAge = -1
	return c
}

func (p Policy) base(kind Kind, name string) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	if p.Production {
		sameSite = http.SameSiteStrictMode
	}
	return &http.Cookie{
		Name:     name,
		Path:     "/",
		Domain:   p.Domain,
		HttpOnly: kind != KindScope,
		Secure:   p.Production,
		SameSite: sameSite,
	}
}
