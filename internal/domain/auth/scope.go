package auth

import "regexp"

// FallbackScopeID is the last-resort tenant/site identifier when neither a cookie
// nor an environment default is available.
const FallbackScopeID = "default"

var scopeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Scope identifies the tenant/site deployment a request applies to.
type Scope struct {
	TenantID string `json:"tenant_id"`
	SiteID   string `json:"site_id"`
}

// ValidScopeID reports whether id is an acceptable tenant or site identifier.
func ValidScopeID(id string) bool {
	return scopeIDPattern.MatchString(id)
}

// ResolveScope applies the resolution order cookie -> environment default -> FallbackScopeID
// independently to tenant and site. Invalid values at any tier are skipped.
func ResolveScope(cookie, defaults Scope) Scope {
	return Scope{
		TenantID: firstValid(cookie.TenantID, defaults.TenantID),
		SiteID:   firstValid(cookie.SiteID, defaults.SiteID),
	}
}

func firstValid(candidates ...string) string {
	for _, c := range candidates {
		if ValidScopeID(c) {
			return c
		}
	}
	return FallbackScopeID
}
