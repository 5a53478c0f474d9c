package httpx

import (
	"net/http"
	"strings"

	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
	apperrors "github.com/HenryT2023/YT-AI-Platform-sub000/internal/errors"
)

// GetScope returns the resolved tenant/site scope.
// GET /api/scope.
func GetScope(w http.ResponseWriter, r *http.Request) {
	st, ok := stateOrError(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, st.rc.Scope)
}

// PutScope writes the scope cookies.
// PUT /api/scope {tenant_id, site_id}.
func PutScope(w http.ResponseWriter, r *http.Request) {
	st, ok := stateOrError(w, r)
	if !ok {
		return
	}
	var in domainauth.Scope
	if !DecodeJSON(w, r, &in) {
		return
	}
	scope := domainauth.Scope{
		TenantID: strings.TrimSpace(in.TenantID),
		SiteID:   strings.TrimSpace(in.SiteID),
	}
	if !domainauth.ValidScopeID(scope.TenantID) {
		WriteAppError(w, apperrors.ValidationField("tenant_id", "tenant_id must match [A-Za-z0-9_-]{1,64}"))
		return
	}
	if !domainauth.ValidScopeID(scope.SiteID) {
		WriteAppError(w, apperrors.ValidationField("site_id", "site_id must match [A-Za-z0-9_-]{1,64}"))
		return
	}
	if err := st.tokens.SetScope(scope); err != nil {
		WriteAppError(w, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid scope"))
		return
	}
	st.rc.Scope = scope
	WriteJSON(w, http.StatusOK, scope)
}
