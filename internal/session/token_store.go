package session

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/securecookie"

	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
)

// ErrIncompletePair is returned when a credential pair lacks one of its tokens.
var ErrIncompletePair = errors.New("credential pair must carry both access and refresh tokens")

// StoreOptions configures a Store.
type StoreOptions struct {
	Policy Policy
	Names  Names
	// DefaultScope is the environment-level scope used when no scope cookie is present.
	DefaultScope domainauth.Scope
	// HashKey enables sealing of credential cookies; BlockKey additionally encrypts them.
	HashKey  []byte
	BlockKey []byte
}

// Store holds cookie configuration shared by all requests. Bind it to a request to read or
// write cookies.
type Store struct {
	policy   Policy
	names    Names
	defaults domainauth.Scope
	codec    *securecookie.SecureCookie
}

// NewStore validates opts and creates a Store.
func NewStore(opts StoreOptions) (*Store, error) {
	s := &Store{
		policy:   opts.Policy,
		names:    opts.Names.withDefaults(),
		defaults: opts.DefaultScope,
	}
	if len(opts.HashKey) == 0 {
		if len(opts.BlockKey) > 0 {
			return nil, errors.New("cookie block key requires a hash key")
		}
		return s, nil
	}
	if len(opts.HashKey) < 32 {
		return nil, fmt.Errorf("cookie hash key must be at least 32 bytes, got %d", len(opts.HashKey))
	}
	switch len(opts.BlockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("cookie block key must be 16, 24 or 32 bytes, got %d", len(opts.BlockKey))
	}
	var block []byte
	if len(opts.BlockKey) > 0 {
		block = opts.BlockKey
	}
	codec := securecookie.New(opts.HashKey, block)
	// Expiry follows the cookie Max-Age and the backend, never the seal timestamp.
	codec.MaxAge(0)
	codec.SetSerializer(securecookie.NopEncoder{})
	s.codec = codec
	return s, nil
}

// Names returns the configured cookie names.
func (s *Store) Names() Names { return s.names }

// Policy returns the cookie policy.
func (s *Store) Policy() Policy { return s.policy }

// Sealed reports whether credential cookies are sealed.
func (s *Store) Sealed() bool { return s.codec != nil }

// Bind returns a TokenStore reading from r and writing Set-Cookie headers to w.
// Either may be nil for read-only or write-only use.
func (s *Store) Bind(w http.ResponseWriter, r *http.Request) *TokenStore {
	return &TokenStore{store: s, w: w, r: r, written: make(map[string]string)}
}

// TokenStore is a per-request view of the credential and scope cookies.
// Values written during the request shadow the incoming cookies.
type TokenStore struct {
	store   *Store
	w       http.ResponseWriter
	r       *http.Request
	written map[string]string
}

// AccessToken returns the access token or "" when absent.
func (t *TokenStore) AccessToken() string { return t.credential(t.store.names.Access) }

// RefreshToken returns the refresh token or "" when absent.
func (t *TokenStore) RefreshToken() string { return t.credential(t.store.names.Refresh) }

// TenantID resolves the tenant: cookie, then configured default, then the fallback constant.
func (t *TokenStore) TenantID() string { return t.Scope().TenantID }

// SiteID resolves the site the same way as TenantID.
func (t *TokenStore) SiteID() string { return t.Scope().SiteID }

// Scope returns the resolved tenant/site scope.
func (t *TokenStore) Scope() domainauth.Scope {
	cookie := domainauth.Scope{
		TenantID: t.raw(t.store.names.Tenant),
		SiteID:   t.raw(t.store.names.Site),
	}
	return domainauth.ResolveScope(cookie, t.store.defaults)
}

// SetCredentialPair writes both credential cookies. A pair missing either token is refused
// and nothing is written.
func (t *TokenStore) SetCredentialPair(pair domainauth.CredentialPair) error {
	if !pair.Complete() {
		return ErrIncompletePair
	}
	access, err := t.seal(t.store.names.Access, pair.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := t.seal(t.store.names.Refresh, pair.RefreshToken)
	if err != nil {
		return err
	}
	p := t.store.policy
	t.set(p.Cookie(KindAccess, t.store.names.Access, access, pair.AccessTTL()), pair.AccessToken)
	t.set(p.Cookie(KindRefresh, t.store.names.Refresh, refresh, pair.RefreshTTL()), pair.RefreshToken)
	return nil
}

// ClearCredentials deletes both credential cookies.
func (t *TokenStore) ClearCredentials() {
	p := t.store.policy
	t.set(p.Expired(KindAccess, t.store.names.Access), "")
	t.set(p.Expired(KindRefresh, t.store.names.Refresh), "")
}

// SetScope writes both scope cookies. Identifiers must be valid scope IDs.
func (t *TokenStore) SetScope(scope domainauth.Scope) error {
	if !domainauth.ValidScopeID(scope.TenantID) || !domainauth.ValidScopeID(scope.SiteID) {
		return fmt.Errorf("invalid scope %q/%q", scope.TenantID, scope.SiteID)
	}
	p := t.store.policy
	t.set(p.Cookie(KindScope, t.store.names.Tenant, scope.TenantID, 0), scope.TenantID)
	t.set(p.Cookie(KindScope, t.store.names.Site, scope.SiteID, 0), scope.SiteID)
	return nil
}

// Flush writes the auth outcome recorded on rc: a rotated pair replaces both cookies,
// a cleared context deletes them.
func (t *TokenStore) Flush(rc *domainauth.RequestContext) error {
	if rc == nil {
		return nil
	}
	switch {
	case rc.Cleared:
		t.ClearCredentials()
	case rc.Rotated != nil:
		return t.SetCredentialPair(*rc.Rotated)
	}
	return nil
}

// RequestContext builds the per-request auth value object from the current cookies.
func (t *TokenStore) RequestContext(clientIP, requestID string) *domainauth.RequestContext {
	return &domainauth.RequestContext{
		AccessToken:  t.AccessToken(),
		RefreshToken: t.RefreshToken(),
		Scope:        t.Scope(),
		ClientIP:     clientIP,
		RequestID:    requestID,
	}
}

func (t *TokenStore) credential(name string) string {
	if v, ok := t.written[name]; ok {
		return v
	}
	raw := t.raw(name)
	if raw == "" || t.store.codec == nil {
		return raw
	}
	var plain []byte
	if err := t.store.codec.Decode(name, raw, &plain); err != nil {
		// Tampered, expired or sealed with another key: treat as absent.
		return ""
	}
	return string(plain)
}

func (t *TokenStore) raw(name string) string {
	if v, ok := t.written[name]; ok {
		return v
	}
	if t.r == nil {
		return ""
	}
	c, err := t.r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (t *TokenStore) seal(name, value string) (string, error) {
	if t.store.codec == nil {
		return value, nil
	}
	enc, err := t.store.codec.Encode(name, []byte(value))
	if err != nil {
		return "", fmt.Errorf("seal %s cookie: %w", name, err)
	}
	return enc, nil
}

func (t *TokenStore) set(c *http.Cookie, plain string) {
	t.written[c.Name] = plain
	if t.w != nil {
		http.SetCookie(t.w, c)
	}
}
