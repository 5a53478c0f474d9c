package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - admin",
			input:    "admin",
			expected: map[ServiceMode]bool{ServiceModeAdmin: true},
		},
		{
			name:     "both surfaces with spaces and case",
			input:    " Admin , visitor ",
			expected: map[ServiceMode]bool{ServiceModeAdmin: true, ServiceModeVisitor: true},
		},
		{
			name:     "duplicates collapse",
			input:    "visitor,visitor",
			expected: map[ServiceMode]bool{ServiceModeVisitor: true},
		},
		{name: "empty string", input: "", expectError: true},
		{name: "only commas", input: ",,", expectError: true},
		{name: "unknown surface", input: "admin,kiosk", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	cfg := AppConfig{Services: "visitor"}
	if cfg.IsAdminEnabled() {
		t.Errorf("IsAdminEnabled(): expected false")
	}
	if !cfg.IsVisitorEnabled() {
		t.Errorf("IsVisitorEnabled(): expected true")
	}

	cfg = AppConfig{Services: "invalid-service"}
	if cfg.IsAdminEnabled() || cfg.IsVisitorEnabled() {
		t.Errorf("invalid config should enable nothing")
	}
}

func TestAppConfig_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("NODE_ENV", "")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Production {
		t.Errorf("expected development by default")
	}
	if cfg.Auth.Cookies != (CookieNames{Access: "access_token", Refresh: "refresh_token", Tenant: "tenant_id", Site: "site_id"}) {
		t.Errorf("unexpected cookie names: %#v", cfg.Auth.Cookies)
	}
	if cfg.Auth.AccessTTL != 15*time.Minute || cfg.Auth.RefreshTTL != 7*24*time.Hour || cfg.Auth.ScopeTTL != 30*24*time.Hour {
		t.Errorf("unexpected ttls: %v %v %v", cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL, cfg.Auth.ScopeTTL)
	}
	if cfg.Auth.LoginRatePerMinute != 10 || cfg.Auth.LoginBurst != 5 {
		t.Errorf("unexpected login throttle: %d/%d", cfg.Auth.LoginRatePerMinute, cfg.Auth.LoginBurst)
	}
	if cfg.Backend.Timeout != 30*time.Second {
		t.Errorf("unexpected backend timeout: %v", cfg.Backend.Timeout)
	}
	if cfg.Backend.MaxResponseBytes != 10<<20 {
		t.Errorf("unexpected max response bytes: %d", cfg.Backend.MaxResponseBytes)
	}
	if cfg.Backend.APIPrefix != "/api/v1" {
		t.Errorf("unexpected api prefix: %q", cfg.Backend.APIPrefix)
	}
	if cfg.Redis.Enabled() {
		t.Errorf("redis should be disabled without a URI")
	}
	if len(cfg.Resources.Admin) != 12 {
		t.Errorf("expected 12 admin resources, got %v", cfg.Resources.Admin)
	}
	if !reflect.DeepEqual(cfg.Resources.Visitor, []string{"achievements", "quests", "profile", "feedback", "sites", "checkins"}) {
		t.Errorf("unexpected visitor resources: %v", cfg.Resources.Visitor)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestAppConfig_ParseEnv(t *testing.T) {
	t.Setenv("AUTH_COOKIE_ACCESS", "yt_at")
	t.Setenv("APP_COOKIE_DOMAIN", ".Yantian.Example.org")
	t.Setenv("AUTH_LOGIN_RATE_PER_MINUTE", "-3")
	t.Setenv("BACKEND_API_PREFIX", "v2/")
	t.Setenv("CORE_BACKEND_URL", "https://core.internal/")
	t.Setenv("REDIS_URI", "redis:6379")
	t.Setenv("SECRETS_ENCRYPTION_KEY", " k ")
	t.Setenv("ADMIN_RESOURCES", "Quests, /alerts/ ,quests,")
	t.Setenv("HTTP_COMPRESSION_LEVEL", "42")
	t.Setenv("LOG_LEVEL", "verbose")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Auth.Cookies.Access != "yt_at" {
		t.Errorf("access cookie name: %q", cfg.Auth.Cookies.Access)
	}
	if cfg.Auth.CookieDomain != "yantian.example.org" {
		t.Errorf("cookie domain: %q", cfg.Auth.CookieDomain)
	}
	if cfg.Auth.LoginRatePerMinute != 0 {
		t.Errorf("negative rate should disable the throttle, got %d", cfg.Auth.LoginRatePerMinute)
	}
	if cfg.Backend.APIPrefix != "/v2" {
		t.Errorf("api prefix: %q", cfg.Backend.APIPrefix)
	}
	if cfg.Backend.CoreURL != "https://core.internal" {
		t.Errorf("core url: %q", cfg.Backend.CoreURL)
	}
	if !cfg.Redis.Enabled() || cfg.SecretsEncryptionKey != "k" {
		t.Errorf("redis: enabled=%v key=%q", cfg.Redis.Enabled(), cfg.SecretsEncryptionKey)
	}
	if !reflect.DeepEqual(cfg.Resources.Admin, []string{"quests", "alerts"}) {
		t.Errorf("admin resources: %v", cfg.Resources.Admin)
	}
	if cfg.HTTP.CompressionLevel != 9 {
		t.Errorf("compression level should clamp to 9, got %d", cfg.HTTP.CompressionLevel)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("unknown log level should fall back to info, got %q", cfg.Observability.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestAppConfig_DetectProduction(t *testing.T) {
	tests := []struct {
		appEnv, nodeEnv string
		want            bool
	}{
		{"", "", false},
		{"production", "", true},
		{"", "production", true},
		{"PROD", "", true},
		{"staging", "development", false},
	}
	for _, tt := range tests {
		t.Run(tt.appEnv+"/"+tt.nodeEnv, func(t *testing.T) {
			t.Setenv("APP_ENV", tt.appEnv)
			t.Setenv("NODE_ENV", tt.nodeEnv)
			cfg := AppConfig{}
			cfg.Sanitize()
			if cfg.Production != tt.want {
				t.Errorf("Production = %v, want %v", cfg.Production, tt.want)
			}
		})
	}
}

func TestAuthConfig_CookieDomain(t *testing.T) {
	tests := []struct {
		domain  string
		wantErr bool
	}{
		{"", false},
		{"yantian.example.org", false},
		{"example.co.uk", false},
		{"com", true},
		{"co.uk", true},
		{"github.io", true},
		{"example.org:443", true},
	}
	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			a := AuthConfig{CookieDomain: tt.domain, Cookies: CookieNames{Access: "a", Refresh: "r", Tenant: "t", Site: "s"}}
			err := a.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAppConfig_ValidateErrors(t *testing.T) {
	cfg := AppConfig{
		Services: "kiosk",
		Auth: AuthConfig{
			Cookies:        CookieNames{Access: "same", Refresh: "same", Tenant: "t", Site: "s"},
			CookieBlockKey: "0123456789abcdef",
		},
		Backend: BackendConfig{CoreURL: "ftp://core"},
		Redis:   RedisConfig{URI: "redis:6379"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"kiosk", "duplicate cookie name", "COOKIE_BLOCK_KEY", "unsupported scheme", "SECRETS_ENCRYPTION_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestAppConfig_Redacted(t *testing.T) {
	cfg := AppConfig{
		SecretsEncryptionKey: "s1",
		Auth:                 AuthConfig{CookieHashKey: "h", CookieBlockKey: ""},
		Backend:              BackendConfig{ServiceKey: "svc"},
		Redis:                RedisConfig{Password: "pw"},
	}
	r := cfg.Redacted()
	if r.SecretsEncryptionKey != redactedMarker || r.Auth.CookieHashKey != redactedMarker ||
		r.Backend.ServiceKey != redactedMarker || r.Redis.Password != redactedMarker {
		t.Errorf("secrets not redacted: %#v", r)
	}
	if r.Auth.CookieBlockKey != "" {
		t.Errorf("empty secrets stay empty")
	}
	if cfg.Backend.ServiceKey != "svc" {
		t.Errorf("original must be untouched")
	}
}
