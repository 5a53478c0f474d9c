package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: cookie, session and refresh configuration
//   - backend.go: upstream service configuration
//   - http.go: HTTP server configuration
//   - redis.go: optional shared refresh lock
//   - services.go: enabled API surfaces and resource allowlists
type AppConfig struct {
	// Production controls cookie hardening (Secure, SameSite=Strict).
	// Detected from APP_ENV or NODE_ENV when not set explicitly.
	Production bool `env:"PRODUCTION" envDefault:"false"`

	// SecretsEncryptionKey encrypts credential pairs shared through Redis.
	// Required when Redis is enabled.
	SecretsEncryptionKey string `env:"SECRETS_ENCRYPTION_KEY"`

	Auth    AuthConfig
	Backend BackendConfig
	Scope   ScopeConfig
	Redis   RedisConfig `envPrefix:"REDIS_"`
	HTTP    HTTPConfig

	// Services is a comma list of API surfaces to mount (admin, visitor).
	Services string `env:"SERVICES" envDefault:"admin,visitor"`

	Resources ResourcesConfig

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.detectProduction()

	c.Auth.Sanitize()
	c.Backend.Sanitize()
	c.Scope.Sanitize()
	c.Redis.Sanitize()
	c.HTTP.Sanitize()
	c.Resources.Sanitize()
	c.Observability.Sanitize()
	c.SecretsEncryptionKey = strings.TrimSpace(c.SecretsEncryptionKey)
}

// Validate reports configuration that cannot be repaired by Sanitize.
func (c *AppConfig) Validate() error {
	var errs []error
	if _, err := c.GetEnabledServices(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Auth.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Backend.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Redis.Enabled() && c.SecretsEncryptionKey == "" {
		errs = append(errs, errors.New("SECRETS_ENCRYPTION_KEY is required when REDIS_URI is set"))
	}
	return errors.Join(errs...)
}

// detectProduction checks APP_ENV then NODE_ENV when PRODUCTION is not set.
// NODE_ENV is kept for parity with frontend tooling deployments.
func (c *AppConfig) detectProduction() {
	if c.Production {
		return
	}
	for _, key := range []string{"APP_ENV", "NODE_ENV"} {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "production", "prod":
			c.Production = true
			return
		}
	}
}

// GetEnabledServices returns the enabled API surfaces based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	services, err := ParseServices(c.Services)
	if err != nil {
		return nil, fmt.Errorf("SERVICES: %w", err)
	}
	return services, nil
}

// IsAdminEnabled returns true if the admin console API is mounted.
func (c *AppConfig) IsAdminEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeAdmin]
}

// IsVisitorEnabled returns true if the visitor API is mounted.
func (c *AppConfig) IsVisitorEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeVisitor]
}

// Redacted returns a copy safe to print: secrets are replaced by a marker.
func (c AppConfig) Redacted() AppConfig {
	c.SecretsEncryptionKey = redact(c.SecretsEncryptionKey)
	c.Auth.CookieHashKey = redact(c.Auth.CookieHashKey)
	c.Auth.CookieBlockKey = redact(c.Auth.CookieBlockKey)
	c.Backend.ServiceKey = redact(c.Backend.ServiceKey)
	c.Redis.Password = redact(c.Redis.Password)
	c.Redis.SentinelPassword = redact(c.Redis.SentinelPassword)
	return c
}

const redactedMarker = "[redacted]"

func redact(v string) string {
	if v == "" {
		return ""
	}
	return redactedMarker
}
