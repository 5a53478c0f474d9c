package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// BackendConfig points the gateway at the upstream services.
type BackendConfig struct {
	CoreURL string `env:"CORE_BACKEND_URL"    envDefault:"http://localhost:8000"`
	AIURL   string `env:"AI_ORCHESTRATOR_URL" envDefault:""`

	Timeout          time.Duration `env:"BACKEND_TIMEOUT"            envDefault:"30s"`
	MaxResponseBytes int64         `env:"BACKEND_MAX_RESPONSE_BYTES" envDefault:"10485760"`

	// TokenEnvelope is a JMESPath expression for the object holding token fields, e.g. "data".
	TokenEnvelope string `env:"BACKEND_TOKEN_ENVELOPE"`

	// ServiceKey is sent on anonymous visitor calls.
	ServiceKey string `env:"INTERNAL_API_KEY"`

	// APIPrefix is prepended to resource paths on the core backend.
	APIPrefix string `env:"BACKEND_API_PREFIX" envDefault:"/api/v1"`
}

// Sanitize applies guardrails to backend configuration values.
func (b *BackendConfig) Sanitize() {
	b.CoreURL = strings.TrimRight(strings.TrimSpace(b.CoreURL), "/")
	b.AIURL = strings.TrimRight(strings.TrimSpace(b.AIURL), "/")
	b.TokenEnvelope = strings.TrimSpace(b.TokenEnvelope)
	b.ServiceKey = strings.TrimSpace(b.ServiceKey)
	if b.Timeout <= 0 {
		b.Timeout = 30 * time.Second
	}
	if b.MaxResponseBytes <= 0 {
		b.MaxResponseBytes = 10 << 20
	}
	b.APIPrefix = strings.TrimRight(strings.TrimSpace(b.APIPrefix), "/")
	if b.APIPrefix != "" && !strings.HasPrefix(b.APIPrefix, "/") {
		b.APIPrefix = "/" + b.APIPrefix
	}
}

// Validate checks the upstream URLs.
func (b *BackendConfig) Validate() error {
	if b.CoreURL == "" {
		return errors.New("CORE_BACKEND_URL is required")
	}
	if err := validateUpstreamURL("CORE_BACKEND_URL", b.CoreURL); err != nil {
		return err
	}
	if b.AIURL != "" {
		return validateUpstreamURL("AI_ORCHESTRATOR_URL", b.AIURL)
	}
	return nil
}

func validateUpstreamURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: unsupported scheme %q", key, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: missing host", key)
	}
	return nil
}
