package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HenryT2023/YT-AI-Platform-sub000/config"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/adapters/backend"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/adapters/memory"
	redisadapter "github.com/HenryT2023/YT-AI-Platform-sub000/internal/adapters/redis"
	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
	httpx "github.com/HenryT2023/YT-AI-Platform-sub000/internal/http"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/observability/statsd"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/service"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/session"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Backend     *backend.Client
	Coordinator *service.RefreshCoordinator
	Proxy       *service.AuthProxy
	Auth        *service.AuthService
	Store       *session.Store
	Throttle    *httpx.LoginThrottle
	Metrics     *statsd.Client
}

// Close releases resources owned by the container.
func (c *ServiceContainer) Close() error {
	if c == nil {
		return nil
	}
	return c.Metrics.Close()
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
	// HTTPClient overrides the backend transport (tests).
	HTTPClient *http.Client
}

// NewServices wires the backend client, refresh coordinator, auth proxy and session store.
func NewServices(deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service deps require a config")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := buildMetrics(logger, cfg.Observability.Metrics)

	client, err := backend.New(backend.Options{
		CoreURL:          cfg.Backend.CoreURL,
		AIURL:            cfg.Backend.AIURL,
		Timeout:          cfg.Backend.Timeout,
		MaxResponseBytes: cfg.Backend.MaxResponseBytes,
		TokenEnvelope:    cfg.Backend.TokenEnvelope,
		HTTPClient:       deps.HTTPClient,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create backend client: %w", err)
	}

	coord, err := service.NewRefreshCoordinator(service.RefreshCoordinatorOptions{
		Backend: client,
		Shared:  newSharedRefresh(deps.RedisClient, cfg, logger),
		Grace:   memory.NewRefreshResultCache(),
		Config: service.RefreshConfig{
			LockTimeout:   cfg.Auth.RefreshLockTimeout,
			GraceWindow:   cfg.Auth.RefreshGraceWindow,
			FlightTimeout: cfg.Auth.RefreshFlightTimeout,
		},
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create refresh coordinator: %w", err)
	}

	proxy, err := service.NewAuthProxy(service.AuthProxyOptions{
		Upstream:   client,
		Refresher:  coord,
		ServiceKey: cfg.Backend.ServiceKey,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create auth proxy: %w", err)
	}

	authSvc, err := service.NewAuthService(service.AuthServiceOptions{
		Backend:   client,
		Refresher: coord,
		Proxy:     proxy,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create auth service: %w", err)
	}

	store, err := newSessionStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	return &ServiceContainer{
		Backend:     client,
		Coordinator: coord,
		Proxy:       proxy,
		Auth:        authSvc,
		Store:       store,
		Throttle: httpx.NewLoginThrottle(httpx.LoginThrottleOptions{
			PerMinute: cfg.Auth.LoginRatePerMinute,
			Burst:     cfg.Auth.LoginBurst,
			Metrics:   metrics,
		}),
		Metrics: metrics,
	}, nil
}

// buildMetrics returns a statsd client; a failed dial degrades to a disabled client.
func buildMetrics(logger *slog.Logger, cfg config.ObservabilityMetricsConfig) *statsd.Client {
	client, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.IsEnabled(),
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		client, _ = statsd.NewClient(statsd.Config{Prefix: cfg.Prefix, Logger: logger})
	}
	return client
}

// newSharedRefresh extends refresh coordination across instances when Redis is available.
func newSharedRefresh(client redis.UniversalClient, cfg *config.AppConfig, logger *slog.Logger) service.SharedRefresh {
	if client == nil {
		return service.SharedRefresh{}
	}
	prefix := cfg.Redis.KeyPrefix
	return service.SharedRefresh{
		Lock: redisadapter.NewRefreshLockWithPrefix(client, prefix+"refresh:lock:"),
		Results: redisadapter.NewRefreshResultCacheWithPrefix(
			client,
			CreateSealer(cfg.SecretsEncryptionKey, logger),
			prefix+"refresh:result:",
		),
	}
}

func newSessionStore(cfg *config.AppConfig) (*session.Store, error) {
	return session.NewStore(session.StoreOptions{
		Policy: session.Policy{
			Production: cfg.Production,
			Domain:     cfg.Auth.CookieDomain,
			AccessTTL:  cfg.Auth.AccessTTL,
			RefreshTTL: cfg.Auth.RefreshTTL,
			ScopeTTL:   cfg.Auth.ScopeTTL,
		},
		Names: session.Names{
			Access:  cfg.Auth.Cookies.Access,
			Refresh: cfg.Auth.Cookies.Refresh,
			Tenant:  cfg.Auth.Cookies.Tenant,
			Site:    cfg.Auth.Cookies.Site,
		},
		DefaultScope: domainauth.Scope{
			TenantID: cfg.Scope.DefaultTenantID,
			SiteID:   cfg.Scope.DefaultSiteID,
		},
		HashKey:  []byte(cfg.Auth.CookieHashKey),
		BlockKey: []byte(cfg.Auth.CookieBlockKey),
	})
}

// ServiceOrchestrationConfig contains dependencies for running the gateway.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown starts the HTTP server and blocks until a shutdown signal is
// received or the server fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil || cfg.Services == nil {
		return errors.New("service orchestration config missing AppConfig or services")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	errCh := make(chan error, 1)
	server, err := StartHTTPServer(&HTTPServerConfig{
		Config:   cfg.Config,
		Services: cfg.Services,
		Logger:   logger,
		ErrCh:    errCh,
	})
	if err != nil {
		return err
	}

	return waitForShutdown(shutdownConfig{
		errCh:      errCh,
		httpServer: server,
		timeout:    cfg.Config.HTTP.ShutdownTimeout,
		logger:     logger,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	errCh      <-chan error
	httpServer *http.Server
	timeout    time.Duration
	logger     *slog.Logger
}

// waitForShutdown waits for shutdown signal or server error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

func gracefulStop(cfg shutdownConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()
	return ShutdownHTTPServer(ShutdownConfig{
		Context: ctx,
		Server:  cfg.httpServer,
		Logger:  cfg.logger,
	})
}
