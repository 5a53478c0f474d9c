package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
	apperrors "github.com/HenryT2023/YT-AI-Platform-sub000/internal/errors"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/observability/metrics"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/observability/statsd"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/ports"
)

var (
	// ErrRefreshFailed means no new credential pair could be obtained. Callers clear credentials.
	ErrRefreshFailed = errors.New("refresh failed")
	// ErrNoRefreshToken means the request carried no refresh credential.
	ErrNoRefreshToken = errors.New("no refresh token")

	errStaleFlight = errors.New("refresh flight superseded")
	errSharedStore = errors.New("shared refresh store")
)

const (
	defaultLockTimeout   = 10 * time.Second
	defaultGraceWindow   = 15 * time.Second
	defaultFlightTimeout = 30 * time.Second
	maxFlightJoins       = 3
)

// RefreshConfig tunes the coordinator. Zero values select defaults.
type RefreshConfig struct {
	// LockTimeout is how long a flight may be joined before a new one may start.
	LockTimeout time.Duration
	// GraceWindow is how long a rotated pair is remembered under the old refresh token.
	GraceWindow time.Duration
	// FlightTimeout bounds the backend refresh call itself.
	FlightTimeout time.Duration
}

// SharedRefresh extends the in-process mutex across gateway instances.
// Lock and Results must both be set for it to take effect.
type SharedRefresh struct {
	Lock    ports.RefreshLock
	Results ports.RefreshResultCache
}

func (s SharedRefresh) enabled() bool { return s.Lock != nil && s.Results != nil }

// RefreshCoordinatorOptions groups dependencies for RefreshCoordinator.
type RefreshCoordinatorOptions struct {
	Backend ports.TokenBackend
	Shared  SharedRefresh
	Config  RefreshConfig
	Metrics statsd.Sink
	Logger  *slog.Logger
	// Grace remembers rotations in this process; usually the memory adapter.
	Grace ports.RefreshResultCache
	// Now overrides the clock (tests).
	Now func() time.Time
}

// flight is one refresh attempt for one refresh credential. Its fields after done is closed
// are immutable.
type flight struct {
	gen       uint64
	startedAt time.Time
	done      chan struct{}

	pair  domainauth.CredentialPair
	err   error
	stale bool
}

// RefreshCoordinator collapses concurrent refreshes of the same refresh token into a single
// backend call. Callers that arrive while a flight is younger than the lock timeout join it;
// afterwards a new flight with a higher generation may start. A flight that settles after it
// was superseded is stale: its result is withheld and its waiters join the newer flight.
type RefreshCoordinator struct {
	backend ports.TokenBackend
	shared  SharedRefresh
	grace   ports.RefreshResultCache
	cfg     RefreshConfig
	metrics statsd.Sink
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	gen     uint64
	flights map[string]*flight
}

// NewRefreshCoordinator constructs a coordinator.
func NewRefreshCoordinator(opts RefreshCoordinatorOptions) (*RefreshCoordinator, error) {
	if opts.Backend == nil {
		return nil, errors.New("Backend is required")
	}
	cfg := opts.Config
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = defaultGraceWindow
	}
	if cfg.FlightTimeout <= 0 {
		cfg.FlightTimeout = defaultFlightTimeout
	}
	if opts.Grace == nil {
		return nil, errors.New("Grace is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &RefreshCoordinator{
		backend: opts.Backend,
		shared:  opts.Shared,
		grace:   opts.Grace,
		cfg:     cfg,
		metrics: opts.Metrics,
		logger:  logger.With("component", "refresh_coordinator"),
		now:     now,
		flights: make(map[string]*flight),
	}, nil
}

// MustNewRefreshCoordinator constructs a coordinator and panics on error.
func MustNewRefreshCoordinator(opts RefreshCoordinatorOptions) *RefreshCoordinator {
	c, err := NewRefreshCoordinator(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
	}
	return c
}

// AcquireAndRefresh refreshes the credentials carried by rc, joining an in-flight refresh of
// the same refresh token when there is one. On success rc is switched to the rotated pair.
// On failure rc is left untouched. The error wraps ErrRefreshFailed only when the backend
// rejected the refresh token; transport and shared-store failures carry an apperrors code
// instead and the credentials remain valid. Clearing credentials is the caller's decision.
func (c *RefreshCoordinator) AcquireAndRefresh(ctx context.Context, rc *domainauth.RequestContext) error {
	if rc == nil || rc.RefreshToken == "" {
		return ErrNoRefreshToken
	}
	pair, err := c.Refresh(ctx, rc.RefreshToken)
	if err != nil {
		return err
	}
	rc.ApplyRotation(pair)
	return nil
}

// Refresh returns the pair refreshToken rotates into.
func (c *RefreshCoordinator) Refresh(ctx context.Context, refreshToken string) (domainauth.CredentialPair, error) {
	if refreshToken == "" {
		return domainauth.CredentialPair{}, ErrNoRefreshToken
	}
	key := digestToken(refreshToken)

	for range maxFlightJoins {
		if pair, ok := c.graceHit(ctx, key); ok {
			metrics.EmitRefresh(c.metrics, metrics.RefreshGrace, 0, nil)
			return pair, nil
		}

		f, leader := c.acquire(ctx, key, refreshToken)
		if !leader {
			metrics.EmitRefresh(c.metrics, metrics.RefreshJoined, 0, nil)
		}

		select {
		case <-ctx.Done():
			return domainauth.CredentialPair{}, fmt.Errorf("wait for refresh: %w", ctx.Err())
		case <-f.done:
		}

		if f.stale {
			metrics.EmitRefresh(c.metrics, metrics.RefreshStale, 0, nil)
			c.logger.DebugContext(ctx, "refresh flight superseded, rejoining", "generation", f.gen)
			continue
		}
		return f.pair, f.err
	}
	return domainauth.CredentialPair{}, fmt.Errorf("%w: %w", ErrRefreshFailed, errStaleFlight)
}

// InFlight reports how many refresh flights are currently registered.
func (c *RefreshCoordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.flights)
}

func (c *RefreshCoordinator) graceHit(ctx context.Context, key string) (domainauth.CredentialPair, bool) {
	pair, ok, err := c.grace.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "grace cache lookup failed", "error", err)
		return domainauth.CredentialPair{}, false
	}
	return pair, ok
}

// acquire joins the current flight for key if it is younger than the lock timeout, otherwise
// registers a new flight with the next generation and starts it.
func (c *RefreshCoordinator) acquire(ctx context.Context, key, refreshToken string) (*flight, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if f, ok := c.flights[key]; ok && now.Sub(f.startedAt) < c.cfg.LockTimeout {
		return f, false
	}

	c.gen++
	f := &flight{gen: c.gen, startedAt: now, done: make(chan struct{})}
	c.flights[key] = f

	// The flight outlives any single caller; only request-scoped values are inherited.
	flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FlightTimeout)
	go func() {
		defer cancel()
		c.run(flightCtx, key, refreshToken, f)
	}()
	return f, true
}

func (c *RefreshCoordinator) run(ctx context.Context, key, refreshToken string, f *flight) {
	start := c.now()
	var (
		pair   domainauth.CredentialPair
		err    error
		result = metrics.RefreshSuccess
	)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic during refresh: %v", ErrRefreshFailed, r)
			pair = domainauth.CredentialPair{}
			result = metrics.RefreshFailure
		}
		c.settle(ctx, key, f, pair, err)
		metrics.EmitRefresh(c.metrics, result, c.now().Sub(start), err)
	}()

	var remote bool
	pair, remote, err = c.refresh(ctx, key, refreshToken)
	switch {
	case err != nil:
		result = metrics.RefreshFailure
		c.logger.InfoContext(ctx, "token refresh failed", "generation", f.gen, "error", err)
	case remote:
		result = metrics.RefreshRemote
	}
}

// settle publishes the outcome and releases the flight. Release always happens; publication
// only when this flight is still the current one for key.
func (c *RefreshCoordinator) settle(
	ctx context.Context,
	key string,
	f *flight,
	pair domainauth.CredentialPair,
	err error,
) {
	c.mu.Lock()
	current := c.flights[key] == f
	if current {
		delete(c.flights, key)
	}
	c.mu.Unlock()

	if current && err == nil {
		if putErr := c.grace.Put(ctx, key, pair, c.cfg.GraceWindow); putErr != nil {
			c.logger.WarnContext(ctx, "grace cache store failed", "error", putErr)
		}
	}

	f.pair, f.err, f.stale = pair, err, !current
	close(f.done)
}

// refresh performs the backend call, coordinating with other instances when a shared lock is
// configured. remote is true when another instance performed the rotation.
func (c *RefreshCoordinator) refresh(
	ctx context.Context,
	key, refreshToken string,
) (domainauth.CredentialPair, bool, error) {
	if !c.shared.enabled() {
		pair, err := c.callBackend(ctx, refreshToken)
		return pair, false, err
	}

	lockToken, pair, err := c.awaitSharedLock(ctx, key)
	if err != nil {
		return domainauth.CredentialPair{}, false, err
	}
	if lockToken == "" {
		return pair, true, nil
	}
	defer func() {
		if unlockErr := c.shared.Lock.Unlock(context.WithoutCancel(ctx), key, lockToken); unlockErr != nil {
			c.logger.WarnContext(ctx, "release shared refresh lock failed", "error", unlockErr)
		}
	}()

	pair, err = c.callBackend(ctx, refreshToken)
	if err != nil {
		return domainauth.CredentialPair{}, false, err
	}
	if putErr := c.shared.Results.Put(ctx, key, pair, c.cfg.GraceWindow); putErr != nil {
		c.logger.WarnContext(ctx, "publish refresh result failed", "error", putErr)
	}
	return pair, false, nil
}

// awaitSharedLock returns a lock token once this instance owns the shared lock, or the pair
// another instance published while holding it.
func (c *RefreshCoordinator) awaitSharedLock(
	ctx context.Context,
	key string,
) (string, domainauth.CredentialPair, error) {
	type outcome struct {
		token string
		pair  domainauth.CredentialPair
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 50 * time.Millisecond
	eb.MaxInterval = time.Second

	op := func() (outcome, error) {
		if pair, ok, err := c.shared.Results.Get(ctx, key); err != nil {
			return outcome{}, backoff.Permanent(fmt.Errorf("%w: read result: %w", errSharedStore, err))
		} else if ok {
			return outcome{pair: pair}, nil
		}
		token, acquired, err := c.shared.Lock.TryLock(ctx, key, c.cfg.LockTimeout)
		if err != nil {
			return outcome{}, backoff.Permanent(fmt.Errorf("%w: acquire lock: %w", errSharedStore, err))
		}
		if !acquired {
			return outcome{}, errors.New("shared refresh lock held")
		}
		return outcome{token: token}, nil
	}

	// Waiting past the lock lease lets the next TryLock succeed, so one extra lease bounds it.
	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxElapsedTime(2*c.cfg.LockTimeout),
	)
	if errors.Is(err, errSharedStore) {
		return "", domainauth.CredentialPair{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "shared refresh unavailable")
	}
	if err != nil {
		return "", domainauth.CredentialPair{}, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	return out.token, out.pair, nil
}

func (c *RefreshCoordinator) callBackend(ctx context.Context, refreshToken string) (domainauth.CredentialPair, error) {
	pair, err := c.backend.Refresh(ctx, refreshToken)
	if err != nil {
		var rejected *ports.StatusError
		if errors.As(err, &rejected) {
			return domainauth.CredentialPair{}, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		}
		// The backend never judged the token; it stays usable.
		return domainauth.CredentialPair{}, apperrors.Wrap(err, apperrors.ErrCodeUpstream, ports.UpstreamCore+" refresh request failed")
	}
	if !pair.Complete() {
		return domainauth.CredentialPair{}, fmt.Errorf("%w: backend returned an incomplete pair", ErrRefreshFailed)
	}
	return pair, nil
}

// digestToken keys flights and caches without keeping raw refresh tokens around.
func digestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
