package httpx

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/observability/metrics"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/observability/statsd"
)

// LoginThrottleOptions configures a LoginThrottle.
type LoginThrottleOptions struct {
	// PerMinute is the sustained number of login attempts allowed per client IP.
	PerMinute int
	// Burst is the number of attempts allowed back to back.
	Burst int
	// IdleTTL is how long an untouched entry is kept (default 10m).
	IdleTTL time.Duration
	Metrics statsd.Sink
	Now     func() time.Time
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginThrottle is a per-client-IP token bucket in front of the login endpoint.
type LoginThrottle struct {
	mu        sync.Mutex
	entries   map[string]*throttleEntry
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	metrics   statsd.Sink
	now       func() time.Time
}

// NewLoginThrottle creates a throttle. A non-positive PerMinute disables throttling (nil).
func NewLoginThrottle(opts LoginThrottleOptions) *LoginThrottle {
	if opts.PerMinute <= 0 {
		return nil
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &LoginThrottle{
		entries: make(map[string]*throttleEntry),
		limit:   rate.Limit(float64(opts.PerMinute) / 60),
		burst:   opts.Burst,
		idle:    opts.IdleTTL,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
}

// Allow consumes one attempt for ip. When the bucket is empty it reports the wait in whole
// seconds (at least 1) and consumes nothing.
func (t *LoginThrottle) Allow(ip string) (bool, int64) {
	if t == nil {
		return true, 0
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sweepLocked(now)

	e, ok := t.entries[ip]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.entries[ip] = e
	}
	e.lastSeen = now

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, int64(math.Ceil(t.idle.Seconds()))
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return true, 0
	}
	r.CancelAt(now)
	metrics.EmitLoginThrottled(t.metrics)
	return false, max(1, int64(math.Ceil(delay.Seconds())))
}

// Len reports the number of tracked client IPs.
func (t *LoginThrottle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *LoginThrottle) sweepLocked(now time.Time) {
	if now.Sub(t.lastSweep) < t.idle/2 {
		return
	}
	t.lastSweep = now
	for ip, e := range t.entries {
		if now.Sub(e.lastSeen) > t.idle {
			delete(t.entries, ip)
		}
	}
}
