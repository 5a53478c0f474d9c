package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/ports"
)

var _ ports.RefreshLock = (*RefreshLock)(nil)

// unlockScript deletes the lock only when the caller still owns it.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RefreshLock is a SET NX PX lease with a random owner token.
type RefreshLock struct {
	client redis.UniversalClient
	prefix string
}

// NewRefreshLock creates a lock using the default "refresh:lock:" prefix.
func NewRefreshLock(client redis.UniversalClient) *RefreshLock {
	return &RefreshLock{client: client, prefix: "refresh:lock:"}
}

// NewRefreshLockWithPrefix creates a lock with a custom key prefix.
func NewRefreshLockWithPrefix(client redis.UniversalClient, prefix string) *RefreshLock {
	return &RefreshLock{client: client, prefix: prefix}
}

func (l *RefreshLock) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("lock key cannot be empty")
	}
	token := uuid.NewString()
	_, err := l.client.SetArgs(ctx, l.prefix+key, token, redis.SetArgs{Mode: "NX", TTL: ttl}).Result()
	if err != nil {
		// NX not met comes back as redis.Nil: someone else holds the lease.
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis SET NX: %w", err)
	}
	return token, true, nil
}

func (l *RefreshLock) Unlock(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	if err := unlockScript.Run(ctx, l.client, []string{l.prefix + key}, token).Err(); err != nil &&
		!errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis unlock: %w", err)
	}
	return nil
}
