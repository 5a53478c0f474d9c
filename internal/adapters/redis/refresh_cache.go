// Package redis provides Redis-based adapters that let several gateway instances
// share refresh coordination state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/cryptoutil"
	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/ports"
)

var _ ports.RefreshResultCache = (*RefreshResultCache)(nil)

// RefreshResultCache publishes rotated credential pairs so that followers on other
// instances can pick up the outcome of a refresh they did not perform.
// Values are sealed with the cache key as associated data; TTL is enforced by Redis.
type RefreshResultCache struct {
	client redis.UniversalClient
	sealer cryptoutil.Sealer
	prefix string
}

// NewRefreshResultCache creates a cache using the default "refresh:result:" prefix.
func NewRefreshResultCache(client redis.UniversalClient, sealer cryptoutil.Sealer) *RefreshResultCache {
	return NewRefreshResultCacheWithPrefix(client, sealer, "refresh:result:")
}

// NewRefreshResultCacheWithPrefix creates a cache with a custom key prefix.
func NewRefreshResultCacheWithPrefix(
	client redis.UniversalClient,
	sealer cryptoutil.Sealer,
	prefix string,
) *RefreshResultCache {
	if sealer == nil {
		sealer = cryptoutil.NoopSealer{}
	}
	return &RefreshResultCache{client: client, sealer: sealer, prefix: prefix}
}

func (c *RefreshResultCache) Put(ctx context.Context, key string, pair domainauth.CredentialPair, ttl time.Duration) error {
	if key == "" {
		return errors.New("cache key cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("marshal pair: %w", err)
	}
	fullKey := c.prefix + key
	sealed, err := c.sealer.Seal(data, []byte(fullKey))
	if err != nil {
		return fmt.Errorf("seal pair: %w", err)
	}

	return c.client.Set(ctx, fullKey, sealed, ttl).Err()
}

func (c *RefreshResultCache) Get(ctx context.Context, key string) (domainauth.CredentialPair, bool, error) {
	if key == "" {
		return domainauth.CredentialPair{}, false, nil
	}

	fullKey := c.prefix + key
	sealed, err := c.client.Get(ctx, fullKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.CredentialPair{}, false, nil
		}
		return domainauth.CredentialPair{}, false, fmt.Errorf("redis get: %w", err)
	}

	data, err := c.sealer.Open(sealed, []byte(fullKey))
	if err != nil {
		return domainauth.CredentialPair{}, false, fmt.Errorf("open pair: %w", err)
	}

	var pair domainauth.CredentialPair
	if unmarshalErr := json.Unmarshal(data, &pair); unmarshalErr != nil {
		return domainauth.CredentialPair{}, false, fmt.Errorf("unmarshal pair: %w", unmarshalErr)
	}
	if !pair.Complete() {
		return domainauth.CredentialPair{}, false, nil
	}
	return pair, true, nil
}
