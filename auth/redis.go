// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/VA7DBI/authAPI/config"
	"github.com/VA7DBI/authAPI/metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix     = "authapi:token:"
	redisRevokedPrefix = "authapi:revoked:"
)

// NewRedisClient connects to the Redis server described by cfg.Redis.
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %v", err)
	}
	return client, nil
}

// RedisTokenCache serves token lookups from Redis and falls through to the
// wrapped TokenStore on a miss. Keys are derived from a hash of the token.
// A cache failure is logged and the backing store answers instead.
type RedisTokenCache struct {
	next   TokenStore
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
	logger hclog.Logger
}

type cachedToken struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Username  string     `json:"username"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func NewRedisTokenCache(next TokenStore, client *redis.Client, ttl time.Duration, logger hclog.Logger) *RedisTokenCache {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &RedisTokenCache{
		next:   next,
		client: client,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.Named("token-cache"),
	}
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func cacheKey(token string) string {
	return redisKeyPrefix + tokenDigest(token)
}

// revokedKey marks a token revoked so a lookup that read the store before
// the revoke cannot cache the row afterwards.
func revokedKey(token string) string {
	return redisRevokedPrefix + tokenDigest(token)
}

func (c *RedisTokenCache) IssueToken(ctx context.Context, userID int64, token string, expiresAt *time.Time) error {
	return c.next.IssueToken(ctx, userID, token, expiresAt)
}

func (c *RedisTokenCache) LookupToken(ctx context.Context, token string) (*TokenInfo, error) {
	key, revoked := cacheKey(token), revokedKey(token)

	values, err := c.client.MGet(ctx, key, revoked).Result()
	switch {
	case err != nil:
		c.logger.Warn("token cache read failed", "error", err)
		metrics.TokenCache.WithLabelValues("error").Inc()
	case values[1] != nil:
		metrics.TokenCache.WithLabelValues("revoked").Inc()
		return nil, ErrNotFound
	case values[0] == nil:
		metrics.TokenCache.WithLabelValues("miss").Inc()
	default:
		var entry cachedToken
		raw, _ := values[0].(string)
		if jerr := json.Unmarshal([]byte(raw), &entry); jerr == nil {
			metrics.TokenCache.WithLabelValues("hit").Inc()
			return &TokenInfo{
				Identity:  Identity{ID: entry.ID, Email: entry.Email, Username: entry.Username},
				ExpiresAt: entry.ExpiresAt,
			}, nil
		}
		c.logger.Warn("discarding malformed cache entry")
		metrics.TokenCache.WithLabelValues("error").Inc()
	}

	info, err := c.next.LookupToken(ctx, token)
	if err != nil {
		return nil, err
	}

	ttl := c.ttl
	if info.ExpiresAt != nil {
		remaining := info.ExpiresAt.Sub(c.now())
		if remaining <= 0 {
			return info, nil
		}
		if remaining < ttl {
			ttl = remaining
		}
	}

	payload, err := json.Marshal(cachedToken{
		ID:        info.ID,
		Email:     info.Email,
		Username:  info.Username,
		ExpiresAt: info.ExpiresAt,
	})
	if err != nil {
		return info, nil
	}
	if err := c.fill(ctx, key, revoked, payload, ttl); err != nil {
		c.logger.Warn("token cache write failed", "error", err)
	}
	return info, nil
}

// fill caches payload unless the token has been revoked. The revoked key is
// watched, so a revoke that lands between the check and the write aborts
// the transaction.
func (c *RedisTokenCache) fill(ctx context.Context, key, revoked string, payload []byte, ttl time.Duration) error {
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, revoked).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}, revoked)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

// RevokeToken revokes in the backing store, marks the token revoked in the
// cache for one cache TTL, then drops the cached entry. If the cache cannot
// be updated the error is returned so the caller knows the token may still
// be served until the entry's TTL lapses.
func (c *RedisTokenCache) RevokeToken(ctx context.Context, token string) error {
	if err := c.next.RevokeToken(ctx, token); err != nil {
		return err
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, revokedKey(token), 1, c.ttl)
		pipe.Del(ctx, cacheKey(token))
		return nil
	})
	if err != nil {
		c.logger.Error("token cache invalidation failed", "error", err)
		return storeUnavailable("invalidate cached token", err)
	}
	return nil
}
