// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/VA7DBI/authAPI/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records how often lookups reach the backing store.
type countingStore struct {
	*MemoryStore
	lookups int
}

func (c *countingStore) LookupToken(ctx context.Context, token string) (*TokenInfo, error) {
	c.lookups++
	return c.MemoryStore.LookupToken(ctx, token)
}

// stallingStore holds its first lookup after the row has been read until
// release is closed.
type stallingStore struct {
	*MemoryStore
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (s *stallingStore) LookupToken(ctx context.Context, token string) (*TokenInfo, error) {
	info, err := s.MemoryStore.LookupToken(ctx, token)
	s.once.Do(func() {
		close(s.read)
		<-s.release
	})
	return info, err
}

func newTestRedisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mr.Close)

	cfg := &config.Config{}
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = mr.Server().Addr().Port

	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func setupRedisTest(t *testing.T, ttl time.Duration) (*RedisTokenCache, *countingStore, *miniredis.Miniredis) {
	client, mr := newTestRedisClient(t)
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	return NewRedisTokenCache(backing, client, ttl, nil), backing, mr
}

func TestRedisTokenCacheRevokeDuringLookup(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestRedisClient(t)

	backing := &stallingStore{
		MemoryStore: NewMemoryStore(),
		read:        make(chan struct{}),
		release:     make(chan struct{}),
	}
	cache := NewRedisTokenCache(backing, client, time.Minute, nil)

	uid, err := backing.CreateUser(ctx, "a@x.com", "alice", "h")
	require.NoError(t, err)
	require.NoError(t, cache.IssueToken(ctx, uid, "tok", nil))

	// A lookup reads the row, then stalls before filling the cache.
	done := make(chan error, 1)
	go func() {
		_, err := cache.LookupToken(ctx, "tok")
		done <- err
	}()
	<-backing.read

	require.NoError(t, cache.RevokeToken(ctx, "tok"))
	close(backing.release)
	require.NoError(t, <-done)

	assert.False(t, mr.Exists(cacheKey("tok")))
	_, err = cache.LookupToken(ctx, "tok")
	assert.ErrorIs(t, err, ErrNotFound)

	// The marker outlives any entry a stalled lookup could still write.
	assert.Equal(t, time.Minute, mr.TTL(revokedKey("tok")))
}

func TestRedisTokenCacheFillSkipsRevoked(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestRedisClient(t)
	cache := NewRedisTokenCache(NewMemoryStore(), client, time.Minute, nil)

	require.NoError(t, mr.Set(revokedKey("tok"), "1"))
	require.NoError(t, cache.fill(ctx, cacheKey("tok"), revokedKey("tok"), []byte(`{"id":1}`), time.Minute))
	assert.False(t, mr.Exists(cacheKey("tok")))

	require.NoError(t, cache.fill(ctx, cacheKey("other"), revokedKey("other"), []byte(`{"id":1}`), time.Minute))
	assert.True(t, mr.Exists(cacheKey("other")))
}

func TestRedisTokenCache(t *testing.T) {
	ctx := context.Background()

	t.Run("MissThenHit", func(t *testing.T) {
		cache, backing, mr := setupRedisTest(t, time.Minute)

		uid, err := backing.CreateUser(ctx, "a@x.io", "alice", "h")
		require.NoError(t, err)
		expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		require.NoError(t, cache.IssueToken(ctx, uid, "tok", &expires))

		info, err := cache.LookupToken(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, "alice", info.Username)
		assert.Equal(t, 1, backing.lookups)

		info, err = cache.LookupToken(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, Identity{ID: uid, Email: "a@x.io", Username: "alice"}, info.Identity)
		require.NotNil(t, info.ExpiresAt)
		assert.True(t, expires.Equal(*info.ExpiresAt))
		assert.Equal(t, 1, backing.lookups)

		assert.True(t, mr.Exists(cacheKey("tok")))
		assert.Equal(t, time.Minute, mr.TTL(cacheKey("tok")))
	})

	t.Run("KeysDoNotContainToken", func(t *testing.T) {
		cache, backing, mr := setupRedisTest(t, time.Minute)

		uid, err := backing.CreateUser(ctx, "a@x.io", "alice", "h")
		require.NoError(t, err)
		require.NoError(t, cache.IssueToken(ctx, uid, "0SecretTokenValue", nil))
		_, err = cache.LookupToken(ctx, "0SecretTokenValue")
		require.NoError(t, err)

		for _, k := range mr.Keys() {
			assert.False(t, strings.Contains(k, "0SecretTokenValue"), k)
		}
	})

	t.Run("TTLCappedAtExpiry", func(t *testing.T) {
		cache, backing, mr := setupRedisTest(t, time.Hour)
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		cache.now = func() time.Time { return now }

		uid, err := backing.CreateUser(ctx, "a@x.io", "alice", "h")
		require.NoError(t, err)
		expires := now.Add(10 * time.Second)
		require.NoError(t, cache.IssueToken(ctx, uid, "short", &expires))

		_, err = cache.LookupToken(ctx, "short")
		require.NoError(t, err)
		assert.Equal(t, 10*time.Second, mr.TTL(cacheKey("short")))
	})

	t.Run("ExpiredNotCached", func(t *testing.T) {
		cache, backing, mr := setupRedisTest(t, time.Hour)

		uid, err := backing.CreateUser(ctx, "a@x.io", "alice", "h")
		require.NoError(t, err)
		past := time.Now().Add(-time.Minute)
		require.NoError(t, cache.IssueToken(ctx, uid, "stale", &past))

		info, err := cache.LookupToken(ctx, "stale")
		require.NoError(t, err)
		assert.True(t, info.Expired(time.Now()))
		assert.False(t, mr.Exists(cacheKey("stale")))
	})

	t.Run("EntryExpires", func(t *testing.T) {
		cache, backing, mr := setupRedisTest(t, time.Second)

		uid, err := backing.CreateUser(ctx, "a@x.io", "alice", "h")
		require.NoError(t, err)
		require.NoError(t, cache.IssueToken(ctx, uid, "tok", nil))

		_, err = cache.LookupToken(ctx, "tok")
		require.NoError(t, err)
		mr.FastForward(2 * time.Second)

		_, err = cache.LookupToken(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, 2, backing.lookups)
	})

	t.Run("RevokeDropsEntry", func(t *testing.T) {
		cache, backing, mr := setupRedisTest(t, time.Minute)

		uid, err := backing.CreateUser(ctx, "a@x.io", "alice", "h")
		require.NoError(t, err)
		require.NoError(t, cache.IssueToken(ctx, uid, "tok", nil))
		_, err = cache.LookupToken(ctx, "tok")
		require.NoError(t, err)

		require.NoError(t, cache.RevokeToken(ctx, "tok"))
		assert.False(t, mr.Exists(cacheKey("tok")))

		_, err = cache.LookupToken(ctx, "tok")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("MissingTokenNotCached", func(t *testing.T) {
		cache, _, mr := setupRedisTest(t, time.Minute)

		_, err := cache.LookupToken(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Empty(t, mr.Keys())
	})

	t.Run("RedisDownFallsThrough", func(t *testing.T) {
		cache, backing, mr := setupRedisTest(t, time.Minute)

		uid, err := backing.CreateUser(ctx, "a@x.io", "alice", "h")
		require.NoError(t, err)
		require.NoError(t, cache.IssueToken(ctx, uid, "tok", nil))

		mr.Close()

		info, err := cache.LookupToken(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, uid, info.ID)
	})

	t.Run("RevokeWithRedisDown", func(t *testing.T) {
		cache, backing, mr := setupRedisTest(t, time.Minute)

		uid, err := backing.CreateUser(ctx, "a@x.io", "alice", "h")
		require.NoError(t, err)
		require.NoError(t, cache.IssueToken(ctx, uid, "tok", nil))

		mr.Close()

		err = cache.RevokeToken(ctx, "tok")
		assert.ErrorIs(t, err, ErrStoreUnavailable)

		_, err = backing.LookupToken(ctx, "tok")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("MalformedEntryIgnored", func(t *testing.T) {
		cache, backing, mr := setupRedisTest(t, time.Minute)

		uid, err := backing.CreateUser(ctx, "a@x.io", "alice", "h")
		require.NoError(t, err)
		require.NoError(t, cache.IssueToken(ctx, uid, "tok", nil))
		require.NoError(t, mr.Set(cacheKey("tok"), "not json"))

		info, err := cache.LookupToken(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, uid, info.ID)
		assert.Equal(t, 1, backing.lookups)
	})
}

func TestNewRedisClientUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = mr.Server().Addr().Port
	mr.Close()

	_, err = NewRedisClient(context.Background(), cfg)
	assert.Error(t, err)
}
