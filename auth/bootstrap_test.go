// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/VA7DBI/authAPI/config"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bootstrapConfig() *config.Config {
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Bootstrap.Enabled = true
	return cfg
}

func TestBootstrapDefaultUser(t *testing.T) {
	ctx := context.Background()

	t.Run("Disabled", func(t *testing.T) {
		store := NewMemoryStore()
		svc := newTestService(t, store)
		cfg := bootstrapConfig()
		cfg.Bootstrap.Enabled = false

		created, err := BootstrapDefaultUser(ctx, svc, store, cfg, nil)
		assert.NoError(t, err)
		assert.False(t, created)

		_, err = store.FindUserByIdentifier(ctx, "admin")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("CreatesWithConfiguredPassword", func(t *testing.T) {
		store := NewMemoryStore()
		svc := newTestService(t, store)
		cfg := bootstrapConfig()
		cfg.Bootstrap.Password = "admin123"

		created, err := BootstrapDefaultUser(ctx, svc, store, cfg, nil)
		require.NoError(t, err)
		assert.True(t, created)

		res, err := svc.Login(ctx, "admin", "admin123")
		require.NoError(t, err)
		assert.Equal(t, "admin@example.com", res.User.Email)
	})

	t.Run("Idempotent", func(t *testing.T) {
		store := NewMemoryStore()
		svc := newTestService(t, store)
		cfg := bootstrapConfig()
		cfg.Bootstrap.Password = "admin123"

		_, err := BootstrapDefaultUser(ctx, svc, store, cfg, nil)
		require.NoError(t, err)

		created, err := BootstrapDefaultUser(ctx, svc, store, cfg, nil)
		assert.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("SkipsWhenEmailTaken", func(t *testing.T) {
		store := NewMemoryStore()
		svc := newTestService(t, store)
		_, err := svc.Register(ctx, "admin@example.com", "someone", "secret1")
		require.NoError(t, err)

		created, err := BootstrapDefaultUser(ctx, svc, store, bootstrapConfig(), nil)
		assert.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("GeneratesPassword", func(t *testing.T) {
		store := NewMemoryStore()
		svc := newTestService(t, store)

		created, err := BootstrapDefaultUser(ctx, svc, store, bootstrapConfig(), nil)
		require.NoError(t, err)
		assert.True(t, created)

		u, err := store.FindUserByIdentifier(ctx, "admin")
		require.NoError(t, err)
		assert.NotEmpty(t, u.PasswordHash)
	})
}

func TestPurger(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("PurgeOnce", func(t *testing.T) {
		store := NewMemoryStore()
		uid, err := store.CreateUser(ctx, "a@x.io", "alice", "h")
		require.NoError(t, err)

		past := now.Add(-time.Hour)
		future := now.Add(time.Hour)
		require.NoError(t, store.IssueToken(ctx, uid, "old", &past))
		require.NoError(t, store.IssueToken(ctx, uid, "new", &future))

		n := purgeOnce(ctx, store, now, hclog.NewNullLogger())
		assert.Equal(t, int64(1), n)

		_, err = store.LookupToken(ctx, "new")
		assert.NoError(t, err)
	})

	t.Run("RunsUntilCanceled", func(t *testing.T) {
		store := NewMemoryStore()
		uid, err := store.CreateUser(ctx, "a@x.io", "alice", "h")
		require.NoError(t, err)
		past := now.Add(-time.Hour)
		require.NoError(t, store.IssueToken(ctx, uid, "old", &past))

		rctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			RunPurger(rctx, store, 10*time.Millisecond, func() time.Time { return now }, nil)
			close(done)
		}()

		assert.Eventually(t, func() bool {
			_, err := store.LookupToken(ctx, "old")
			return err != nil
		}, time.Second, 10*time.Millisecond)

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("purger did not stop")
		}
	})

	t.Run("DisabledReturnsImmediately", func(t *testing.T) {
		done := make(chan struct{})
		go func() {
			RunPurger(ctx, NewMemoryStore(), 0, nil, nil)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("disabled purger kept running")
		}
	})
}
