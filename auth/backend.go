// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"fmt"

	"github.com/VA7DBI/authAPI/config"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
)

type storeConstructor func(context.Context, *config.Config) (Store, error)

var storeConstructors = map[string]storeConstructor{
	"postgres": func(ctx context.Context, cfg *config.Config) (Store, error) {
		return NewPostgresStore(ctx, cfg)
	},
	"sqlite": func(ctx context.Context, cfg *config.Config) (Store, error) {
		return NewSQLiteStore(ctx, cfg.Database.SQLitePath, cfg.MigrateEnabled())
	},
	"memory": func(context.Context, *config.Config) (Store, error) {
		return NewMemoryStore(), nil
	},
}

var redisConstructor = NewRedisClient

// Backend bundles the stores selected by configuration.
type Backend struct {
	Credentials CredentialStore
	Tokens      TokenStore
	Purger      ExpiredTokenPurger

	store Store
	redis *redis.Client
}

// OpenBackend opens the store named by cfg.Database.Driver and, when Redis
// is enabled, fronts its token lookups with a RedisTokenCache.
func OpenBackend(ctx context.Context, cfg *config.Config, logger hclog.Logger) (*Backend, error) {
	construct, ok := storeConstructors[cfg.Database.Driver]
	if !ok {
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	store, err := construct(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %v", cfg.Database.Driver, err)
	}

	b := &Backend{
		Credentials: store,
		Tokens:      store,
		Purger:      store,
		store:       store,
	}

	if cfg.Redis.Enabled {
		client, err := redisConstructor(ctx, cfg)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize Redis cache: %v", err)
		}
		b.redis = client
		b.Tokens = NewRedisTokenCache(store, client, cfg.Redis.CacheTTL, logger)
	}

	return b, nil
}

// Close releases the cache client and the store, reporting every failure.
func (b *Backend) Close() error {
	var result *multierror.Error
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing redis: %w", err))
		}
	}
	if b.store != nil {
		if err := b.store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing store: %w", err))
		}
	}
	return result.ErrorOrNil()
}
