// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "auth.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := NewSQLiteStore(ctx, "  ", true)
		assert.Error(t, err)
	})

	t.Run("ReopenKeepsData", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "auth.db")

		store, err := NewSQLiteStore(ctx, path, true)
		require.NoError(t, err)
		id, err := store.CreateUser(ctx, "a@x.io", "alice", "h")
		require.NoError(t, err)
		require.NoError(t, store.Close())

		store, err = NewSQLiteStore(ctx, path, true)
		require.NoError(t, err)
		defer store.Close()

		u, err := store.FindUserByIdentifier(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, id, u.ID)
	})

	t.Run("WithoutMigrations", func(t *testing.T) {
		store, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "bare.db"), false)
		require.NoError(t, err)
		defer store.Close()

		_, err = store.CreateUser(ctx, "a@x.io", "alice", "h")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrDuplicateCredential)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		store := newTestSQLiteStore(t)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.FindUserByIdentifier(cctx, "alice")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRunMigrations(t *testing.T) {
	t.Run("UnknownDialect", func(t *testing.T) {
		err := RunMigrations(context.Background(), nil, "mysql")
		assert.Error(t, err)
	})

	t.Run("UsesDialectDirectory", func(t *testing.T) {
		orig := gooseUpContext
		defer func() { gooseUpContext = orig }()

		var gotDir string
		gooseUpContext = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
			gotDir = dir
			return nil
		}

		require.NoError(t, RunMigrations(context.Background(), nil, "postgres"))
		assert.Equal(t, "migrations/postgres", gotDir)

		require.NoError(t, RunMigrations(context.Background(), nil, "sqlite3"))
		assert.Equal(t, "migrations/sqlite", gotDir)
	})

	t.Run("Failure", func(t *testing.T) {
		orig := gooseUpContext
		defer func() { gooseUpContext = orig }()

		gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
			return errors.New("boom")
		}

		err := RunMigrations(context.Background(), nil, "postgres")
		assert.ErrorContains(t, err, "migrations failed")
	})
}
