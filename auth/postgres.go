// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/VA7DBI/authAPI/config"
	"github.com/lib/pq"
)

const (
	pgCreateUser = `INSERT INTO users (email, username, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id`

	pgFindUser = `SELECT id, email, username, password_hash, created_at
		FROM users
		WHERE username = $1 OR email = $1
		ORDER BY CASE WHEN username = $1 THEN 0 ELSE 1 END, id
		LIMIT 1`

	pgIssueToken = `INSERT INTO tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)`

	pgLookupToken = `SELECT u.id, u.email, u.username, t.expires_at
		FROM tokens t
		JOIN users u ON t.user_id = u.id
		WHERE t.token = $1`

	pgRevokeToken = `DELETE FROM tokens WHERE token = $1`

	pgPurgeTokens = `DELETE FROM tokens WHERE expires_at IS NOT NULL AND expires_at <= $1`
)

// PostgresStore implements CredentialStore and TokenStore for PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the connection pool described by cfg, checks it,
// and applies migrations unless cfg.Database.Migrate is false.
func NewPostgresStore(ctx context.Context, cfg *config.Config) (*PostgresStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres connection failed: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxOpenConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %v", err)
	}

	if cfg.MigrateEnabled() {
		if err := RunMigrations(ctx, db, "postgres"); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, email, username, passwordHash string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, pgCreateUser, email, username, passwordHash).Scan(&id)
	if err != nil {
		return 0, classifyPostgres("create user", err, ErrDuplicateCredential)
	}
	return id, nil
}

func (s *PostgresStore) FindUserByIdentifier(ctx context.Context, identifier string) (*User, error) {
	u := &User{}
	err := s.db.QueryRowContext(ctx, pgFindUser, identifier).
		Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifyPostgres("find user", err, nil)
	}
	return u, nil
}

func (s *PostgresStore) IssueToken(ctx context.Context, userID int64, token string, expiresAt *time.Time) error {
	_, err := s.db.ExecContext(ctx, pgIssueToken, userID, token, nullTime(expiresAt))
	if err != nil {
		return classifyPostgres("issue token", err, ErrDuplicateToken)
	}
	return nil
}

func (s *PostgresStore) LookupToken(ctx context.Context, token string) (*TokenInfo, error) {
	info := &TokenInfo{}
	var expires sql.NullTime
	err := s.db.QueryRowContext(ctx, pgLookupToken, token).
		Scan(&info.ID, &info.Email, &info.Username, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifyPostgres("lookup token", err, nil)
	}
	if expires.Valid {
		t := expires.Time
		info.ExpiresAt = &t
	}
	return info, nil
}

func (s *PostgresStore) RevokeToken(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, pgRevokeToken, token); err != nil {
		return classifyPostgres("revoke token", err, nil)
	}
	return nil
}

func (s *PostgresStore) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, pgPurgeTokens, now)
	if err != nil {
		return 0, classifyPostgres("purge tokens", err, nil)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// classifyPostgres maps driver errors onto store errors. dup is returned for
// unique violations when the caller has a meaning for them.
func classifyPostgres(op string, err error, dup error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505" && dup != nil:
			return dup
		case pqErr.Code == "23503":
			return ErrNotFound
		}
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return storeUnavailable(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return storeUnavailable(op, err)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
