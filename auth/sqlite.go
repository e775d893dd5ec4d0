// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	sqliteCreateUser = `INSERT INTO users (email, username, password_hash, created_at)
		VALUES (?1, ?2, ?3, ?4)`

	sqliteFindUser = `SELECT id, email, username, password_hash, created_at
		FROM users
		WHERE username = ?1 OR email = ?1
		ORDER BY CASE WHEN username = ?1 THEN 0 ELSE 1 END, id
		LIMIT 1`

	sqliteIssueToken = `INSERT INTO tokens (user_id, token, created_at, expires_at)
		VALUES (?1, ?2, ?3, ?4)`

	sqliteLookupToken = `SELECT u.id, u.email, u.username, t.expires_at
		FROM tokens t
		JOIN users u ON t.user_id = u.id
		WHERE t.token = ?1`

	sqliteRevokeToken = `DELETE FROM tokens WHERE token = ?1`

	sqlitePurgeTokens = `DELETE FROM tokens WHERE expires_at IS NOT NULL AND expires_at <= ?1`
)

// toMillis stores timestamps as UTC unix milliseconds.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// SQLiteStore implements CredentialStore and TokenStore over a single SQLite
// file using the pure Go modernc.org/sqlite driver.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at path with WAL
// and foreign keys enabled, and applies migrations when migrate is set.
func NewSQLiteStore(ctx context.Context, path string, migrate bool) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open failed: %v", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping failed: %v", err)
	}

	if migrate {
		if err := RunMigrations(ctx, db, "sqlite3"); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, email, username, passwordHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqliteCreateUser, email, username, passwordHash, toMillis(s.now()))
	if err != nil {
		return 0, classifySQLite("create user", err, ErrDuplicateCredential)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) FindUserByIdentifier(ctx context.Context, identifier string) (*User, error) {
	u := &User{}
	var created int64
	err := s.db.QueryRowContext(ctx, sqliteFindUser, identifier).
		Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifySQLite("find user", err, nil)
	}
	u.CreatedAt = fromMillis(created)
	return u, nil
}

func (s *SQLiteStore) IssueToken(ctx context.Context, userID int64, token string, expiresAt *time.Time) error {
	var expires sql.NullInt64
	if expiresAt != nil {
		expires = sql.NullInt64{Int64: toMillis(*expiresAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, sqliteIssueToken, userID, token, toMillis(s.now()), expires)
	if err != nil {
		return classifySQLite("issue token", err, ErrDuplicateToken)
	}
	return nil
}

func (s *SQLiteStore) LookupToken(ctx context.Context, token string) (*TokenInfo, error) {
	info := &TokenInfo{}
	var expires sql.NullInt64
	err := s.db.QueryRowContext(ctx, sqliteLookupToken, token).
		Scan(&info.ID, &info.Email, &info.Username, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifySQLite("lookup token", err, nil)
	}
	if expires.Valid {
		t := fromMillis(expires.Int64)
		info.ExpiresAt = &t
	}
	return info, nil
}

func (s *SQLiteStore) RevokeToken(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, sqliteRevokeToken, token); err != nil {
		return classifySQLite("revoke token", err, nil)
	}
	return nil
}

func (s *SQLiteStore) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqlitePurgeTokens, toMillis(now))
	if err != nil {
		return 0, classifySQLite("purge tokens", err, nil)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func classifySQLite(op string, err error, dup error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return storeUnavailable(op, err)
	}

	code := sqliteErr.Code()
	switch {
	case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return ErrNotFound
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		if dup != nil {
			return dup
		}
	case code == sqlite3.SQLITE_CONSTRAINT:
		msg := sqliteErr.Error()
		if strings.Contains(msg, "FOREIGN KEY") {
			return ErrNotFound
		}
		if strings.Contains(msg, "UNIQUE") && dup != nil {
			return dup
		}
	case code&0xff == sqlite3.SQLITE_BUSY || code&0xff == sqlite3.SQLITE_LOCKED ||
		code&0xff == sqlite3.SQLITE_CANTOPEN || code&0xff == sqlite3.SQLITE_IOERR:
		return storeUnavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
