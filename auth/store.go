// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"errors"
	"time"
)

// Store-level errors. Backends translate driver errors into these so the
// service never inspects driver types.
var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateCredential = errors.New("duplicate credential")
	ErrDuplicateToken      = errors.New("duplicate token")
)

// User is a registered account as persisted by a CredentialStore.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the public view of a user. It never carries the password hash.
type Identity struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Identity returns the public view of u.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email, Username: u.Username}
}

// Token is an issued bearer token row.
type Token struct {
	ID        int64
	UserID    int64
	Token     string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// TokenInfo is the result of a token lookup: the owning identity plus the
// token's expiry. A nil ExpiresAt never expires.
type TokenInfo struct {
	Identity
	ExpiresAt *time.Time
}

// Expired reports whether the token is past its expiry at now.
func (t *TokenInfo) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// CredentialStore persists user identities and password hashes.
type CredentialStore interface {
	// CreateUser fails with ErrDuplicateCredential if the email or
	// username is taken.
	CreateUser(ctx context.Context, email, username, passwordHash string) (int64, error)

	// FindUserByIdentifier matches identifier against username or email.
	// An exact username match takes precedence over an email match; ties
	// resolve to the lowest id. Returns ErrNotFound if nothing matches.
	FindUserByIdentifier(ctx context.Context, identifier string) (*User, error)
}

// TokenStore persists issued tokens.
type TokenStore interface {
	// IssueToken fails with ErrDuplicateToken if the value already exists.
	IssueToken(ctx context.Context, userID int64, token string, expiresAt *time.Time) error

	// LookupToken returns ErrNotFound if the token does not exist.
	LookupToken(ctx context.Context, token string) (*TokenInfo, error)

	// RevokeToken deletes the token. Revoking an unknown token is not an error.
	RevokeToken(ctx context.Context, token string) error
}

// ExpiredTokenPurger is implemented by token stores that can delete
// expired rows in bulk.
type ExpiredTokenPurger interface {
	PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// Store is a backend that serves both credentials and tokens.
type Store interface {
	CredentialStore
	TokenStore
	ExpiredTokenPurger
	Close() error
}
