// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps users and tokens in process memory. It enforces the same
// uniqueness rules as the SQL backends and is used for the "memory" driver
// and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	nextTok int64
	users   map[int64]*User
	tokens  map[string]*Token
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[int64]*User),
		tokens: make(map[string]*Token),
		now:    time.Now,
	}
}

func (m *MemoryStore) CreateUser(ctx context.Context, email, username, passwordHash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email || u.Username == username {
			return 0, ErrDuplicateCredential
		}
	}

	m.nextID++
	m.users[m.nextID] = &User{
		ID:           m.nextID,
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    m.now().UTC(),
	}
	return m.nextID, nil
}

func (m *MemoryStore) FindUserByIdentifier(ctx context.Context, identifier string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var byEmail *User
	for _, u := range m.users {
		if u.Username == identifier {
			cp := *u
			return &cp, nil
		}
		if u.Email == identifier && (byEmail == nil || u.ID < byEmail.ID) {
			byEmail = u
		}
	}
	if byEmail == nil {
		return nil, ErrNotFound
	}
	cp := *byEmail
	return &cp, nil
}

func (m *MemoryStore) IssueToken(ctx context.Context, userID int64, token string, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tokens[token]; ok {
		return ErrDuplicateToken
	}
	if _, ok := m.users[userID]; !ok {
		return ErrNotFound
	}

	m.nextTok++
	m.tokens[token] = &Token{
		ID:        m.nextTok,
		UserID:    userID,
		Token:     token,
		CreatedAt: m.now().UTC(),
		ExpiresAt: expiresAt,
	}
	return nil
}

func (m *MemoryStore) LookupToken(ctx context.Context, token string) (*TokenInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	u, ok := m.users[t.UserID]
	if !ok {
		return nil, ErrNotFound
	}
	return &TokenInfo{Identity: u.Identity(), ExpiresAt: t.ExpiresAt}, nil
}

func (m *MemoryStore) RevokeToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tokens, token)
	return nil
}

func (m *MemoryStore) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, t := range m.tokens {
		if t.ExpiresAt != nil && !now.Before(*t.ExpiresAt) {
			delete(m.tokens, k)
			n++
		}
	}
	return n, nil
}

// DeleteUser removes a user and, like the SQL schema's cascade, every token
// the user owns.
func (m *MemoryStore) DeleteUser(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.users, id)
	for k, t := range m.tokens {
		if t.UserID == id {
			delete(m.tokens, k)
		}
	}
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
