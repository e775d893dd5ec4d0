// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/VA7DBI/authAPI/metrics"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const (
	// MinHashCost is the lowest bcrypt cost the service will use.
	MinHashCost = 10

	minPasswordLength = 6
	maxPasswordBytes  = 72
)

// hasher wraps bcrypt with an optional bound on concurrent computations.
type hasher struct {
	cost int
	sem  *semaphore.Weighted

	dummyOnce sync.Once
	dummy     []byte
}

func newHasher(cost int, concurrency int64) *hasher {
	if cost < MinHashCost {
		cost = MinHashCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	h := &hasher{cost: cost}
	if concurrency > 0 {
		h.sem = semaphore.NewWeighted(concurrency)
	}
	return h
}

func (h *hasher) acquire(ctx context.Context) (func(), error) {
	if h.sem == nil {
		return func() {}, nil
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { h.sem.Release(1) }, nil
}

// Hash returns the bcrypt hash of password. Passwords longer than bcrypt's
// 72 byte limit are rejected with ErrValidation.
func (h *hasher) Hash(ctx context.Context, password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("%w: password must be at most %d bytes", ErrValidation, maxPasswordBytes)
	}

	release, err := h.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	start := time.Now()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	metrics.PasswordHashDuration.WithLabelValues("hash").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password must be at most %d bytes", ErrValidation, maxPasswordBytes)
		}
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// Compare reports whether password matches hash. A malformed hash is
// reported as an error alongside false.
func (h *hasher) Compare(ctx context.Context, hash, password string) (bool, error) {
	// bcrypt ignores bytes past the limit, so such a password could match on
	// its prefix. No stored password can be that long.
	if len(password) > maxPasswordBytes {
		return false, h.CompareDummy(ctx, password)
	}

	release, err := h.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	start := time.Now()
	err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	metrics.PasswordHashDuration.WithLabelValues("compare").Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("comparing password: %w", err)
	}
}

// CompareDummy spends the same work as Compare against a fixed hash. It is
// used when the account does not exist.
func (h *hasher) CompareDummy(ctx context.Context, password string) error {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("authapi-dummy-password"), h.cost)
	})

	release, err := h.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if len(password) > maxPasswordBytes {
		password = password[:maxPasswordBytes]
	}
	start := time.Now()
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
	metrics.PasswordHashDuration.WithLabelValues("compare").Observe(time.Since(start).Seconds())
	return nil
}
