// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"errors"
	"fmt"
)

// Errors returned by Service. Match them with errors.Is; most are wrapped
// with a short description of the failing input.
var (
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("email or username already exists")

	// ErrInvalidCredentials covers both an unknown identifier and a wrong
	// password. Callers must not be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrMissingToken = errors.New("no token provided")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")

	// ErrTransient is safe to retry: token issuance kept colliding or the
	// store dropped out while issuing.
	ErrTransient = errors.New("temporary failure, try again")

	ErrStoreUnavailable = errors.New("store unavailable")
)

// storeUnavailable marks a driver failure the service cannot interpret.
func storeUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
