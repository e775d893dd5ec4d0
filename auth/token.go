// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"fmt"

	"github.com/hashicorp/go-secure-stdlib/base62"
)

const (
	// TokenVersionPrefix leads every token so the format can change later.
	TokenVersionPrefix = "0"

	tokenRandomLength = 32
)

// TokenGenerator returns a new opaque token value.
type TokenGenerator func() (string, error)

// NewToken returns a version-prefixed random base62 token drawn from
// crypto/rand (about 190 bits of entropy).
func NewToken() (string, error) {
	v, err := base62.Random(tokenRandomLength)
	if err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return TokenVersionPrefix + v, nil
}
