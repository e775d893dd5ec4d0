// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/VA7DBI/authAPI/config"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-secure-stdlib/base62"
)

const generatedPasswordLength = 20

// BootstrapDefaultUser registers the configured default account unless a
// user with the same username or email already exists. It reports whether
// an account was created. Losing a concurrent race to create the same
// account counts as success.
func BootstrapDefaultUser(ctx context.Context, svc *Service, creds CredentialStore, cfg *config.Config, logger hclog.Logger) (bool, error) {
	if !cfg.Bootstrap.Enabled {
		return false, nil
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("bootstrap")

	username := cfg.Bootstrap.Username
	email := cfg.Bootstrap.Email

	for _, identifier := range []string{username, email} {
		_, err := creds.FindUserByIdentifier(ctx, identifier)
		switch {
		case err == nil:
			logger.Info("default user already exists", "username", username)
			return false, nil
		case !errors.Is(err, ErrNotFound):
			return false, fmt.Errorf("checking for default user: %w", err)
		}
	}

	password := cfg.Bootstrap.Password
	generated := false
	if password == "" {
		p, err := base62.Random(generatedPasswordLength)
		if err != nil {
			return false, fmt.Errorf("generating default password: %w", err)
		}
		password = p
		generated = true
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	id, err := svc.Register(ctx, email, username, password)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			logger.Info("default user created concurrently", "username", username)
			return false, nil
		}
		return false, fmt.Errorf("creating default user: %w", err)
	}

	logger.Info("default user created", "user_id", id, "username", username, "email", email)
	if generated {
		logger.Warn("generated password for default user, change it after first login",
			"username", username, "password", password)
	}
	return true, nil
}
