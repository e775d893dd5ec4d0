// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/VA7DBI/authAPI/activity"
	"github.com/VA7DBI/authAPI/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
)

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string    `json:"token"`
	User      Identity  `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service implements registration, login, token verification and logout on
// top of a CredentialStore and a TokenStore. It holds no per-user state, so
// one Service is shared by all requests.
type Service struct {
	creds  CredentialStore
	tokens TokenStore
	hasher *hasher
	opts   options
	logger hclog.Logger
}

func NewService(creds CredentialStore, tokens TokenStore, opt ...Option) (*Service, error) {
	if creds == nil {
		return nil, errors.New("auth: nil credential store")
	}
	if tokens == nil {
		return nil, errors.New("auth: nil token store")
	}
	opts := getOpts(opt...)
	return &Service{
		creds:  creds,
		tokens: tokens,
		hasher: newHasher(opts.withHashCost, opts.withHashConcurrency),
		opts:   opts,
		logger: opts.withLogger.Named("auth"),
	}, nil
}

// Register creates an account and returns its id. It does not log the user
// in.
func (s *Service) Register(ctx context.Context, email, username, password string) (id int64, err error) {
	defer s.observe("register", time.Now(), &err)

	if email == "" || username == "" || password == "" {
		return 0, fmt.Errorf("%w: email, username, and password are required", ErrValidation)
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return 0, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return 0, err
	}

	id, err = s.creds.CreateUser(ctx, email, username, hash)
	if err != nil {
		if errors.Is(err, ErrDuplicateCredential) {
			return 0, ErrConflict
		}
		return 0, s.storeError("create user", err)
	}

	s.logger.Info("user registered", "user_id", id)
	return id, nil
}

// Login checks the password for identifier (a username or an email) and
// issues a new token. An unknown identifier and a wrong password both return
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, identifier, password string) (result *LoginResult, err error) {
	defer s.observe("login", time.Now(), &err)

	if identifier == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	user, err := s.creds.FindUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if derr := s.hasher.CompareDummy(ctx, password); derr != nil {
				return nil, derr
			}
			return nil, ErrInvalidCredentials
		}
		return nil, s.storeError("find user", err)
	}

	ok, err := s.hasher.Compare(ctx, user.PasswordHash, password)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Error("stored password hash is unusable", "user_id", user.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.issueToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.recordLogin(ctx, user)

	return &LoginResult{
		Token:     token,
		User:      user.Identity(),
		ExpiresAt: expiresAt,
	}, nil
}

// Verify resolves a token to the identity that owns it.
func (s *Service) Verify(ctx context.Context, token string) (identity *Identity, err error) {
	defer s.observe("verify", time.Now(), &err)
	return s.verify(ctx, token)
}

// Logout verifies token and then revokes it. Later calls to Verify with the
// same token return ErrInvalidToken.
func (s *Service) Logout(ctx context.Context, token string) (err error) {
	defer s.observe("logout", time.Now(), &err)

	identity, err := s.verify(ctx, token)
	if err != nil {
		return err
	}
	if err := s.tokens.RevokeToken(ctx, token); err != nil {
		return s.storeError("revoke token", err)
	}

	s.logger.Info("user logged out", "user_id", identity.ID)
	return nil
}

func (s *Service) verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	info, err := s.tokens.LookupToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, s.storeError("lookup token", err)
	}
	if info.Expired(s.opts.withClock()) {
		return nil, ErrExpiredToken
	}

	identity := info.Identity
	return &identity, nil
}

// issueToken stores a fresh token for userID. Collisions and store outages
// are retried up to the configured number of attempts.
func (s *Service) issueToken(ctx context.Context, userID int64) (string, time.Time, error) {
	expiresAt := s.opts.withClock().Add(s.opts.withTokenTTL)
	attempts := s.opts.withIssueAttempts

	var token string
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			metrics.TokenIssueRetries.Inc()
		}

		candidate, err := s.opts.withTokenGenerator()
		if err != nil {
			return backoff.Permanent(err)
		}

		err = s.tokens.IssueToken(ctx, userID, candidate, &expiresAt)
		switch {
		case err == nil:
			token = candidate
			return nil
		case errors.Is(err, ErrDuplicateToken):
			s.logger.Warn("token collision", "user_id", userID, "attempt", attempt)
			return err
		case errors.Is(err, ErrStoreUnavailable):
			s.logger.Warn("token store unavailable", "user_id", userID, "attempt", attempt, "error", err)
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.opts.withIssueBackOff(), uint64(attempts-1)), ctx)
	err := backoff.Retry(operation, b)
	switch {
	case err == nil:
		return token, expiresAt, nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return "", time.Time{}, err
	case errors.Is(err, ErrDuplicateToken) || errors.Is(err, ErrStoreUnavailable):
		s.logger.Error("token issuance gave up", "user_id", userID, "attempts", attempt, "error", err)
		return "", time.Time{}, fmt.Errorf("%w: issuing token after %d attempts: %v", ErrTransient, attempt, err)
	case errors.Is(err, ErrNotFound):
		// The account was removed between the password check and issuance.
		return "", time.Time{}, ErrInvalidCredentials
	default:
		return "", time.Time{}, s.storeError("issue token", err)
	}
}

func (s *Service) recordLogin(ctx context.Context, user *User) {
	if s.opts.withRecorder == nil {
		return
	}
	e := activity.Event{
		Timestamp:     s.opts.withClock().UTC(),
		UserID:        user.ID,
		Username:      user.Username,
		Email:         user.Email,
		Action:        activity.ActionLogin,
		SourceAddress: activity.SourceAddress(ctx),
	}
	if err := s.opts.withRecorder.RecordLogin(ctx, e); err != nil {
		s.logger.Warn("recording login failed", "user_id", user.ID, "error", err)
	}
}

// storeError passes through errors the caller can act on and wraps the rest.
func (s *Service) storeError(op string, err error) error {
	if errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.logger.Error("store failure", "op", op, "error", err)
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Service) observe(op string, start time.Time, err *error) {
	metrics.Requests.WithLabelValues(op, resultLabel(*err)).Inc()
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrMissingToken):
		return "missing_token"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrExpiredToken):
		return "expired_token"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
