// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"time"

	"github.com/VA7DBI/authAPI/activity"
	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 30 * 24 * time.Hour

// getOpts iterates the inbound Options and returns a struct.
func getOpts(opt ...Option) options {
	opts := getDefaultOptions()
	for _, o := range opt {
		if o != nil {
			o(&opts)
		}
	}
	return opts
}

// Option configures a Service.
type Option func(*options)

type options struct {
	withClock           func() time.Time
	withTokenTTL        time.Duration
	withHashCost        int
	withIssueAttempts   int
	withHashConcurrency int64
	withLogger          hclog.Logger
	withRecorder        activity.Recorder
	withTokenGenerator  TokenGenerator
	withIssueBackOff    func() backoff.BackOff
}

func getDefaultOptions() options {
	return options{
		withClock:          time.Now,
		withTokenTTL:       DefaultTokenTTL,
		withHashCost:       MinHashCost,
		withIssueAttempts:  3,
		withLogger:         hclog.NewNullLogger(),
		withTokenGenerator: NewToken,
		withIssueBackOff:   defaultIssueBackOff,
	}
}

func defaultIssueBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	return b
}

// WithClock sets the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.withClock = now
		}
	}
}

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.withTokenTTL = ttl
		}
	}
}

// WithHashCost sets the bcrypt cost. Values below MinHashCost are raised.
func WithHashCost(cost int) Option {
	return func(o *options) {
		o.withHashCost = cost
	}
}

// WithIssueAttempts bounds how many times token issuance is tried.
func WithIssueAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.withIssueAttempts = n
		}
	}
}

// WithHashConcurrency bounds concurrent bcrypt computations. Zero means
// unbounded.
func WithHashConcurrency(n int64) Option {
	return func(o *options) {
		o.withHashConcurrency = n
	}
}

func WithLogger(l hclog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.withLogger = l
		}
	}
}

// WithRecorder sets the hook notified after each successful login.
func WithRecorder(r activity.Recorder) Option {
	return func(o *options) {
		o.withRecorder = r
	}
}

// WithTokenGenerator replaces the token value source.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(o *options) {
		if g != nil {
			o.withTokenGenerator = g
		}
	}
}

// withIssueBackOff replaces the delay policy between issuance attempts.
func withIssueBackOff(f func() backoff.BackOff) Option {
	return func(o *options) {
		o.withIssueBackOff = f
	}
}
