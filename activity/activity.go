// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

// Package activity records user activity events such as logins.
package activity

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
)

const ActionLogin = "login"

// Event is a single user activity record.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	UserID        int64     `json:"userId"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Action        string    `json:"action"`
	SourceAddress string    `json:"ipAddress"`
}

// Recorder receives login events. Implementations must be safe for
// concurrent use. A returned error is logged by the caller and never fails
// the login.
type Recorder interface {
	RecordLogin(ctx context.Context, e Event) error
}

// RecorderFunc adapts a function to a Recorder.
type RecorderFunc func(ctx context.Context, e Event) error

func (f RecorderFunc) RecordLogin(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Multi sends each event to every recorder and collects their errors.
type Multi []Recorder

func (m Multi) RecordLogin(ctx context.Context, e Event) error {
	var result *multierror.Error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.RecordLogin(ctx, e); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

type sourceAddressKey struct{}

// WithSourceAddress returns a copy of ctx carrying the client address.
func WithSourceAddress(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, sourceAddressKey{}, addr)
}

// SourceAddress returns the client address stored on ctx, or "".
func SourceAddress(ctx context.Context) string {
	addr, _ := ctx.Value(sourceAddressKey{}).(string)
	return addr
}
