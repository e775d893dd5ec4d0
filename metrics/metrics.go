// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authapi_requests_total",
		Help: "Total number of auth operations by outcome",
	}, []string{"operation", "result"})

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authapi_operation_duration_seconds",
		Help:    "Time spent serving auth operations",
		Buckets: prometheus.ExponentialBuckets(0.001, 2.0, 12), // 1ms to ~2s
	}, []string{"operation"})

	PasswordHashDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authapi_password_hash_duration_seconds",
		Help:    "Time spent hashing or comparing passwords",
		Buckets: prometheus.ExponentialBuckets(0.01, 2.0, 10), // 10ms to ~5s
	}, []string{"kind"})

	TokenIssueRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authapi_token_issue_retries_total",
		Help: "Token issuance attempts retried after a collision or store failure",
	})

	TokenCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authapi_token_cache_total",
		Help: "Token cache lookups by result (hit, miss, error)",
	}, []string{"result"})

	TokensPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authapi_tokens_purged_total",
		Help: "Expired tokens deleted by the purger",
	})

	RelayEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authapi_relay_events_total",
		Help: "Change events handled by the relay",
	}, []string{"result"})
)
