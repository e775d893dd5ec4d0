// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"time"

	"github.com/VA7DBI/authAPI/metrics"
	"github.com/hashicorp/go-hclog"
)

// RunPurger deletes expired tokens every interval until ctx is done. Verify
// already rejects expired tokens; the purger only reclaims their rows. It
// returns immediately when interval is not positive.
func RunPurger(ctx context.Context, purger ExpiredTokenPurger, interval time.Duration, now func() time.Time, logger hclog.Logger) {
	if purger == nil || interval <= 0 {
		return
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("purger")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purgeOnce(ctx, purger, now(), logger)
		}
	}
}

func purgeOnce(ctx context.Context, purger ExpiredTokenPurger, now time.Time, logger hclog.Logger) int64 {
	n, err := purger.PurgeExpiredTokens(ctx, now)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("purging expired tokens failed", "error", err)
		}
		return 0
	}
	if n > 0 {
		metrics.TokensPurged.Add(float64(n))
		logger.Debug("purged expired tokens", "count", n)
	}
	return n
}
