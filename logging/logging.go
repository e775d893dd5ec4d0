// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

// Package logging builds the service logger.
package logging

import (
	"io"
	"os"

	"github.com/VA7DBI/authAPI/config"
	"github.com/hashicorp/go-hclog"
)

// New returns the root logger named name, writing to stderr.
func New(name string, cfg *config.Config) hclog.Logger {
	return NewWithOutput(name, cfg, os.Stderr)
}

// NewWithOutput is New with an explicit destination.
func NewWithOutput(name string, cfg *config.Config, w io.Writer) hclog.Logger {
	level := hclog.LevelFromString(cfg.Logging.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		Output:     w,
		JSONFormat: cfg.Logging.JSON,
	})
}
