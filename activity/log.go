// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package activity

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/VA7DBI/authAPI/config"
	"github.com/hashicorp/go-hclog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogRecorder writes each event as one JSON object per line.
type LogRecorder struct {
	logger hclog.Logger
	closer io.Closer
}

// NewLogRecorder writes events to w.
func NewLogRecorder(w io.Writer) *LogRecorder {
	return &LogRecorder{
		logger: hclog.New(&hclog.LoggerOptions{
			Name:       "user-activity",
			Level:      hclog.Info,
			Output:     w,
			JSONFormat: true,
		}),
	}
}

// OpenLogRecorder builds a LogRecorder from cfg.Activity. Events go to a
// rotating file when one is configured, to stdout when requested, and to
// stdout alone when neither is set.
func OpenLogRecorder(cfg *config.Config) (*LogRecorder, error) {
	var writers []io.Writer
	var file *lumberjack.Logger

	if cfg.Activity.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Activity.File), 0o755); err != nil {
			return nil, fmt.Errorf("creating activity log directory: %v", err)
		}
		file = &lumberjack.Logger{
			Filename:   cfg.Activity.File,
			MaxSize:    cfg.Activity.MaxSizeMB,
			MaxBackups: cfg.Activity.MaxBackups,
			Compress:   true,
		}
		writers = append(writers, file)
	}
	if cfg.Activity.Stdout || file == nil {
		writers = append(writers, os.Stdout)
	}

	r := NewLogRecorder(io.MultiWriter(writers...))
	if file != nil {
		r.closer = file
	}
	return r, nil
}

func (r *LogRecorder) RecordLogin(_ context.Context, e Event) error {
	r.logger.Info(e.Action,
		"timestamp", e.Timestamp.UTC().Format(time.RFC3339Nano),
		"userId", e.UserID,
		"username", e.Username,
		"email", e.Email,
		"action", e.Action,
		"ipAddress", e.SourceAddress,
	)
	return nil
}

// Close flushes and closes the rotating file, if any.
func (r *LogRecorder) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
