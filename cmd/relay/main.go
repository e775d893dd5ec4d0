// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

// Command relay consumes database change events from a Redis stream and
// writes them to the change log.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/VA7DBI/authAPI/auth"
	"github.com/VA7DBI/authAPI/config"
	"github.com/VA7DBI/authAPI/logging"
	"github.com/VA7DBI/authAPI/relay"
	"github.com/hashicorp/go-hclog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	configFile = flag.String("config", "config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New("relay", cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("relay exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger hclog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := auth.NewRedisClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	out, closer, err := changeLogWriter(cfg)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	changes := hclog.New(&hclog.LoggerOptions{
		Name:       "db-changes",
		Level:      hclog.Info,
		Output:     out,
		JSONFormat: true,
	})

	return relay.New(client, cfg, changes, logger).Run(ctx)
}

// changeLogWriter sends entries to stdout and, when configured, to a
// rotating file.
func changeLogWriter(cfg *config.Config) (io.Writer, io.Closer, error) {
	if cfg.Relay.ChangeLogFile == "" {
		return os.Stdout, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Relay.ChangeLogFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating change log directory: %v", err)
	}
	file := &lumberjack.Logger{
		Filename:   cfg.Relay.ChangeLogFile,
		MaxSize:    cfg.Activity.MaxSizeMB,
		MaxBackups: cfg.Activity.MaxBackups,
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, file), file, nil
}
