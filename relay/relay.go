// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

// Package relay consumes database change events from a Redis stream and
// writes them to a structured change log.
package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/VA7DBI/authAPI/config"
	"github.com/VA7DBI/authAPI/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
)

// payloadField is the stream entry field holding the event document.
const payloadField = "value"

// Relay reads a stream through a consumer group and acknowledges every
// message once it has been logged, including ones it could not decode.
type Relay struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
	batch    int64

	changes hclog.Logger
	logger  hclog.Logger
	now     func() time.Time

	newBackOff func() backoff.BackOff
}

// New builds a Relay from cfg.Relay. changes receives one JSON line per
// entry; logger receives operational messages.
func New(client *redis.Client, cfg *config.Config, changes, logger hclog.Logger) *Relay {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if changes == nil {
		changes = hclog.NewNullLogger()
	}
	return &Relay{
		client:     client,
		stream:     cfg.Relay.Stream,
		group:      cfg.Relay.Group,
		consumer:   cfg.Relay.Consumer,
		block:      cfg.Relay.Block,
		batch:      cfg.Relay.Batch,
		changes:    changes,
		logger:     logger.Named("relay"),
		now:        time.Now,
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 300 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Run consumes until ctx is done. Connection failures are retried with
// backoff; Run returns nil once ctx ends.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("starting change relay", "stream", r.stream, "group", r.group, "consumer", r.consumer)

	b := backoff.WithContext(r.newBackOff(), ctx)
	operation := func() error {
		if err := r.ensureGroup(ctx); err != nil {
			return err
		}
		// Connected again; the next failure starts from the initial wait.
		b.Reset()
		r.logger.Info("subscribed to stream", "stream", r.stream)
		return r.consume(ctx)
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("relay connection failed, retrying", "error", err, "wait", wait)
	}

	err := backoff.RetryNotify(operation, b, notify)
	if ctx.Err() != nil {
		r.logger.Info("change relay stopped")
		return nil
	}
	return err
}

func (r *Relay) ensureGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.stream, r.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// consume first re-reads entries delivered to this consumer but never
// acknowledged, then follows new entries.
func (r *Relay) consume(ctx context.Context) error {
	start := "0"
	for {
		if ctx.Err() != nil {
			return nil
		}

		args := &redis.XReadGroupArgs{
			Group:    r.group,
			Consumer: r.consumer,
			Streams:  []string{r.stream, start},
			Count:    r.batch,
			Block:    r.block,
		}
		if start != ">" {
			// History reads never block.
			args.Block = -1
		}

		streams, err := r.client.XReadGroup(ctx, args).Result()
		if errors.Is(err, redis.Nil) {
			start = ">"
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		read := 0
		for _, s := range streams {
			for _, msg := range s.Messages {
				read++
				r.handle(msg)
				if err := r.client.XAck(ctx, r.stream, r.group, msg.ID).Err(); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
			}
		}
		if read == 0 {
			start = ">"
		}
	}
}

func (r *Relay) handle(msg redis.XMessage) {
	value, ok := msg.Values[payloadField].(string)
	if !ok {
		r.logger.Error("message has no payload", "id", msg.ID)
		metrics.RelayEvents.WithLabelValues("invalid").Inc()
		return
	}

	entries, err := Decode([]byte(value), r.now().UTC())
	if err != nil {
		r.logger.Error("error processing message", "id", msg.ID, "error", err, "raw", value)
		metrics.RelayEvents.WithLabelValues("invalid").Inc()
		return
	}

	for _, e := range entries {
		r.write(e)
	}
}

func (r *Relay) write(e Entry) {
	ts := e.Timestamp.Format(time.RFC3339Nano)
	if e.Raw() {
		r.changes.Info(e.EventType, "timestamp", ts, "eventType", e.EventType, "data", e.Data)
		metrics.RelayEvents.WithLabelValues("raw").Inc()
		return
	}

	r.changes.Info(e.EventType,
		"timestamp", ts,
		"database", e.Database,
		"table", e.Table,
		"eventType", e.EventType,
		"data", e.Data,
		"old", e.Old,
	)
	r.logger.Info("database change", "type", e.EventType, "table", e.Database+"."+e.Table)
	metrics.RelayEvents.WithLabelValues("logged").Inc()
}
