// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package relay

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	unknown      = "unknown"
	rawEventType = "raw_cdc_event"
)

// ChangeEvent is a canal-JSON row change as emitted by TiCDC.
type ChangeEvent struct {
	Database string            `json:"database"`
	Table    string            `json:"table"`
	Type     string            `json:"type"`
	Data     []json.RawMessage `json:"data"`
	Old      []json.RawMessage `json:"old"`
}

// Entry is one line of the change log.
type Entry struct {
	Timestamp time.Time       `json:"timestamp"`
	Database  string          `json:"database,omitempty"`
	Table     string          `json:"table,omitempty"`
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
	Old       json.RawMessage `json:"old,omitempty"`
}

// Raw reports whether the entry carries an unrecognised payload verbatim.
func (e Entry) Raw() bool {
	return e.EventType == rawEventType
}

// Decode turns a message payload into change log entries. A canal-JSON
// event yields one entry per changed row; any other JSON document yields a
// single raw entry. Payloads that are not JSON are an error.
func Decode(payload []byte, now time.Time) ([]Entry, error) {
	var probe struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		if !json.Valid(payload) {
			return nil, fmt.Errorf("decoding change event: %v", err)
		}
		// Valid JSON but not an object.
		return []Entry{rawEntry(payload, now)}, nil
	}

	var ev ChangeEvent
	if len(probe.Data) == 0 || probe.Data[0] != '[' || json.Unmarshal(payload, &ev) != nil {
		return []Entry{rawEntry(payload, now)}, nil
	}

	database := orUnknown(ev.Database)
	table := orUnknown(ev.Table)
	eventType := orUnknown(ev.Type)

	entries := make([]Entry, 0, len(ev.Data))
	for i, row := range ev.Data {
		entry := Entry{
			Timestamp: now,
			Database:  database,
			Table:     table,
			EventType: eventType,
			Data:      row,
			Old:       json.RawMessage("null"),
		}
		if i < len(ev.Old) && len(ev.Old[i]) > 0 {
			entry.Old = ev.Old[i]
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func rawEntry(payload []byte, now time.Time) Entry {
	return Entry{
		Timestamp: now,
		EventType: rawEventType,
		Data:      json.RawMessage(payload),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
