// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/VA7DBI/authAPI/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() Event {
	return Event{
		Timestamp:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		UserID:        7,
		Username:      "alice",
		Email:         "a@x.io",
		Action:        ActionLogin,
		SourceAddress: "203.0.113.9",
	}
}

func TestEventJSON(t *testing.T) {
	data, err := json.Marshal(testEvent())
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "2025-03-01T12:00:00Z", fields["timestamp"])
	assert.Equal(t, float64(7), fields["userId"])
	assert.Equal(t, "alice", fields["username"])
	assert.Equal(t, "a@x.io", fields["email"])
	assert.Equal(t, "login", fields["action"])
	assert.Equal(t, "203.0.113.9", fields["ipAddress"])
}

func TestSourceAddressContext(t *testing.T) {
	assert.Equal(t, "", SourceAddress(context.Background()))

	ctx := WithSourceAddress(context.Background(), "198.51.100.1")
	assert.Equal(t, "198.51.100.1", SourceAddress(ctx))
}

func TestLogRecorder(t *testing.T) {
	var buf bytes.Buffer
	r := NewLogRecorder(&buf)

	require.NoError(t, r.RecordLogin(context.Background(), testEvent()))
	require.NoError(t, r.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &fields))
	assert.Equal(t, "login", fields["@message"])
	assert.Equal(t, "2025-03-01T12:00:00Z", fields["timestamp"])
	assert.Equal(t, float64(7), fields["userId"])
	assert.Equal(t, "alice", fields["username"])
	assert.Equal(t, "a@x.io", fields["email"])
	assert.Equal(t, "login", fields["action"])
	assert.Equal(t, "203.0.113.9", fields["ipAddress"])
}

func TestOpenLogRecorderFile(t *testing.T) {
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Activity.File = filepath.Join(t.TempDir(), "logs", "activity.log")

	r, err := OpenLogRecorder(cfg)
	require.NoError(t, err)

	require.NoError(t, r.RecordLogin(context.Background(), testEvent()))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(cfg.Activity.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"username":"alice"`)
	assert.Contains(t, string(data), `"ipAddress":"203.0.113.9"`)
}

func TestMulti(t *testing.T) {
	t.Run("FansOut", func(t *testing.T) {
		var got []string
		m := Multi{
			RecorderFunc(func(_ context.Context, e Event) error {
				got = append(got, "first:"+e.Username)
				return nil
			}),
			nil,
			RecorderFunc(func(_ context.Context, e Event) error {
				got = append(got, "second:"+e.Username)
				return nil
			}),
		}

		assert.NoError(t, m.RecordLogin(context.Background(), testEvent()))
		assert.Equal(t, []string{"first:alice", "second:alice"}, got)
	})

	t.Run("CollectsErrors", func(t *testing.T) {
		errA := errors.New("sink a down")
		errB := errors.New("sink b down")
		called := false
		m := Multi{
			RecorderFunc(func(context.Context, Event) error { return errA }),
			RecorderFunc(func(context.Context, Event) error { called = true; return nil }),
			RecorderFunc(func(context.Context, Event) error { return errB }),
		}

		err := m.RecordLogin(context.Background(), testEvent())
		assert.True(t, called)
		assert.ErrorIs(t, err, errA)
		assert.ErrorIs(t, err, errB)
	})
}
