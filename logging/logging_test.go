// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/VA7DBI/authAPI/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOutput(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Logging.Level = "debug"
		cfg.Logging.JSON = true

		var buf bytes.Buffer
		logger := NewWithOutput("authapi", cfg, &buf)
		logger.Debug("hello", "user_id", 7)

		var fields map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
		assert.Equal(t, "hello", fields["@message"])
		assert.Equal(t, "authapi", fields["@module"])
		assert.Equal(t, float64(7), fields["user_id"])
	})

	t.Run("LevelFilters", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Logging.Level = "warn"

		var buf bytes.Buffer
		logger := NewWithOutput("authapi", cfg, &buf)
		logger.Info("quiet")
		logger.Warn("loud")

		assert.NotContains(t, buf.String(), "quiet")
		assert.Contains(t, buf.String(), "loud")
	})

	t.Run("UnknownLevelDefaultsToInfo", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Logging.Level = "chatty"

		var buf bytes.Buffer
		logger := NewWithOutput("authapi", cfg, &buf)
		logger.Debug("hidden")
		logger.Info("shown")

		out := buf.String()
		assert.False(t, strings.Contains(out, "hidden"))
		assert.True(t, strings.Contains(out, "shown"))
	})
}
