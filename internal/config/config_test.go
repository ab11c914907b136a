// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_is_valid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.6, cfg.Router.FallbackThreshold)
	assert.Equal(t, 1000, cfg.Security.RateLimit)
	assert.Equal(t, time.Minute, cfg.Security.RateWindow())
	assert.Equal(t, 30*time.Second, cfg.Router.FallbackHardCap())
}

func TestLoad_toml_file(t *testing.T) {
	path := writeConfig(t, `
component_id = "node-a"

[server]
addr = "0.0.0.0:9000"

[router]
fallback_threshold = 0.75
hard_cap_secs = 20

[security]
rate_limit = 50
rate_window_secs = 10

[transport]
stream_endpoint = "tcp://127.0.0.1:5555"
kafka_brokers = ["localhost:9092"]

[transport.http_peers]
worker = "http://localhost:8091"

[logging]
level = "debug"
encoding = "console"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "node-a", cfg.ComponentID)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, 0.75, cfg.Router.FallbackThreshold)
	assert.Equal(t, 20*time.Second, cfg.Router.FallbackHardCap())
	assert.Equal(t, 50, cfg.Security.RateLimit)
	assert.Equal(t, "http://localhost:8091", cfg.Transport.HTTPPeers["worker"])
	assert.Equal(t, []string{"localhost:9092"}, cfg.Transport.KafkaBrokers)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset fields keep defaults.
	assert.Equal(t, 30, cfg.Router.DefaultTimeoutSecs)
}

func TestLoad_empty_path_gives_defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Addr, cfg.Server.Addr)
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_env_overrides(t *testing.T) {
	t.Setenv("MODMESH_COMPONENT_ID", "node-env")
	t.Setenv("MODMESH_RATE_LIMIT", "7")
	t.Setenv("MODMESH_KAFKA_BROKERS", "b1:9092,b2:9092")
	t.Setenv("MODMESH_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "node-env", cfg.ComponentID)
	assert.Equal(t, 7, cfg.Security.RateLimit)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.Transport.KafkaBrokers)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate_rejects_bad_fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty component id", func(c *Config) { c.ComponentID = "" }, "component_id"},
		{"zero threshold", func(c *Config) { c.Router.FallbackThreshold = 0 }, "router.fallback_threshold"},
		{"threshold above one", func(c *Config) { c.Router.FallbackThreshold = 1.5 }, "router.fallback_threshold"},
		{"negative rate limit", func(c *Config) { c.Security.RateLimit = -1 }, "security.rate_limit"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad encoding", func(c *Config) { c.Logging.Encoding = "xml" }, "logging.encoding"},
		{"telemetry without path", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Path = "" }, "telemetry.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestSave_round_trip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.toml")

	cfg := Default()
	cfg.ComponentID = "node-saved"
	cfg.Router.FallbackThreshold = 0.8
	require.NoError(t, Save(cfg, path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "node-saved", back.ComponentID)
	assert.Equal(t, 0.8, back.Router.FallbackThreshold)
}

func TestWatcher_reloads_on_change(t *testing.T) {
	path := writeConfig(t, `component_id = "before"`)

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, nil, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	require.NoError(t, w.Watch())
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(`component_id = "after"`), 0o600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "after", cfg.ComponentID)
	case <-time.After(3 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestWatcher_keeps_previous_on_invalid_edit(t *testing.T) {
	path := writeConfig(t, `component_id = "good"`)

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, nil, func(cfg *Config) { reloaded <- cfg })
	require.NoError(t, err)
	require.NoError(t, w.Watch())
	defer w.Close()

	// Invalid rate limit fails validation: the callback must not fire.
	require.NoError(t, os.WriteFile(path, []byte("component_id = \"good\"\n\n[security]\nrate_limit = -5\n"), 0o600))

	select {
	case cfg := <-reloaded:
		t.Fatalf("callback fired for invalid config: %+v", cfg)
	case <-time.After(time.Second):
	}
}
