// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading for modmesh.
//
// Supports TOML configuration files with sensible defaults, environment
// variable overrides, and validation.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/modmesh/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete modmesh configuration.
type Config struct {
	// ComponentID names this node on the mesh.
	ComponentID string `toml:"component_id"`

	Server    ServerConfig    `toml:"server"`
	Router    RouterConfig    `toml:"router"`
	Security  SecurityConfig  `toml:"security"`
	Transport TransportConfig `toml:"transport"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ServerConfig contains HTTP ingress settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:8090".
	Addr string `toml:"addr"`
	// AuthToken guards the ingress endpoints. Empty disables auth.
	AuthToken string `toml:"auth_token"`
	// ReadTimeoutSecs / WriteTimeoutSecs bound request handling.
	ReadTimeoutSecs  int `toml:"read_timeout_secs"`
	WriteTimeoutSecs int `toml:"write_timeout_secs"`
}

// RouterConfig contains routing and fallback settings.
type RouterConfig struct {
	// FallbackThreshold triggers fallback when a scored confidence falls
	// below it. Range (0,1].
	FallbackThreshold float64 `toml:"fallback_threshold"`
	// HardCapSecs triggers fallback when processing exceeds it.
	HardCapSecs int `toml:"hard_cap_secs"`
	// DefaultTimeoutSecs bounds each module invocation when the request
	// carries no timeout.
	DefaultTimeoutSecs int `toml:"default_timeout_secs"`
	// Provisioning enables dynamic module provisioning.
	Provisioning bool `toml:"provisioning"`
}

// SecurityConfig contains gate settings.
type SecurityConfig struct {
	// RateLimit is the per-source request budget per window.
	RateLimit int `toml:"rate_limit"`
	// RateWindowSecs is the sliding window length.
	RateWindowSecs int `toml:"rate_window_secs"`
	// SharedKey, when set, is required as every component's api_key.
	SharedKey string `toml:"shared_key"`
	// CipherPassphrase, when set, enables AES-GCM payload encryption.
	CipherPassphrase string `toml:"cipher_passphrase"`
}

// TransportConfig contains channel endpoints.
type TransportConfig struct {
	// HTTPPeers maps component ids to base URLs for HTTP channels.
	HTTPPeers map[string]string `toml:"http_peers"`
	// StreamEndpoint is the ZeroMQ endpoint for the streaming channel.
	// Empty disables it.
	StreamEndpoint string `toml:"stream_endpoint"`
	// KafkaBrokers enables the queue channel when non-empty.
	KafkaBrokers []string `toml:"kafka_brokers"`
	// QueuePeers lists component ids reached via the queue channel.
	QueuePeers []string `toml:"queue_peers"`
}

// TelemetryConfig contains the decision log settings.
type TelemetryConfig struct {
	// Enabled turns on the SQLite decision log.
	Enabled bool `toml:"enabled"`
	// Path is the SQLite database file.
	Path string `toml:"path"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `toml:"level"`
	// Encoding is "json" or "console".
	Encoding string `toml:"encoding"`
	// OutputPath is a file path, "stdout", or "stderr".
	OutputPath string `toml:"output_path"`
}

// FallbackHardCap returns the configured hard cap as a duration.
func (c *RouterConfig) FallbackHardCap() time.Duration {
	return time.Duration(c.HardCapSecs) * time.Second
}

// RateWindow returns the sliding window as a duration.
func (c *SecurityConfig) RateWindow() time.Duration {
	return time.Duration(c.RateWindowSecs) * time.Second
}

// =============================================================================
// DEFAULTS AND LOADING
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ComponentID: "modmesh",
		Server: ServerConfig{
			Addr:             "127.0.0.1:8090",
			ReadTimeoutSecs:  30,
			WriteTimeoutSecs: 60,
		},
		Router: RouterConfig{
			FallbackThreshold:  0.6,
			HardCapSecs:        30,
			DefaultTimeoutSecs: 30,
			Provisioning:       false,
		},
		Security: SecurityConfig{
			RateLimit:      1000,
			RateWindowSecs: 60,
		},
		Transport: TransportConfig{
			HTTPPeers: map[string]string{},
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
			Path:    "modmesh.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Encoding:   "json",
			OutputPath: "stderr",
		},
	}
}

// Load reads configuration from path (TOML), applies environment overrides,
// and validates the result. An empty path yields defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not readable: %w", err)
		}
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML file: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides:
//   - MODMESH_COMPONENT_ID: overrides component_id
//   - MODMESH_ADDR: overrides server.addr
//   - MODMESH_AUTH_TOKEN: overrides server.auth_token
//   - MODMESH_SHARED_KEY: overrides security.shared_key
//   - MODMESH_CIPHER_PASSPHRASE: overrides security.cipher_passphrase
//   - MODMESH_RATE_LIMIT: overrides security.rate_limit
//   - MODMESH_KAFKA_BROKERS: comma-separated, overrides transport.kafka_brokers
//   - MODMESH_LOG_LEVEL: overrides logging.level
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MODMESH_COMPONENT_ID"); v != "" {
		c.ComponentID = v
	}
	if v := os.Getenv("MODMESH_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MODMESH_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("MODMESH_SHARED_KEY"); v != "" {
		c.Security.SharedKey = v
	}
	if v := os.Getenv("MODMESH_CIPHER_PASSPHRASE"); v != "" {
		c.Security.CipherPassphrase = v
	}
	if v := os.Getenv("MODMESH_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Security.RateLimit = n
		}
	}
	if v := os.Getenv("MODMESH_KAFKA_BROKERS"); v != "" {
		c.Transport.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MODMESH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Save writes the configuration to path as TOML. The write is atomic so a
// watcher reloading mid-save never sees a partial file.
func Save(cfg *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0o600)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.ComponentID == "" {
		errs = append(errs, ValidationError{"component_id", "must not be empty"})
	}
	if c.Server.Addr == "" {
		errs = append(errs, ValidationError{"server.addr", "must not be empty"})
	}

	if c.Router.FallbackThreshold <= 0 || c.Router.FallbackThreshold > 1 {
		errs = append(errs, ValidationError{"router.fallback_threshold", "must be in (0, 1]"})
	}
	if c.Router.HardCapSecs <= 0 {
		errs = append(errs, ValidationError{"router.hard_cap_secs", "must be positive"})
	}
	if c.Router.DefaultTimeoutSecs <= 0 {
		errs = append(errs, ValidationError{"router.default_timeout_secs", "must be positive"})
	}

	if c.Security.RateLimit <= 0 {
		errs = append(errs, ValidationError{"security.rate_limit", "must be positive"})
	}
	if c.Security.RateWindowSecs <= 0 {
		errs = append(errs, ValidationError{"security.rate_window_secs", "must be positive"})
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{"logging.level", "must be debug, info, warn, or error"})
	}
	switch c.Logging.Encoding {
	case "json", "console":
	default:
		errs = append(errs, ValidationError{"logging.encoding", "must be json or console"})
	}

	if c.Telemetry.Enabled && c.Telemetry.Path == "" {
		errs = append(errs, ValidationError{"telemetry.path", "required when telemetry is enabled"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
