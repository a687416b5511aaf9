// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the gateway's runtime configuration: flags, then
// environment variables, then an optional config file, then built-in
// defaults, in that precedence order via viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved gateway configuration.
type Config struct {
	// Address the SSE/MCP HTTP server listens on.
	Address string `mapstructure:"address"`

	// StorePath is the sqlite database file backing the persistent store.
	StorePath string `mapstructure:"store_path"`

	// EncryptionKeyPath points at the file holding the process-wide
	// envelope-encryption master key, base64-encoded.
	EncryptionKeyPath string `mapstructure:"encryption_key_path"`

	// SecretsProvider names the bootstrap secrets backend (environment,
	// 1password, keyring, encrypted-file, none).
	SecretsProvider string `mapstructure:"secrets_provider"`

	// Coordination selects how rate-limit/refresh state is shared across
	// gateway instances: "store" (sqlite, single instance) or "redis"
	// (multi-instance).
	Coordination string `mapstructure:"coordination"`

	// RedisAddr is the Redis endpoint, used only when Coordination=="redis".
	RedisAddr string `mapstructure:"redis_addr"`

	// RefreshSweepInterval is how often the token manager's background
	// sweeper scans for tokens nearing expiry.
	RefreshSweepInterval time.Duration `mapstructure:"refresh_sweep_interval"`

	// RefreshLeadTime is how far before expiry a token is proactively
	// refreshed.
	RefreshLeadTime time.Duration `mapstructure:"refresh_lead_time"`

	// MinRefreshInterval is the minimum spacing enforced between refresh
	// attempts for a single tenant, regardless of demand.
	MinRefreshInterval time.Duration `mapstructure:"min_refresh_interval"`

	// RefreshWindow is the rolling window over which RefreshWindowCap
	// is enforced.
	RefreshWindow time.Duration `mapstructure:"refresh_window"`

	// RefreshWindowCap is the maximum number of refreshes a tenant may
	// make within RefreshWindow.
	RefreshWindowCap int `mapstructure:"refresh_window_cap"`

	// MetricsAddress the Prometheus metrics endpoint listens on. Empty
	// disables metrics.
	MetricsAddress string `mapstructure:"metrics_address"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint for trace
	// export. No exporter is wired: spans are recorded in-process either
	// way, and serve only logs a warning when this is set.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// APIKeys is the allow-list checked against the SSE endpoint's
	// X-API-Key header. Empty means no key is accepted (fail closed).
	APIKeys []string `mapstructure:"api_keys"`

	// AllowedIPs is an optional allow-list of client IPs/CIDRs permitted
	// to open an SSE session. Empty disables IP filtering.
	AllowedIPs []string `mapstructure:"allowed_ips"`

	// SessionIdleTimeout is how long an SSE session may sit without a
	// POST /messages request before the multiplexer reclaims it.
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout"`

	// SessionRateLimit bounds requests/minute accepted from a single SSE
	// session, independent of the tenant's C4 request budget.
	SessionRateLimit int `mapstructure:"session_rate_limit"`
}

// EnvPrefix is prepended (with an underscore) to every config key when
// resolving it from the environment, e.g. address -> SDPGW_ADDRESS.
const EnvPrefix = "SDPGW"

// Defaults populates v with the gateway's built-in defaults. Called before
// flag/env/file binding so those sources can override any of them.
func Defaults(v *viper.Viper) {
	v.SetDefault("address", ":8443")
	v.SetDefault("store_path", "sdpgw.db")
	v.SetDefault("encryption_key_path", "sdpgw.key")
	v.SetDefault("secrets_provider", "environment")
	v.SetDefault("coordination", "store")
	v.SetDefault("redis_addr", "")
	v.SetDefault("refresh_sweep_interval", 5*time.Minute)
	v.SetDefault("refresh_lead_time", 10*time.Minute)
	v.SetDefault("min_refresh_interval", 3*time.Minute)
	v.SetDefault("refresh_window", 10*time.Minute)
	v.SetDefault("refresh_window_cap", 10)
	v.SetDefault("metrics_address", ":9090")
	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("api_keys", []string{})
	v.SetDefault("allowed_ips", []string{})
	v.SetDefault("session_idle_timeout", 10*time.Minute)
	v.SetDefault("session_rate_limit", 60)
}

// New builds a viper instance with defaults, env binding, and (if present)
// config-file support wired in. Callers bind cobra flags on top before
// calling Load.
func New(configFile string) *viper.Viper {
	v := viper.New()
	Defaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("sdpgw")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sdpgw")
	}

	return v
}

// Load reads configuration from v (after flags have been bound) into a
// Config, tolerating a missing config file but not a malformed one.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants that can't be expressed as simple defaults.
func (c *Config) Validate() error {
	if c.Coordination != "store" && c.Coordination != "redis" {
		return fmt.Errorf("coordination must be \"store\" or \"redis\", got %q", c.Coordination)
	}
	if c.Coordination == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required when coordination is \"redis\"")
	}
	if c.MinRefreshInterval <= 0 {
		return fmt.Errorf("min_refresh_interval must be positive")
	}
	if c.RefreshWindow <= 0 {
		return fmt.Errorf("refresh_window must be positive")
	}
	if c.RefreshWindowCap <= 0 {
		return fmt.Errorf("refresh_window_cap must be positive")
	}
	if c.RefreshLeadTime <= 0 {
		return fmt.Errorf("refresh_lead_time must be positive")
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("session_idle_timeout must be positive")
	}
	if c.SessionRateLimit <= 0 {
		return fmt.Errorf("session_rate_limit must be positive")
	}
	return nil
}
