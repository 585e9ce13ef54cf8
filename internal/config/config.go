// Package config provides runtime configuration for ClawWatch.
// It uses Viper to load settings from files and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for ClawWatch.
type Config struct {
	// ── Server ───────────────────────────────────────────────────────────────
	ServerHost string `mapstructure:"server_host"`
	// ControlPort: dashboard queries + JWT-protected admin API
	ControlPort int `mapstructure:"control_port"`
	// DataPort: agent report ingestion
	DataPort int    `mapstructure:"data_port"`
	DBPath   string `mapstructure:"db_path"`

	// ── Security ─────────────────────────────────────────────────────────────
	// JWTSecret: HS256 signing key for control-plane tokens.
	JWTSecret string `mapstructure:"jwt_secret"`
	// AdminUser / AdminPass: credentials for /api/login. The password is
	// bcrypt-hashed at startup; only the hash lives in process memory.
	AdminUser string `mapstructure:"admin_user"`
	AdminPass string `mapstructure:"admin_pass"`

	// ── Engine ───────────────────────────────────────────────────────────────
	// ReportInterval: how often agents are expected to report, seconds.
	ReportInterval int `mapstructure:"report_interval_seconds"`
	// OfflineMultiplier: a device is demoted once now-last_seen exceeds
	// report_interval * offline_multiplier.
	OfflineMultiplier float64 `mapstructure:"offline_multiplier"`
	// SweepInterval: demotion sweep period, seconds. 0 = report interval.
	SweepInterval int `mapstructure:"sweep_interval_seconds"`
	// MetricRetention: max metric samples kept per device.
	MetricRetention int `mapstructure:"metric_retention"`
	// LogCap: max log entries kept per device.
	LogCap int `mapstructure:"log_cap"`
	// TokenPricePerMillion: dollars per 1,000,000 tokens, used only for
	// query-time cost estimates. 0 reports every cost as 0.
	TokenPricePerMillion float64 `mapstructure:"token_price_per_million"`
	// RequestTimeout: per-request deadline for ingestion and queries, seconds.
	RequestTimeout int `mapstructure:"request_timeout_seconds"`

	// ── Agent ────────────────────────────────────────────────────────────────
	AgentJoinAddr string `mapstructure:"agent_join_addr"`
	AgentKey      string `mapstructure:"agent_key"`
	AgentInterval int    `mapstructure:"agent_interval_seconds"`
	// AgentWatchBinary: optional binary probed with --version each cycle
	// to derive the running flag and version string.
	AgentWatchBinary string `mapstructure:"agent_watch_binary"`
	// AgentStateFile: optional JSON file carrying a cumulative token
	// counter; the agent converts it to per-interval deltas.
	AgentStateFile string `mapstructure:"agent_state_file"`
	// AgentLogFile: optional log file tailed for error lines.
	AgentLogFile string `mapstructure:"agent_log_file"`

	AgentRetryInitialMs int `mapstructure:"agent_retry_initial_ms"`
	AgentRetryMaxMs     int `mapstructure:"agent_retry_max_ms"`
	AgentRetries        int `mapstructure:"agent_retries"`
}

// ReportPeriod returns the expected report interval as a duration.
func (c *Config) ReportPeriod() time.Duration {
	return time.Duration(c.ReportInterval) * time.Second
}

// OfflineThreshold returns the last-seen age past which a device is
// demoted to Offline.
func (c *Config) OfflineThreshold() time.Duration {
	return time.Duration(float64(c.ReportPeriod()) * c.OfflineMultiplier)
}

// SweepPeriod returns the demotion sweep interval, defaulting to the
// report interval when unset.
func (c *Config) SweepPeriod() time.Duration {
	if c.SweepInterval > 0 {
		return time.Duration(c.SweepInterval) * time.Second
	}
	return c.ReportPeriod()
}

// RequestDeadline returns the per-request operation deadline.
func (c *Config) RequestDeadline() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// Load reads config from file (./config.yaml or ~/.clawwatch/config.yaml)
// and falls back to documented defaults. Environment variables with
// prefix CLAW_ override file values.
func Load() (*Config, error) {
	v := viper.New()

	// --- Defaults ---
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("control_port", 8080)
	v.SetDefault("data_port", 8081)
	v.SetDefault("db_path", "clawwatch.db")

	// Security defaults — MUST be overridden in production.
	v.SetDefault("jwt_secret", "CwX3!pR8@qL5#tN1^hB7&jM2*vD9")
	v.SetDefault("admin_user", "admin")
	v.SetDefault("admin_pass", "admin")

	v.SetDefault("report_interval_seconds", 30)
	v.SetDefault("offline_multiplier", 2.0)
	v.SetDefault("sweep_interval_seconds", 0)
	v.SetDefault("metric_retention", 2880)
	v.SetDefault("log_cap", 200)
	v.SetDefault("token_price_per_million", 0.0)
	v.SetDefault("request_timeout_seconds", 10)

	v.SetDefault("agent_join_addr", "127.0.0.1:8081")
	v.SetDefault("agent_key", "")
	v.SetDefault("agent_interval_seconds", 30)
	v.SetDefault("agent_watch_binary", "")
	v.SetDefault("agent_state_file", "")
	v.SetDefault("agent_log_file", "")
	v.SetDefault("agent_retry_initial_ms", 500)
	v.SetDefault("agent_retry_max_ms", 15000)
	v.SetDefault("agent_retries", 3)

	// --- Config file ---
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.clawwatch")
	if err := v.ReadInConfig(); err != nil {
		// config file is optional; ignore "not found" errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// --- Environment variables ---
	v.SetEnvPrefix("CLAW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if cfg.ReportInterval <= 0 {
		return nil, fmt.Errorf("report_interval_seconds must be positive, got %d", cfg.ReportInterval)
	}
	if cfg.OfflineMultiplier <= 0 {
		return nil, fmt.Errorf("offline_multiplier must be positive, got %v", cfg.OfflineMultiplier)
	}
	return &cfg, nil
}
