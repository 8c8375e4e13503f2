// Package config provides configuration management for the routing engine,
// including server, database, store, webhook, sweep, and rpc settings.
package config

import "time"

// Config is the root configuration tree, loaded from YAML with ${VAR}
// environment-variable references expanded.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Store    StoreConfig    `yaml:"store"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Sweep    SweepConfig    `yaml:"sweep"`
	RPC      RPCConfig      `yaml:"rpc"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// StoreConfig configures the Redis-backed shared coordination store.
type StoreConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	LockTTL      time.Duration `yaml:"lock_ttl"`
	IdempotentTTL time.Duration `yaml:"idempotent_ttl"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
}

// WebhookConfig configures the inbound webhook pipeline.
type WebhookConfig struct {
	// RequestTimeout is checked to be positive at load time. No code path
	// applies it: webhook processing runs without a per-request deadline.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SweepConfig configures the orphaned-session retention sweep.
type SweepConfig struct {
	Interval   time.Duration `yaml:"interval"`
	Threshold  time.Duration `yaml:"threshold"`
	Enabled    bool          `yaml:"enabled"`
}

// RPCConfig configures the cache-invalidation gRPC listener (SPEC_FULL §12.5).
type RPCConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the built-in defaults, overridden by YAML/env at load time.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "voicerouter",
			SSLMode:         "disable",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Store: StoreConfig{
			Addr:          "localhost:6379",
			PoolSize:      10,
			LockTTL:       30 * time.Second,
			IdempotentTTL: 24 * time.Hour,
			SessionTTL:    24 * time.Hour,
			CallTimeout:   1 * time.Second,
		},
		Webhook: WebhookConfig{
			RequestTimeout: 10 * time.Second,
		},
		Sweep: SweepConfig{
			Interval:  5 * time.Minute,
			Threshold: 2 * time.Hour,
			Enabled:   true,
		},
		RPC: RPCConfig{
			Addr: ":9090",
		},
	}
}
