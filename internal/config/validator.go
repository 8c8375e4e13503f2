package config

import "fmt"

// Validator validates a Config comprehensively with clear error messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast — stops at the
// first error). Order: server → database → store → webhook → sweep → rpc.
func (v *Validator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := v.validateDatabase(); err != nil {
		return fmt.Errorf("database validation failed: %w", err)
	}
	if err := v.validateStore(); err != nil {
		return fmt.Errorf("store validation failed: %w", err)
	}
	if err := v.validateWebhook(); err != nil {
		return fmt.Errorf("webhook validation failed: %w", err)
	}
	if err := v.validateSweep(); err != nil {
		return fmt.Errorf("sweep validation failed: %w", err)
	}
	if err := v.validateRPC(); err != nil {
		return fmt.Errorf("rpc validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateServer() error {
	if v.cfg.Server.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if v.cfg.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %v", v.cfg.Server.ShutdownTimeout)
	}
	return nil
}

func (v *Validator) validateDatabase() error {
	d := v.cfg.Database
	if d.Host == "" {
		return fmt.Errorf("host is required")
	}
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", d.Port)
	}
	if d.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if d.MaxOpenConns < 1 {
		return fmt.Errorf("max_open_conns must be at least 1, got %d", d.MaxOpenConns)
	}
	return nil
}

func (v *Validator) validateStore() error {
	s := v.cfg.Store
	if s.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if s.LockTTL <= 0 {
		return fmt.Errorf("lock_ttl must be positive, got %v", s.LockTTL)
	}
	if s.IdempotentTTL <= 0 {
		return fmt.Errorf("idempotent_ttl must be positive, got %v", s.IdempotentTTL)
	}
	if s.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive, got %v", s.CallTimeout)
	}
	return nil
}

func (v *Validator) validateWebhook() error {
	if v.cfg.Webhook.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", v.cfg.Webhook.RequestTimeout)
	}
	return nil
}

func (v *Validator) validateSweep() error {
	s := v.cfg.Sweep
	if !s.Enabled {
		return nil
	}
	if s.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", s.Interval)
	}
	if s.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %v", s.Threshold)
	}
	return nil
}

func (v *Validator) validateRPC() error {
	if v.cfg.RPC.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	return nil
}
