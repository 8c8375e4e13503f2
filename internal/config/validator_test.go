package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidator_ValidateAll_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	err := NewValidator(cfg).ValidateAll()
	assert.NoError(t, err)
}

func TestValidator_ValidateServer(t *testing.T) {
	t.Run("rejects empty addr", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.Addr = ""
		err := NewValidator(cfg).ValidateAll()
		assert.ErrorContains(t, err, "addr is required")
	})

	t.Run("rejects non-positive shutdown timeout", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.ShutdownTimeout = 0
		err := NewValidator(cfg).ValidateAll()
		assert.ErrorContains(t, err, "shutdown_timeout must be positive")
	})
}

func TestValidator_ValidateDatabase(t *testing.T) {
	t.Run("rejects out of range port", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Database.Port = 70000
		err := NewValidator(cfg).ValidateAll()
		assert.ErrorContains(t, err, "port must be between")
	})

	t.Run("rejects missing database name", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Database.Database = ""
		err := NewValidator(cfg).ValidateAll()
		assert.ErrorContains(t, err, "database name is required")
	})
}

func TestValidator_ValidateStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.LockTTL = 0
	err := NewValidator(cfg).ValidateAll()
	assert.ErrorContains(t, err, "lock_ttl must be positive")
}

func TestValidator_ValidateSweep_SkippedWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sweep.Enabled = false
	cfg.Sweep.Interval = 0
	err := NewValidator(cfg).ValidateAll()
	assert.NoError(t, err)
}

func TestValidator_ValidateRPC_RejectsEmptyAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RPC.Addr = ""
	err := NewValidator(cfg).ValidateAll()
	assert.ErrorContains(t, err, "addr is required")
}
