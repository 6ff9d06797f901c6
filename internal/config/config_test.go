package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("QUEUE_WAIT_SECONDS", "")
	t.Setenv("STORE_DRIVER", "")
	cfg := Load()

	assert.Equal(t, 180, cfg.QueueWaitSeconds)
	assert.Equal(t, 3*time.Minute, cfg.QueueWait())
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, 5, cfg.JoinMaxAttempts)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("QUEUE_WAIT_SECONDS", "30")
	t.Setenv("MIGRATE_ON_START", "false")
	t.Setenv("MIN_STAKE_AMOUNT", "not-a-number")
	t.Setenv("APP_ENV", "production")
	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.QueueWait())
	assert.False(t, cfg.MigrateOnStart)
	assert.Equal(t, int64(100), cfg.MinStakeAmount)
	assert.True(t, cfg.IsProduction())
}
