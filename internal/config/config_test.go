package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30, cfg.DefaultSlotMinutes)
	assert.Equal(t, 3, cfg.BookingRetryAttempts)
	assert.Equal(t, 250, cfg.BulkBatchSize)
	assert.Equal(t, 2*time.Second, cfg.OutboxPollInterval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DEFAULT_SLOT_MINUTES", "15")
	t.Setenv("BOOKING_RETRY_ATTEMPTS", "5")
	t.Setenv("OUTBOX_POLL_INTERVAL", "500ms")
	t.Setenv("REDIS_TLS", "true")

	cfg := Load()

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 15, cfg.DefaultSlotMinutes)
	assert.Equal(t, 5, cfg.BookingRetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.OutboxPollInterval)
	assert.True(t, cfg.RedisTLS)
}

func TestInvalidIntFallsBack(t *testing.T) {
	t.Setenv("BOOKING_RETRY_ATTEMPTS", "many")
	cfg := Load()
	assert.Equal(t, 3, cfg.BookingRetryAttempts)
}
