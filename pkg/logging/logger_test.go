package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		logger := New(level)
		assert.NotNil(t, logger)
		assert.NotNil(t, logger.Logger)
	}
}

func TestDebugLevelEnabled(t *testing.T) {
	logger := New("debug")
	assert.True(t, logger.Enabled(nil, slog.LevelDebug))

	logger = New("warn")
	assert.False(t, logger.Enabled(nil, slog.LevelInfo))
}

func TestWithPreservesWrapper(t *testing.T) {
	logger := Default().With("component", "test")
	assert.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)
}
