package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger(t *testing.T) {
	InitLogger("debug", "json")
	require.NotNil(t, Logger)
	assert.True(t, Logger.Enabled(context.Background(), slog.LevelDebug))

	InitLogger("unknown-level", "text")
	require.NotNil(t, Logger)
	assert.False(t, Logger.Enabled(context.Background(), slog.LevelDebug), "unknown level falls back to info")
}

func TestHelpersWorkBeforeInit(t *testing.T) {
	saved := Logger
	Logger = nil
	t.Cleanup(func() { Logger = saved })

	// Helpers must fall back to the default logger, never panic.
	assert.NotNil(t, WithConnection("c1"))
	assert.NotNil(t, WithChannel("dashboard"))
	assert.NotNil(t, WithGroup("prices:BTCUSDT"))
	assert.NotNil(t, WithError(assert.AnError))
}
