package observability

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func TestNewLogger_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		NewLogger("debug", "text").Info("hello")
		NewLogger("info", "json").Info("hello")
	})
}
