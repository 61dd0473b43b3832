package runtime

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFanoutHonoursEachLevel(t *testing.T) {
	var debug, warn bytes.Buffer
	logger := slog.New(fanout{
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}).With("service", "eventlog-service")

	logger.Info("poll delivered", "count", 3)
	logger.Warn("poll failed")

	assert.Contains(t, debug.String(), "poll delivered")
	assert.Contains(t, debug.String(), "service=eventlog-service")
	assert.Contains(t, debug.String(), "poll failed")
	assert.NotContains(t, warn.String(), "poll delivered")
	assert.Contains(t, warn.String(), "poll failed")
}
