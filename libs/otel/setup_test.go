package otelx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	h := ParseHeaders("authorization=Bearer abc, x-team = ledger,broken,=nokey")
	assert.Equal(t, map[string]string{
		"authorization": "Bearer abc",
		"x-team":        "ledger",
	}, h)
	assert.Empty(t, ParseHeaders(""))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_LOGS_ENABLED", "false")
	t.Setenv("OTEL_SAMPLING_RATIO", "7")
	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT", "http://collector:4318/")

	cfg := ConfigFromEnv("eventlog-service")
	assert.True(t, cfg.Enabled)
	assert.False(t, cfg.Logs)
	assert.Equal(t, 1.0, cfg.SampleRatio)
	assert.Equal(t, "http://collector:4318", cfg.LogsEndpoint)
	assert.Equal(t, "eventlog-service", cfg.ServiceName)
}

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "test"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
