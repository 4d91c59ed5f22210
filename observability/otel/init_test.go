package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = secret ,broken, =novalue,tenant=jar")
	require.Equal(t, map[string]string{"api-key": "secret", "tenant": "jar"}, headers)
	require.Empty(t, ParseHeaders(""))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg := ConfigFromEnv("cookiejard", "test")
	require.False(t, cfg.Traces)
	require.False(t, cfg.Metrics)
	require.True(t, cfg.Insecure)

	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "false")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "a=b")
	cfg = ConfigFromEnv("cookiejard", "test")
	require.True(t, cfg.Traces)
	require.True(t, cfg.Metrics)
	require.False(t, cfg.Insecure)
	require.Equal(t, map[string]string{"a": "b"}, cfg.Headers)
}

func TestInitWithoutExporters(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)

	shutdown, err := Init(context.Background(), Config{ServiceName: "cookiejard"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
