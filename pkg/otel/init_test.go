package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	appconfig "HabitPact/config"
)

func TestFromAppConfig(t *testing.T) {
	cfg := appconfig.Config{
		ServiceName:     "habitpact",
		Environment:     "staging",
		OTLPEndpoint:    "http://collector:4317",
		OTLPSampleRatio: 0.25,
	}

	got := FromAppConfig(cfg, "worker")
	require.Equal(t, "habitpact-worker", got.ServiceName)
	require.Equal(t, "staging", got.Environment)
	require.Equal(t, 0.25, got.SampleRatio)
	require.Equal(t, "collector:4317", grpcEndpoint(got.OTLPEndpoint))
	require.Equal(t, "collector:4317", grpcEndpoint("https://collector:4317"))
}

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := InitOpenTelemetry(context.Background(), Config{ServiceName: "habitpact-test"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
