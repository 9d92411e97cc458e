package otelcol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"payout-controlplane/pkg/config"
)

func TestServiceResource(t *testing.T) {
	cfg := &config.Config{AppName: "payout", AppVersion: "1.2.3", AppEnv: "staging"}

	res := serviceResource(cfg)
	name, ok := res.Set().Value(attribute.Key("service.name"))
	require.True(t, ok)
	require.Equal(t, "payout", name.AsString())

	env, ok := res.Set().Value(attribute.Key("deployment.environment"))
	require.True(t, ok)
	require.Equal(t, "staging", env.AsString())
}

func TestProvideTraceExports(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := ProvideTrace(exporter)

	_, span := tp.Tracer("test").Start(context.Background(), "approve")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "approve", spans[0].Name)
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestRegisterWithoutAddr(t *testing.T) {
	require.NoError(t, Register(nil, &config.Config{}))
}
