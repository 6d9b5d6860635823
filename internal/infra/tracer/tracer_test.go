package tracer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"venturedesk/internal/infra/config"
)

func TestSetupInstallsNoopProvider(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TracerConfig
	}{
		{"disabled", config.TracerConfig{Enabled: false}},
		{"noop exporter", config.TracerConfig{Enabled: true, Exporter: "noop"}},
		{"empty exporter", config.TracerConfig{Enabled: true, Exporter: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := Setup(t.Context(), tt.cfg)
			require.NoError(t, err)
			defer shutdown(context.Background())

			_, ok := otel.GetTracerProvider().(noop.TracerProvider)
			assert.True(t, ok, "expected a noop provider")
		})
	}
}

func TestSetupStdoutExporter(t *testing.T) {
	shutdown, err := Setup(t.Context(), config.TracerConfig{Enabled: true, Exporter: "stdout"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupRejectsUnknownExporter(t *testing.T) {
	_, err := Setup(t.Context(), config.TracerConfig{Enabled: true, Exporter: "jaeger"})
	require.Error(t, err)
}

func TestSpanHelpers(t *testing.T) {
	otel.SetTracerProvider(noop.NewTracerProvider())

	ctx, span := StartSpan(t.Context(), "gateway.generate")
	require.NotNil(t, ctx)
	SetOK(span)
	RecordError(span, errors.New("provider down"))
	span.End()

	assert.Equal(t, "agent.domain", string(StringAttr("agent.domain", "pitch").Key))
	assert.Equal(t, 42, int(IntAttr("llm.prompt_tokens", 42).Value.AsInt64()))
}
