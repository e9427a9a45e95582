package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "askallery-test"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracing_Stdout(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{
		ServiceName:  "askallery-test",
		Enabled:      true,
		Exporter:     "stdout",
		SamplerRatio: 1,
	})
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	ctx, span := StartSpan(context.Background(), "unit", attribute.String("k", "v"))
	require.NotNil(t, ctx)
	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.IsRecording())
	EndSpan(span, errors.New("boom"))
	assert.False(t, span.IsRecording())
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(1).Description())
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased")
	assert.Contains(t, samplerFor(0).Description(), "AlwaysOffSampler")
}

func TestLedgerOperationsCounter(t *testing.T) {
	before := testutil.ToFloat64(LedgerOperations.WithLabelValues("follow", "ok"))
	LedgerOperations.WithLabelValues("follow", "ok").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(LedgerOperations.WithLabelValues("follow", "ok")))
}
