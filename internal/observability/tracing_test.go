package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	assert.NotNil(t, Tracer)
}

func TestInitTracing_UnknownExporter(t *testing.T) {
	_, err := InitTracing(TracingConfig{Enabled: true, Exporter: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestSpan_NoopSafe(t *testing.T) {
	span, ctx := NewSpan(context.Background(), "test.span")
	require.NotNil(t, ctx)
	span.AddAttributes(attribute.Int("n", 1))
	span.SetError(errors.New("boom"))
	span.SetError(nil)
	span.End()

	var empty Span
	empty.End()
	assert.Empty(t, empty.TraceID())
}

func TestTrackQuery(t *testing.T) {
	done := TrackQuery("select", "scheduled_posts")
	assert.NotPanics(t, done)
}
