package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bullion/compliance-service/internal/config"
)

func TestInit_Disabled(t *testing.T) {
	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false})
	require.NoError(t, err)

	_, span := p.TracerProvider.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}
