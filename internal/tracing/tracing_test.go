package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_EmptyEndpoint_ReturnsNoOpProvider(t *testing.T) {
	shutdown, err := Init(context.Background(), "poetsim", "", true, 0.1)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_ShutdownIdempotent(t *testing.T) {
	shutdown, err := Init(context.Background(), "poetsim", "", true, 1)
	require.NoError(t, err)

	assert.NoError(t, shutdown(context.Background()))
	assert.NoError(t, shutdown(context.Background()))
}

func TestTracer_ReturnsNonNil(t *testing.T) {
	shutdown, err := Init(context.Background(), "poetsim", "", true, 0)
	require.NoError(t, err)
	defer shutdown(context.Background())

	tracer := Tracer("poetsim-test")
	require.NotNil(t, tracer)

	// Spans from the no-op provider are valid and free.
	_, span := tracer.Start(context.Background(), "decision_cycle")
	assert.NotNil(t, span)
	span.End()
}
