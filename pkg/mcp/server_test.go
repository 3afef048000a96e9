package mcp

import (
	"context"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInstrument_SpanPerCall(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	srv := NewServer(ServerDeps{Tracer: tp.Tracer("test")})
	handler := instrument(srv, ToolNameLog, srv.handleLog)

	dir := writeTestLog(t)

	result, _, err := handler(context.Background(), &mcpsdk.CallToolRequest{}, LogInput{Dir: dir})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	last, ok := result.Content[len(result.Content)-1].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(last.Text, traceIDKey+"="))

	result, _, err = handler(context.Background(), &mcpsdk.CallToolRequest{}, LogInput{})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "mcp."+ToolNameLog, spans[0].Name)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
}

func TestInstrument_NoTracer(t *testing.T) {
	t.Parallel()

	srv := NewServer(ServerDeps{})
	handler := instrument(srv, ToolNameLog, srv.handleLog)

	result, _, err := handler(context.Background(), &mcpsdk.CallToolRequest{}, LogInput{})
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Len(t, result.Content, 1)
	assert.Contains(t, callError(result, nil), "dir parameter is required")
}
