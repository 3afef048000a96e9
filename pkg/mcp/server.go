// Package mcp implements a Model Context Protocol server exposing verstree
// version logs as MCP tools over stdio transport. Every tool reads a saved
// log; none of them mutate it.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/verstree/pkg/observability"
)

const (
	// serverName is the MCP server implementation name.
	serverName = "verstree"

	// toolCount is the expected number of registered tools.
	toolCount = 3
)

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Metrics is an optional RED metrics recorder. Nil disables per-tool metrics.
	Metrics *observability.REDMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer

	// Defaults fill in log location fields a tool call leaves empty.
	Defaults LogInput

	Version string
}

// Server wraps the MCP SDK server with verstree tool registrations.
type Server struct {
	inner    *mcpsdk.Server
	mu       sync.RWMutex
	tools    []string
	metrics  *observability.REDMetrics
	tracer   trace.Tracer
	logger   *slog.Logger
	defaults LogInput
}

// NewServer creates a new MCP server with all verstree tools registered.
func NewServer(deps ServerDeps) *Server {
	opts := &mcpsdk.ServerOptions{}
	if deps.Logger != nil {
		opts.Logger = deps.Logger
	}

	version := deps.Version
	if version == "" {
		version = "dev"
	}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: version,
		},
		opts,
	)

	srv := &Server{
		inner:    inner,
		tools:    make([]string, 0, toolCount),
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
		logger:   observability.OrDefault(deps.Logger),
		defaults: deps.Defaults,
	}

	srv.registerTools()

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport starts the MCP server on the given transport. It blocks
// until the context is canceled or the connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// registerTools adds all verstree MCP tools to the server.
func (s *Server) registerTools() {
	register(s, ToolNameLog, logToolDescription, s.handleLog)
	register(s, ToolNameVersions, versionsToolDescription, s.handleVersions)
	register(s, ToolNameDiff, diffToolDescription, s.handleDiff)
}

// toolFunc is the handler shape every verstree tool implements. AddTool
// needs the func type spelled out, so this is only used in signatures.
type toolFunc[Input any] = func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error)

func register[Input any](s *Server, name, description string, handler toolFunc[Input]) {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        name,
		Description: description,
	}, instrument(s, name, handler))

	s.trackTool(name)
}

const (
	// spanPrefix prefixes tool span names and metric ops.
	spanPrefix = "mcp."

	// traceIDKey labels the trace id appended to sampled results.
	traceIDKey = "trace_id"
)

// instrument wraps a tool handler with a span, RED metrics, and a warning
// log for failed calls. Tool errors reported through IsError count as
// failures too.
func instrument[Input any](s *Server, name string, handler toolFunc[Input]) toolFunc[Input] {
	op := spanPrefix + name

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		var span trace.Span
		if s.tracer != nil {
			ctx, span = s.tracer.Start(ctx, op,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attribute.String("mcp.tool", name)),
			)
			defer span.End()
		}

		start := time.Now()
		done := s.metrics.TrackInflight(ctx, op)

		result, output, err := handler(ctx, req, input)

		done()

		failed := err != nil || (result != nil && result.IsError)

		status := observability.StatusOK
		if failed {
			status = observability.StatusError
			s.logger.WarnContext(ctx, "tool call failed", "tool", name, "error", callError(result, err))
		}

		s.metrics.RecordRequest(ctx, op, status, time.Since(start))

		if span == nil {
			return result, output, err
		}

		if failed {
			span.SetStatus(codes.Error, callError(result, err))
		}

		if sc := span.SpanContext(); sc.IsSampled() && result != nil {
			result.Content = append(result.Content, &mcpsdk.TextContent{Text: traceIDKey + "=" + sc.TraceID().String()})
		}

		return result, output, err
	}
}

// callError describes why a call failed.
func callError(result *mcpsdk.CallToolResult, err error) string {
	if err != nil {
		return err.Error()
	}

	if result != nil && len(result.Content) > 0 {
		if text, ok := result.Content[0].(*mcpsdk.TextContent); ok {
			return text.Text
		}
	}

	return "tool error"
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

// Tool description constants.
const (
	logToolDescription = "List the checkpoints of a saved verstree version log: " +
		"id, kind, time, the cells each touched, and the versions it created."

	versionsToolDescription = "List every committed version of one node identity (e.g. c.0 or n.0) " +
		"with its checkpoint and rendered text."

	diffToolDescription = "Show a unified diff between the rendered text of two stored versions " +
		"(e.g. c.0.0 and c.0.3)."
)
