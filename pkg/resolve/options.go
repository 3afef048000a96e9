package resolve

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/verstree/pkg/observability"
)

// Option configures a Tracker or Reconciler.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *observability.HistoryMetrics
	newToken func() string
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithMetrics sets the reconciliation counters.
func WithMetrics(m *observability.HistoryMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTokens replaces the pending-token generator.
func WithTokens(next func() string) Option {
	return func(o *options) { o.newToken = next }
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	o.logger = observability.OrDefault(o.logger)

	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer(observability.InstrumentationName)
	}

	if o.newToken == nil {
		o.newToken = defaultToken
	}

	return o
}
