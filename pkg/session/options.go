package session

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/observability"
	"github.com/Sumatoshi-tech/verstree/pkg/parser"
	"github.com/Sumatoshi-tech/verstree/pkg/persist"
)

// Option configures a Session.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *observability.HistoryMetrics
	persister *persist.Persister[history.Log]
	dir       string
	validate  bool
	queueSize int
	clock     func() time.Time
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithMetrics sets the history counters.
func WithMetrics(m *observability.HistoryMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithPersistence stores the version log in dir. When validate is set, JSON
// logs are checked against the log schema before they are restored.
func WithPersistence(dir string, p *persist.Persister[history.Log], validate bool) Option {
	return func(o *options) {
		o.dir = dir
		o.persister = p
		o.validate = validate
	}
}

// WithQueueSize bounds the number of queued parse requests.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithClock replaces the checkpoint time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

func newOptions(opts []Option) options {
	o := options{queueSize: parser.DefaultQueueSize}
	for _, opt := range opts {
		opt(&o)
	}

	o.logger = observability.OrDefault(o.logger)

	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer(observability.InstrumentationName)
	}

	return o
}
