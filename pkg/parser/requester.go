package parser

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/verstree/pkg/observability"
	"github.com/Sumatoshi-tech/verstree/pkg/resolve"
)

// ErrClosed is returned by Submit and Offer after Close.
var ErrClosed = errors.New("parser: requester closed")

// DefaultQueueSize is the request buffer used when none is configured.
const DefaultQueueSize = 64

// Requester parses requests on a background goroutine and hands back
// responses in submission order. Responses must be applied by the goroutine
// that owns the store; the requester never touches it.
type Requester struct {
	parser    Parser
	logger    *slog.Logger
	tracer    trace.Tracer
	requests  chan resolve.Request
	responses chan resolve.Response

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
}

// RequesterOption configures a Requester.
type RequesterOption func(*Requester)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RequesterOption {
	return func(r *Requester) { r.logger = logger }
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) RequesterOption {
	return func(r *Requester) { r.tracer = tracer }
}

// NewRequester creates a requester with room for size queued requests.
// Call Start to begin parsing.
func NewRequester(p Parser, size int, opts ...RequesterOption) *Requester {
	if size <= 0 {
		size = DefaultQueueSize
	}

	r := &Requester{
		parser:    p,
		requests:  make(chan resolve.Request, size),
		responses: make(chan resolve.Response, size),
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.logger = observability.OrDefault(r.logger)

	if r.tracer == nil {
		r.tracer = noop.NewTracerProvider().Tracer(observability.InstrumentationName)
	}

	return r
}

// Start runs the worker until Close is called or ctx is done.
func (r *Requester) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started || r.closed {
		return
	}

	r.started = true

	go r.run(ctx)
}

func (r *Requester) run(ctx context.Context) {
	defer close(r.done)
	defer close(r.responses)

	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-r.requests:
			if !ok {
				return
			}

			resp := Respond(ctx, r.tracer, r.parser, req)
			if resp.Err != nil {
				r.logger.DebugContext(ctx, "parse failed", "target", req.Target, "error", resp.Err)
			}

			select {
			case r.responses <- resp:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Submit queues req. It blocks while the queue is full, so a caller that
// also applies responses must use Offer instead.
func (r *Requester) Submit(ctx context.Context, req resolve.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	select {
	case r.requests <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Offer queues req unless the queue is full. It reports whether req was
// queued and never blocks.
func (r *Requester) Offer(req resolve.Request) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrClosed
	}

	select {
	case r.requests <- req:
		return true, nil
	default:
		return false, nil
	}
}

// Responses delivers parse results. It is closed once the worker stops.
func (r *Requester) Responses() <-chan resolve.Response { return r.responses }

// Close stops accepting requests and waits for the queued ones to be
// parsed. The caller keeps draining Responses until it is closed when more
// requests are queued than the response buffer holds.
func (r *Requester) Close() {
	r.mu.Lock()

	if !r.closed {
		r.closed = true
		close(r.requests)

		if !r.started {
			close(r.responses)
			close(r.done)
		}
	}

	r.mu.Unlock()

	<-r.done
}

// Respond parses req synchronously.
func Respond(ctx context.Context, tracer trace.Tracer, p Parser, req resolve.Request) resolve.Response {
	ctx, span := tracer.Start(ctx, "verstree.parser.parse",
		trace.WithAttributes(
			attribute.String("parser.target", req.Target),
			attribute.Int("parser.bytes", len(req.Text)),
		))
	defer span.End()

	tree, err := p.Parse(ctx, req.Text)
	if err != nil {
		span.RecordError(err)
	}

	return resolve.Response{Request: req, Tree: tree, Err: err}
}
