package observability

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// statusRecorder remembers the first status code written.
type statusRecorder struct {
	http.ResponseWriter

	code int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.code == 0 {
		sr.code = code
	}

	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(buf []byte) (int, error) {
	if sr.code == 0 {
		sr.code = http.StatusOK
	}

	return sr.ResponseWriter.Write(buf)
}

// InstrumentHandler serves next under a server span named "METHOD /path"
// and records one RED sample per request under op. red may be nil.
func InstrumentHandler(op string, tracer trace.Tracer, red *REDMetrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		parent := otel.GetTextMapPropagator().Extract(hr.Context(), propagation.HeaderCarrier(hr.Header))

		ctx, span := tracer.Start(parent, hr.Method+" "+hr.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(semconv.HTTPRequestMethodKey.String(hr.Method)),
		)
		defer span.End()

		done := red.TrackInflight(ctx, op)
		defer done()

		start := time.Now()
		sr := &statusRecorder{ResponseWriter: rw}
		next.ServeHTTP(sr, hr.WithContext(ctx))

		if sr.code == 0 {
			sr.code = http.StatusOK
		}

		span.SetAttributes(semconv.HTTPResponseStatusCode(sr.code))

		status := StatusOK
		if sr.code >= http.StatusInternalServerError {
			status = StatusError
			span.SetStatus(codes.Error, http.StatusText(sr.code))
		}

		red.RecordRequest(ctx, op, status, time.Since(start))
	})
}
