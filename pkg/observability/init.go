package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName names the tracer and meter of every verstree package.
const InstrumentationName = "verstree"

// OTel sampler environment variables. They take precedence over SampleRatio.
const (
	envTracesSampler    = "OTEL_TRACES_SAMPLER"
	envTracesSamplerArg = "OTEL_TRACES_SAMPLER_ARG"
)

var envSamplers = map[string]func(ratio float64) sdktrace.Sampler{
	"always_on":  func(float64) sdktrace.Sampler { return sdktrace.AlwaysSample() },
	"always_off": func(float64) sdktrace.Sampler { return sdktrace.NeverSample() },
	"traceidratio": func(r float64) sdktrace.Sampler {
		return sdktrace.TraceIDRatioBased(r)
	},
	"parentbased_always_on": func(float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	},
	"parentbased_always_off": func(float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.NeverSample())
	},
	"parentbased_traceidratio": func(r float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(r))
	},
}

// Providers holds the initialized observability providers.
type Providers struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *slog.Logger

	// Shutdown flushes pending telemetry. Call it before the process exits.
	Shutdown func(ctx context.Context) error
}

// Init builds tracing, metrics, and logging from cfg. Without an OTLP
// endpoint the tracer and meter are no-ops and nothing leaves the process.
func Init(cfg Config) (Providers, error) {
	logger := NewLogger(cfg)

	if cfg.OTLPEndpoint == "" {
		return Providers{
			Tracer:   nooptrace.NewTracerProvider().Tracer(InstrumentationName),
			Meter:    noopmetric.NewMeterProvider().Meter(InstrumentationName),
			Logger:   logger,
			Shutdown: func(context.Context) error { return nil },
		}, nil
	}

	ctx := context.Background()

	res, err := resource.New(ctx, resource.WithAttributes(resourceAttrs(cfg)...))
	if err != nil {
		return Providers{}, fmt.Errorf("build otel resource: %w", err)
	}

	exp, err := newExporters(ctx, cfg)
	if err != nil {
		return Providers{}, err
	}

	// Blocked attributes are only reported when debugging.
	var filterLogger *slog.Logger
	if cfg.LogLevel <= slog.LevelDebug {
		filterLogger = logger
	}

	sdkTP := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(NewAttributeFilter(sdktrace.NewBatchSpanProcessor(exp.spans), filterLogger)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp.metrics)),
		sdkmetric.WithResource(res),
	)

	var tp trace.TracerProvider = sdkTP
	if !cfg.TraceVerbose {
		tp = NewFilteringTracerProvider(sdkTP)
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	timeout := time.Duration(cfg.ShutdownTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultShutdownTimeoutSec * time.Second
	}

	return Providers{
		Tracer: tp.Tracer(InstrumentationName),
		Meter:  mp.Meter(InstrumentationName),
		Logger: logger,
		Shutdown: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			return errors.Join(sdkTP.Shutdown(ctx), mp.Shutdown(ctx))
		},
	}, nil
}

func resourceAttrs(cfg Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}

	if cfg.Mode != "" {
		attrs = append(attrs, attribute.String("app.mode", string(cfg.Mode)))
	}

	return attrs
}

type exporters struct {
	spans   sdktrace.SpanExporter
	metrics sdkmetric.Exporter
}

// newExporters dials the collector once per signal. Both share endpoint,
// headers, and transport security.
func newExporters(ctx context.Context, cfg Config) (exporters, error) {
	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}

	if cfg.OTLPInsecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	if len(cfg.OTLPHeaders) > 0 {
		traceOpts = append(traceOpts, otlptracegrpc.WithHeaders(cfg.OTLPHeaders))
		metricOpts = append(metricOpts, otlpmetricgrpc.WithHeaders(cfg.OTLPHeaders))
	}

	spans, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return exporters{}, fmt.Errorf("create trace exporter: %w", err)
	}

	metrics, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return exporters{}, errors.Join(fmt.Errorf("create metric exporter: %w", err), spans.Shutdown(ctx))
	}

	return exporters{spans: spans, metrics: metrics}, nil
}

// sampler picks the root sampler. OTEL_TRACES_SAMPLER wins over ratio; an
// unknown sampler name falls back to parent-based always-on.
func sampler(ratio float64) sdktrace.Sampler {
	if name := os.Getenv(envTracesSampler); name != "" {
		build, ok := envSamplers[name]
		if !ok {
			return sdktrace.ParentBased(sdktrace.AlwaysSample())
		}

		return build(parseRatio(os.Getenv(envTracesSamplerArg)))
	}

	if ratio > 0 {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}

	return sdktrace.ParentBased(sdktrace.AlwaysSample())
}

// ParseOTLPHeaders parses "key=value,key=value". It returns nil when no
// pair is well formed.
func ParseOTLPHeaders(raw string) map[string]string {
	headers := make(map[string]string)

	for pair := range strings.SplitSeq(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}

		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	if len(headers) == 0 {
		return nil
	}

	return headers
}

func parseRatio(s string) float64 {
	ratio, err := strconv.ParseFloat(s, 64)
	if err != nil || ratio < 0 || ratio > 1 {
		return 1.0
	}

	return ratio
}
