package observability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// exportedNamespaces are the attribute namespaces that reach the exporter.
var exportedNamespaces = []string{
	"verstree.",
	"history.",
	"resolve.",
	"parser.",
	"checkpoint.",
	"lsp.",
	"mcp.",
	"http.",
	"error",
}

// sourceKeys carry document text, which can hold secrets. They are dropped
// even inside an exported namespace.
var sourceKeys = map[attribute.Key]bool{
	"verstree.text":   true,
	"parser.source":   true,
	"history.literal": true,
}

// attributeFilter scrubs span attributes outside the exported namespaces
// before handing spans to its delegate.
type attributeFilter struct {
	delegate sdktrace.SpanProcessor
	logger   *slog.Logger
}

// NewAttributeFilter wraps delegate. A non-nil logger reports the keys
// dropped from each span at warn level.
func NewAttributeFilter(delegate sdktrace.SpanProcessor, logger *slog.Logger) sdktrace.SpanProcessor {
	return &attributeFilter{delegate: delegate, logger: logger}
}

// OnStart implements sdktrace.SpanProcessor.
func (f *attributeFilter) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	f.delegate.OnStart(parent, s)
}

// OnEnd implements sdktrace.SpanProcessor.
func (f *attributeFilter) OnEnd(s sdktrace.ReadOnlySpan) {
	kept, dropped := scrub(s.Attributes())

	if len(dropped) > 0 && f.logger != nil {
		f.logger.Warn("span attributes dropped", "span", s.Name(), "keys", dropped)
	}

	f.delegate.OnEnd(&scrubbedSpan{ReadOnlySpan: s, attrs: kept})
}

// Shutdown implements sdktrace.SpanProcessor.
func (f *attributeFilter) Shutdown(ctx context.Context) error {
	err := f.delegate.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter shutdown: %w", err)
	}

	return nil
}

// ForceFlush implements sdktrace.SpanProcessor.
func (f *attributeFilter) ForceFlush(ctx context.Context) error {
	err := f.delegate.ForceFlush(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter flush: %w", err)
	}

	return nil
}

func scrub(attrs []attribute.KeyValue) (kept []attribute.KeyValue, dropped []string) {
	kept = make([]attribute.KeyValue, 0, len(attrs))

	for _, kv := range attrs {
		if exported(kv.Key) {
			kept = append(kept, kv)
		} else {
			dropped = append(dropped, string(kv.Key))
		}
	}

	return kept, dropped
}

func exported(key attribute.Key) bool {
	if sourceKeys[key] {
		return false
	}

	for _, ns := range exportedNamespaces {
		if strings.HasPrefix(string(key), ns) {
			return true
		}
	}

	return false
}

type scrubbedSpan struct {
	sdktrace.ReadOnlySpan

	attrs []attribute.KeyValue
}

// Attributes returns the attributes that survived scrubbing.
func (s *scrubbedSpan) Attributes() []attribute.KeyValue { return s.attrs }
