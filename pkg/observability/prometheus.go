package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Prometheus is a scrape endpoint backed by its own OTel meter provider.
type Prometheus struct {
	Handler  http.Handler
	Provider *sdkmetric.MeterProvider
}

// NewPrometheus creates an independent registry, so several instances never
// clash over collector registration.
func NewPrometheus() (*Prometheus, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	return &Prometheus{
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)),
	}, nil
}

// Meter returns the verstree meter of the scrape provider.
func (p *Prometheus) Meter() metric.Meter {
	return p.Provider.Meter(InstrumentationName)
}
