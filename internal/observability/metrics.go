package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests take
// - Traffic: Request/run throughput
// - Errors: Rate of failures
// - Saturation: Resource utilization (runs in flight, queue depth)
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Run metrics (Traffic, Errors, Saturation)
	RunsSubmitted  metric.Int64Counter
	RunsReconciled metric.Int64Counter
	RunsActive     metric.Int64UpDownCounter

	// Dispatch metrics (Errors, Saturation)
	DispatchFailures   metric.Int64Counter
	DispatchQueueDepth metric.Int64Gauge
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("sortruns")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Run metrics
	m.RunsSubmitted, err = meter.Int64Counter(
		"runs_submitted_total",
		metric.WithDescription("Total number of sorting runs submitted"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RunsReconciled, err = meter.Int64Counter(
		"runs_reconciled_total",
		metric.WithDescription("Total number of runs observed reaching a terminal state"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RunsActive, err = meter.Int64UpDownCounter(
		"runs_active",
		metric.WithDescription("Number of runs currently in flight (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Dispatch metrics
	m.DispatchFailures, err = meter.Int64Counter(
		"dispatch_failures_total",
		metric.WithDescription("Total number of run submissions that failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatchQueueDepth, err = meter.Int64Gauge(
		"dispatch_queue_depth",
		metric.WithDescription("Current number of tasks waiting for a dispatch worker (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordRunSubmitted records a new run being accepted.
func (m *Metrics) RecordRunSubmitted(ctx context.Context, target, sorter string) {
	m.RunsSubmitted.Add(ctx, 1, metric.WithAttributes(targetAttr(target), sorterAttr(sorter)))
	m.RunsActive.Add(ctx, 1, metric.WithAttributes(targetAttr(target)))
}

// RecordRunReconciled records a run observed reaching a terminal state.
func (m *Metrics) RecordRunReconciled(ctx context.Context, target, state string) {
	m.RunsReconciled.Add(ctx, 1, metric.WithAttributes(targetAttr(target), stateAttr(state)))
	m.RunsActive.Add(ctx, -1, metric.WithAttributes(targetAttr(target)))
}

// RecordDispatchFailure records a run submission that could not be handed
// to its execution backend.
func (m *Metrics) RecordDispatchFailure(ctx context.Context, target string) {
	m.DispatchFailures.Add(ctx, 1, metric.WithAttributes(targetAttr(target)))
}

// RecordDispatchQueueDepth records the current dispatch queue depth.
func (m *Metrics) RecordDispatchQueueDepth(ctx context.Context, depth int64) {
	m.DispatchQueueDepth.Record(ctx, depth)
}
