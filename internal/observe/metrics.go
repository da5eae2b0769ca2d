// Package observe provides application-wide observability primitives for
// mimcp: OpenTelemetry metrics, tracing, trace-aware structured logging, and
// HTTP middleware for the optional admin surface.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is set up by [InitProvider] so they can be scraped from the
// admin /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
//
// Nothing in this package writes to stdout, which is reserved for protocol
// frames.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all mimcp metrics.
const meterName = "github.com/MrWong99/mimcp"

// Status attribute values shared by the Record helpers.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- JSON-RPC ---

	// RPCRequests counts handled JSON-RPC messages. Attributes: method, status.
	RPCRequests metric.Int64Counter

	// RPCDuration tracks time from frame receipt to response write.
	// Attributes: method.
	RPCDuration metric.Float64Histogram

	// RPCErrors counts JSON-RPC error responses. Attributes: code.
	RPCErrors metric.Int64Counter

	// InFlight tracks requests currently being processed.
	InFlight metric.Int64UpDownCounter

	// --- Tools ---

	// ToolCalls counts tool invocations. Attributes: tool, status, kind.
	ToolCalls metric.Int64Counter

	// ToolDuration tracks handler execution latency. Attributes: tool.
	ToolDuration metric.Float64Histogram

	// --- Outbound HTTP ---

	// OutboundRequests counts outbound HTTP calls. Attributes: host, status.
	OutboundRequests metric.Int64Counter

	// OutboundDuration tracks outbound HTTP latency. Attributes: host.
	OutboundDuration metric.Float64Histogram

	// BreakerTransitions counts circuit breaker state changes.
	// Attributes: breaker, from, to.
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks live protocol sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- Admin HTTP ---

	// HTTPRequestDuration tracks admin endpoint latency.
	// Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds. Local tools
// answer in microseconds; country lookups take hundreds of milliseconds.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RPCDuration, err = m.Float64Histogram("mimcp.rpc.duration",
		metric.WithDescription("Latency from request receipt to response write."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("mimcp.tool.duration",
		metric.WithDescription("Latency of tool handler execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.OutboundDuration, err = m.Float64Histogram("mimcp.outbound.duration",
		metric.WithDescription("Latency of outbound HTTP requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("mimcp.http.request.duration",
		metric.WithDescription("Admin HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.RPCRequests, err = m.Int64Counter("mimcp.rpc.requests",
		metric.WithDescription("Total JSON-RPC messages by method and status."),
	); err != nil {
		return nil, err
	}
	if met.RPCErrors, err = m.Int64Counter("mimcp.rpc.errors",
		metric.WithDescription("Total JSON-RPC error responses by code."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("mimcp.tool.calls",
		metric.WithDescription("Total tool invocations by tool, status and error kind."),
	); err != nil {
		return nil, err
	}
	if met.OutboundRequests, err = m.Int64Counter("mimcp.outbound.requests",
		metric.WithDescription("Total outbound HTTP requests by host and status."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("mimcp.breaker.transitions",
		metric.WithDescription("Total circuit breaker state transitions."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.InFlight, err = m.Int64UpDownCounter("mimcp.rpc.in_flight",
		metric.WithDescription("Number of requests currently being processed."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("mimcp.active_sessions",
		metric.WithDescription("Number of live protocol sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// statusOf maps an error flag to a status attribute value.
func statusOf(isError bool) string {
	if isError {
		return StatusError
	}
	return StatusOK
}

// RecordRPC records one handled JSON-RPC message and its latency.
func (m *Metrics) RecordRPC(ctx context.Context, method string, d time.Duration, isError bool) {
	m.RPCRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("status", statusOf(isError)),
	))
	m.RPCDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
	))
}

// RecordRPCError records one JSON-RPC error response.
func (m *Metrics) RecordRPCError(ctx context.Context, code int) {
	m.RPCErrors.Add(ctx, 1, metric.WithAttributes(attribute.Int("code", code)))
}

// RecordToolCall records one tool invocation. kind is empty on success.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, d time.Duration, kind string) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", statusOf(kind != "")),
		attribute.String("kind", kind),
	))
	m.ToolDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("tool", tool),
	))
}

// RecordOutbound records one outbound HTTP request. status is the HTTP
// status code as text, or "error" for transport failures.
func (m *Metrics) RecordOutbound(ctx context.Context, host, status string, d time.Duration) {
	m.OutboundRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("host", host),
		attribute.String("status", status),
	))
	m.OutboundDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("host", host),
	))
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, from, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", breaker),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}
