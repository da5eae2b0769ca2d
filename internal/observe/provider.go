package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig selects which global OTel providers [InitProvider] installs.
type ProviderConfig struct {
	// ServiceName is the service.name resource attribute. Default: "mimcp".
	ServiceName string

	// ServiceVersion is the service.version resource attribute.
	ServiceVersion string

	// PrometheusMetrics installs a meter provider backed by the Prometheus
	// bridge on the default registerer. Only one call per process may set it.
	PrometheusMetrics bool

	// TraceExporter receives finished spans. When nil the global tracer
	// provider is left alone and spans stay non-recording.
	TraceExporter sdktrace.SpanExporter
}

// InitProvider installs the providers cfg asks for as the OTel globals and
// returns a shutdown func that flushes and closes them in reverse order. With
// neither output selected it installs nothing and the shutdown func is a
// no-op.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "mimcp"
	}

	res, err := resource.Merge(
		resource.Default(),
		// Schemaless so the merge adopts the SDK default's schema URL.
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	var closers []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	if cfg.PrometheusMetrics {
		promExp, err := promexporter.New()
		if err != nil {
			return nil, err
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(promExp),
		)
		otel.SetMeterProvider(mp)
		closers = append(closers, mp.Shutdown)
	}

	if cfg.TraceExporter != nil {
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(cfg.TraceExporter),
		)
		otel.SetTracerProvider(tp)
		closers = append(closers, tp.Shutdown)
	}

	return shutdown, nil
}
