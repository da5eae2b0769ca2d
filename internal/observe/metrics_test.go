package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the value of the Int64 sum data point whose attributes
// contain key=value, and whether such a point exists.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) (int64, bool) {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.Emit() == value {
			return dp.Value, true
		}
	}
	return 0, false
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordRPC(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRPC(ctx, "tools/call", 5*time.Millisecond, false)
	m.RecordRPC(ctx, "tools/call", 7*time.Millisecond, false)
	m.RecordRPC(ctx, "bogus", time.Millisecond, true)
	m.RecordRPCError(ctx, -32601)

	rm := collect(t, reader)

	if got, ok := sumWhere(t, rm, "mimcp.rpc.requests", "status", StatusOK); !ok || got != 2 {
		t.Errorf("rpc.requests{status=ok} = %d (found %v), want 2", got, ok)
	}
	if got, ok := sumWhere(t, rm, "mimcp.rpc.errors", "code", "-32601"); !ok || got != 1 {
		t.Errorf("rpc.errors{code=-32601} = %d (found %v), want 1", got, ok)
	}

	met := findMetric(rm, "mimcp.rpc.duration")
	if met == nil {
		t.Fatal("mimcp.rpc.duration not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("mimcp.rpc.duration is not a histogram")
	}
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	if total != 3 {
		t.Errorf("rpc.duration sample count = %d, want 3", total)
	}
}

func TestRecordToolCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "Calcular", time.Millisecond, "")
	m.RecordToolCall(ctx, "Calcular", time.Millisecond, "ToolExecutionError")

	rm := collect(t, reader)
	if got, ok := sumWhere(t, rm, "mimcp.tool.calls", "kind", "ToolExecutionError"); !ok || got != 1 {
		t.Errorf("tool.calls{kind=ToolExecutionError} = %d (found %v), want 1", got, ok)
	}
	if got, ok := sumWhere(t, rm, "mimcp.tool.calls", "status", StatusOK); !ok || got != 1 {
		t.Errorf("tool.calls{status=ok} = %d (found %v), want 1", got, ok)
	}
}

func TestRecordOutboundAndBreaker(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordOutbound(ctx, "restcountries.com", "200", 120*time.Millisecond)
	m.RecordOutbound(ctx, "restcountries.com", "404", 80*time.Millisecond)
	m.RecordBreakerTransition(ctx, "countries", "closed", "open")

	rm := collect(t, reader)
	if got, ok := sumWhere(t, rm, "mimcp.outbound.requests", "status", "404"); !ok || got != 1 {
		t.Errorf("outbound.requests{status=404} = %d (found %v), want 1", got, ok)
	}
	if got, ok := sumWhere(t, rm, "mimcp.breaker.transitions", "to", "open"); !ok || got != 1 {
		t.Errorf("breaker.transitions{to=open} = %d (found %v), want 1", got, ok)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.InFlight.Add(ctx, 3)
	m.InFlight.Add(ctx, -1)

	rm := collect(t, reader)

	gauges := []struct {
		name string
		want int64
	}{
		{"mimcp.active_sessions", 1},
		{"mimcp.rpc.in_flight", 2},
	}

	for _, tc := range gauges {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", tc.name)
			}
			if len(sum.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := sum.DataPoints[0].Value; got != tc.want {
				t.Errorf("gauge value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
