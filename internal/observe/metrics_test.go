package observe

import (
	"context"
	"testing"

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

// sumWhere returns the value of the counter data point carrying all of attrs.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	for _, dp := range sum.DataPoints {
		match := true
		for _, want := range attrs {
			if got, ok := dp.Attributes.Value(want.Key); !ok || got != want.Value {
				match = false
				break
			}
		}
		if match {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %v", name, attrs)
	return 0
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.TurnDuration.Record(ctx, 1.2)
	m.TurnDuration.Record(ctx, 3.4)
	m.ProviderDuration.Record(ctx, 0.3)

	rm := collect(t, reader)
	for name, want := range map[string]uint64{
		"frontdesk.turn.duration":     2,
		"frontdesk.provider.duration": 1,
	} {
		t.Run(name, func(t *testing.T) {
			met := findMetric(rm, name)
			if met == nil {
				t.Fatalf("metric %q not found", name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", name)
			}
			if got := hist.DataPoints[0].Count; got != want {
				t.Errorf("sample count = %d, want %d", got, want)
			}
		})
	}
}

func TestProviderCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "groq", "llm", "ok")
	m.RecordProviderRequest(ctx, "groq", "llm", "ok")
	m.RecordProviderRequest(ctx, "groq", "llm", "error")
	m.RecordProviderError(ctx, "mimic3", "tts")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "frontdesk.provider.requests", Attr("provider", "groq"), Attr("status", "ok")); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "frontdesk.provider.errors", Attr("provider", "mimic3"), Attr("kind", "tts")); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
}

func TestBookingCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTransition(ctx, "IDLE", "AWAITING_DATETIME")
	m.RecordTransition(ctx, "AWAITING_DATETIME", "AWAITING_EMAIL")
	m.RecordTransition(ctx, "IDLE", "AWAITING_DATETIME")
	m.RecordOutcome(ctx, "scheduled")
	m.RecordRecognitionGap(ctx)
	m.RecordChunkDropped(ctx)
	m.RecordChunkDropped(ctx)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "frontdesk.booking.transitions", Attr("from", "IDLE"), Attr("to", "AWAITING_DATETIME")); got != 2 {
		t.Errorf("IDLE->AWAITING_DATETIME = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "frontdesk.booking.outcomes", Attr("outcome", "scheduled")); got != 1 {
		t.Errorf("scheduled = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "frontdesk.recognition.gaps"); got != 1 {
		t.Errorf("gaps = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "frontdesk.audio.chunks_dropped"); got != 2 {
		t.Errorf("dropped = %d, want 2", got)
	}
}

func TestRegisterQueueDepth(t *testing.T) {
	m, reader := newTestMetrics(t)

	depth := int64(7)
	reg, err := m.RegisterQueueDepth(func() int64 { return depth })
	if err != nil {
		t.Fatalf("RegisterQueueDepth: %v", err)
	}
	t.Cleanup(func() { _ = reg.Unregister() })

	rm := collect(t, reader)
	met := findMetric(rm, "frontdesk.audio.queue_depth")
	if met == nil {
		t.Fatal("queue depth gauge not found")
	}
	gauge, ok := met.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("queue depth is %T, want Gauge[int64]", met.Data)
	}
	if len(gauge.DataPoints) != 1 || gauge.DataPoints[0].Value != 7 {
		t.Errorf("data points = %+v", gauge.DataPoints)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
