// Package observe provides observability primitives for the receptionist:
// OpenTelemetry metrics and tracing, trace-aware logging, HTTP middleware for
// the ops endpoints, and instrumentation wrappers for every collaborator.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus via [InitProvider]. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all frontdesk metrics.
const meterName = "github.com/MrWong99/frontdesk"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// TurnDuration tracks the time from a finalized utterance to the end of
	// reply playback.
	TurnDuration metric.Float64Histogram

	// ProviderDuration tracks collaborator call latency. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("provider", ...)
	ProviderDuration metric.Float64Histogram

	// ProviderRequests counts collaborator calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts collaborator failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// BookingTransitions counts stage changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	BookingTransitions metric.Int64Counter

	// BookingOutcomes counts finished booking attempts. Use with attribute:
	//   attribute.String("outcome", ...)
	BookingOutcomes metric.Int64Counter

	// RecognitionGaps counts dropped segments (empty text or decoder errors).
	RecognitionGaps metric.Int64Counter

	// ChunksDropped counts capture chunks evicted by a bounded hand-off queue.
	ChunksDropped metric.Int64Counter

	// HTTPRequestDuration tracks ops endpoint latency. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	meter metric.Meter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for a phone
// conversation: network round-trips up to a slow synthesized reply.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("frontdesk.turn.duration",
		metric.WithDescription("Latency of one utterance-in, reply-out cycle."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderDuration, err = m.Float64Histogram("frontdesk.provider.duration",
		metric.WithDescription("Latency of collaborator calls by kind and provider."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("frontdesk.provider.requests",
		metric.WithDescription("Total collaborator requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("frontdesk.provider.errors",
		metric.WithDescription("Total collaborator errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.BookingTransitions, err = m.Int64Counter("frontdesk.booking.transitions",
		metric.WithDescription("Booking stage transitions by source and target stage."),
	); err != nil {
		return nil, err
	}
	if met.BookingOutcomes, err = m.Int64Counter("frontdesk.booking.outcomes",
		metric.WithDescription("Finished booking attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionGaps, err = m.Int64Counter("frontdesk.recognition.gaps",
		metric.WithDescription("Speech segments dropped because nothing intelligible was recognised."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDropped, err = m.Int64Counter("frontdesk.audio.chunks_dropped",
		metric.WithDescription("Capture chunks evicted from a full hand-off queue."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("frontdesk.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RegisterQueueDepth exposes fn as the frontdesk.audio.queue_depth gauge,
// sampled on every collection. Unregister the returned registration when the
// queue goes away.
func (m *Metrics) RegisterQueueDepth(fn func() int64) (metric.Registration, error) {
	gauge, err := m.meter.Int64ObservableGauge("frontdesk.audio.queue_depth",
		metric.WithDescription("Capture chunks waiting to be decoded."),
	)
	if err != nil {
		return nil, err
	}
	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, fn())
		return nil
	}, gauge)
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records one collaborator request with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records one collaborator failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTransition records a booking stage change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.BookingTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordOutcome records a finished booking attempt.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string) {
	m.BookingOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRecognitionGap records one dropped speech segment.
func (m *Metrics) RecordRecognitionGap(ctx context.Context) {
	m.RecognitionGaps.Add(ctx, 1)
}

// RecordChunkDropped records one evicted capture chunk.
func (m *Metrics) RecordChunkDropped(ctx context.Context) {
	m.ChunksDropped.Add(ctx, 1)
}
