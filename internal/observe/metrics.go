// Package observe provides application-wide observability primitives for
// Voicebridge: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voicebridge metrics.
const meterName = "github.com/kenpath-ai/voicebridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// FirstChunkDuration tracks the time from submitting a user turn to the
	// first generated chunk. The hold-message race decision happens inside
	// this window.
	FirstChunkDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// FramesIn counts deserialized inbound wire events. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("event", ...)
	FramesIn metric.Int64Counter

	// FramesOut counts serialized outbound wire messages. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("event", ...)
	FramesOut metric.Int64Counter

	// DTMFKeys counts received DTMF keypresses. Use with attribute:
	//   attribute.String("key", ...)
	DTMFKeys metric.Int64Counter

	// HoldMessages counts spoken hold fillers, i.e. turns where generation
	// lost the race against the timeout.
	HoldMessages metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts collaborator errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of live telephony media streams.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("voicebridge.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FirstChunkDuration, err = m.Float64Histogram("voicebridge.generation.first_chunk.duration",
		metric.WithDescription("Time from user turn submission to the first generated chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("voicebridge.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesIn, err = m.Int64Counter("voicebridge.frames.in",
		metric.WithDescription("Total deserialized inbound wire events by provider and event type."),
	); err != nil {
		return nil, err
	}
	if met.FramesOut, err = m.Int64Counter("voicebridge.frames.out",
		metric.WithDescription("Total serialized outbound wire messages by provider and event type."),
	); err != nil {
		return nil, err
	}
	if met.DTMFKeys, err = m.Int64Counter("voicebridge.dtmf.keys",
		metric.WithDescription("Total received DTMF keypresses by key."),
	); err != nil {
		return nil, err
	}
	if met.HoldMessages, err = m.Int64Counter("voicebridge.hold.messages",
		metric.WithDescription("Total spoken hold fillers (generation slower than the timeout)."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("voicebridge.provider.errors",
		metric.WithDescription("Total collaborator errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStreams, err = m.Int64UpDownCounter("voicebridge.active_streams",
		metric.WithDescription("Number of live telephony media streams."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voicebridge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// RecordFrameIn records one deserialized inbound wire event.
func (m *Metrics) RecordFrameIn(ctx context.Context, provider, event string) {
	m.FramesIn.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("event", event),
		),
	)
}

// RecordFrameOut records one serialized outbound wire message.
func (m *Metrics) RecordFrameOut(ctx context.Context, provider, event string) {
	m.FramesOut.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("event", event),
		),
	)
}

// RecordDTMF records one received DTMF keypress.
func (m *Metrics) RecordDTMF(ctx context.Context, key string) {
	m.DTMFKeys.Add(ctx, 1,
		metric.WithAttributes(attribute.String("key", key)),
	)
}

// RecordProviderError records one collaborator error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
