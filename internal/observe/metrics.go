// Package observe provides application-wide observability primitives for
// Solace: OpenTelemetry metrics, distributed tracing, trace-aware logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus via [InitProvider], so they can be scraped from /metrics. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Solace metrics.
const meterName = "github.com/MrWong99/solace"

// Stage names used as the "stage" attribute and as span names.
const (
	StageTranscription = "transcription"
	StageReply         = "reply"
	StageSpeech        = "speech"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per loop stage ---

	// TranscriptionDuration tracks how long one listen attempt took, from
	// opening the stream to the result.
	TranscriptionDuration metric.Float64Histogram

	// ReplyDuration tracks reply service latency.
	ReplyDuration metric.Float64Histogram

	// SpeechDuration tracks synthesis plus playback of one reply.
	SpeechDuration metric.Float64Histogram

	// --- Counters ---

	// Cycles counts loop iterations. Use with attribute:
	//   attribute.String("outcome", "text"|"error"|"ended")
	Cycles metric.Int64Counter

	// TranscriptionErrors counts failed listen attempts. Use with attribute:
	//   attribute.String("kind", "network"|"audio-capture"|"aborted"|"service")
	TranscriptionErrors metric.Int64Counter

	// ReplyFallbacks counts replies replaced by a canned text. Use with
	// attribute:
	//   attribute.String("reason", "error"|"no_reply")
	ReplyFallbacks metric.Int64Counter

	// EmotionFlags counts utterances sent with the emotion flag set.
	EmotionFlags metric.Int64Counter

	// ProviderRequests counts provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveLoops is 1 while the conversation loop runs.
	ActiveLoops metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...), attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Listen
// attempts can legitimately wait several seconds for speech.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("solace.transcription.duration",
		metric.WithDescription("Duration of one listen attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ReplyDuration, err = m.Float64Histogram("solace.reply.duration",
		metric.WithDescription("Latency of the reply service."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechDuration, err = m.Float64Histogram("solace.speech.duration",
		metric.WithDescription("Duration of reply synthesis and playback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Cycles, err = m.Int64Counter("solace.cycles",
		metric.WithDescription("Conversation loop iterations by outcome."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionErrors, err = m.Int64Counter("solace.transcription.errors",
		metric.WithDescription("Failed listen attempts by error kind."),
	); err != nil {
		return nil, err
	}
	if met.ReplyFallbacks, err = m.Int64Counter("solace.reply.fallbacks",
		metric.WithDescription("Replies replaced by a fallback text, by reason."),
	); err != nil {
		return nil, err
	}
	if met.EmotionFlags, err = m.Int64Counter("solace.emotion.flags",
		metric.WithDescription("Utterances sent with the emotion flag set."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("solace.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("solace.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveLoops, err = m.Int64UpDownCounter("solace.active_loops",
		metric.WithDescription("Number of running conversation loops."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("solace.http.request.duration",
		metric.WithDescription("HTTP request latency by method, path and status."),
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
// first call using [otel.GetMeterProvider]. Call it after [InitProvider] so
// the instruments bind to the Prometheus exporter. Panics if instrument
// creation fails.
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

// RecordStage records d on the histogram for stage. Unknown stages are
// ignored.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	var h metric.Float64Histogram
	switch stage {
	case StageTranscription:
		h = m.TranscriptionDuration
	case StageReply:
		h = m.ReplyDuration
	case StageSpeech:
		h = m.SpeechDuration
	default:
		return
	}
	h.Record(ctx, d.Seconds())
}

// RecordCycle counts one loop iteration with the given outcome.
func (m *Metrics) RecordCycle(ctx context.Context, outcome string) {
	m.Cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTranscriptionError counts one failed listen attempt.
func (m *Metrics) RecordTranscriptionError(ctx context.Context, kind string) {
	m.TranscriptionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordReplyFallback counts one reply replaced by a fallback text.
func (m *Metrics) RecordReplyFallback(ctx context.Context, reason string) {
	m.ReplyFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordEmotionFlag counts one flagged utterance.
func (m *Metrics) RecordEmotionFlag(ctx context.Context) {
	m.EmotionFlags.Add(ctx, 1)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
