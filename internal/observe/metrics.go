// Package observe provides application-wide observability primitives for
// Maitred: OpenTelemetry metrics and the Prometheus exporter bridge that
// serves them on /metrics.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
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

// meterName is the instrumentation scope name used for all Maitred metrics.
const meterName = "github.com/voxterra/maitred"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types
// handle their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TurnDuration tracks full utterance-to-reply turn latency. Use with
	// attribute: attribute.String("route", ...).
	TurnDuration metric.Float64Histogram

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks fallback completion latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis latency (first chunk to close).
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// ParserResults counts parse outcomes. Use with attributes:
	//   attribute.String("status", ...), attribute.String("reason", ...)
	ParserResults metric.Int64Counter

	// FallbackInvocations counts language-model fallback turns by reason.
	FallbackInvocations metric.Int64Counter

	// BargeIns counts turns cancelled by a newer utterance.
	BargeIns metric.Int64Counter

	// TetherRewrites counts replies rewritten by the cart-tether check.
	TetherRewrites metric.Int64Counter

	// TelemetryDropped counts telemetry events lost to backpressure or
	// sink failure.
	TelemetryDropped metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds)
// optimised for voice-pipeline latencies.
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
	if met.TurnDuration, err = m.Float64Histogram("maitred.turn.duration",
		metric.WithDescription("Latency of one full utterance-to-reply turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("maitred.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("maitred.llm.duration",
		metric.WithDescription("Latency of fallback completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("maitred.tts.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ParserResults, err = m.Int64Counter("maitred.parser.results",
		metric.WithDescription("Total parse outcomes by status and reason."),
	); err != nil {
		return nil, err
	}
	if met.FallbackInvocations, err = m.Int64Counter("maitred.fallback.invocations",
		metric.WithDescription("Total language-model fallback turns by reason."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("maitred.turn.barge_ins",
		metric.WithDescription("Turns cancelled by a newer finalized utterance."),
	); err != nil {
		return nil, err
	}
	if met.TetherRewrites, err = m.Int64Counter("maitred.reply.tether_rewrites",
		metric.WithDescription("Replies replaced by the cart-tether check."),
	); err != nil {
		return nil, err
	}
	if met.TelemetryDropped, err = m.Int64Counter("maitred.telemetry.dropped",
		metric.WithDescription("Telemetry events lost to backpressure or sink failure."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("maitred.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("maitred.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating
// it on first call using [otel.GetMeterProvider]. Subsequent calls return
// the same pointer. Panics if instrument creation fails (should not
// happen with the global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity
// at call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTurn records one completed turn with its routing path.
func (m *Metrics) RecordTurn(ctx context.Context, route string, d time.Duration) {
	m.TurnDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("route", route)),
	)
}

// RecordParserResult counts one parse outcome.
func (m *Metrics) RecordParserResult(ctx context.Context, status, reason string) {
	m.ParserResults.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", status),
			attribute.String("reason", reason),
		),
	)
}

// RecordFallback counts one language-model fallback turn.
func (m *Metrics) RecordFallback(ctx context.Context, reason string) {
	m.FallbackInvocations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordHTTPRequest records one served HTTP request by route.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, route string, d time.Duration) {
	m.HTTPRequestDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("route", route)),
	)
}

// RecordBargeIn counts one cancelled in-flight turn.
func (m *Metrics) RecordBargeIn(ctx context.Context) {
	m.BargeIns.Add(ctx, 1)
}

// RecordTetherRewrite counts one reply replaced by the cart-tether check.
func (m *Metrics) RecordTetherRewrite(ctx context.Context) {
	m.TetherRewrites.Add(ctx, 1)
}
