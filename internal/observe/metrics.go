// Package observe provides application-wide observability primitives for
// Earworm: OpenTelemetry metrics with a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Earworm metrics.
const meterName = "github.com/earworm-audio/earworm"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RecognitionDuration tracks per-clip speech recognition latency.
	RecognitionDuration metric.Float64Histogram

	// SearchDuration tracks lyrics corpus query latency.
	SearchDuration metric.Float64Histogram

	// PlaybackDuration tracks the full locate/start/verify playback attempt.
	PlaybackDuration metric.Float64Histogram

	// --- Counters ---

	// AudioJobs counts processed audio jobs. Use with attribute:
	//   attribute.String("status", "recognized"|"unknown"|"malformed"|"discarded")
	AudioJobs metric.Int64Counter

	// TokensProduced counts tokens pushed into the word buffer.
	TokensProduced metric.Int64Counter

	// CorpusSearches counts matcher queries. Use with attribute:
	//   attribute.String("result", "match"|"miss"|"error")
	CorpusSearches metric.Int64Counter

	// PlaybackAttempts counts playback attempts. Use with attribute:
	//   attribute.String("status", "verified"|"not_found"|"start_failed"|"unverified")
	PlaybackAttempts metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the number of audio jobs awaiting recognition.
	QueueDepth metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// recognition and corpus query latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RecognitionDuration, err = m.Float64Histogram("earworm.recognition.duration",
		metric.WithDescription("Latency of per-clip speech recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SearchDuration, err = m.Float64Histogram("earworm.search.duration",
		metric.WithDescription("Latency of lyrics corpus queries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("earworm.playback.duration",
		metric.WithDescription("Latency of full playback attempts including verification delay."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.AudioJobs, err = m.Int64Counter("earworm.audio.jobs",
		metric.WithDescription("Total audio jobs processed by status."),
	); err != nil {
		return nil, err
	}
	if met.TokensProduced, err = m.Int64Counter("earworm.tokens.produced",
		metric.WithDescription("Total tokens pushed into the word buffer."),
	); err != nil {
		return nil, err
	}
	if met.CorpusSearches, err = m.Int64Counter("earworm.corpus.searches",
		metric.WithDescription("Total lyrics corpus queries by result."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackAttempts, err = m.Int64Counter("earworm.playback.attempts",
		metric.WithDescription("Total playback attempts by status."),
	); err != nil {
		return nil, err
	}

	if met.QueueDepth, err = m.Int64UpDownCounter("earworm.queue.depth",
		metric.WithDescription("Audio jobs awaiting recognition."),
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
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}
