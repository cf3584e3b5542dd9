// Package observe provides application-wide observability primitives for
// phonescan: OpenTelemetry metrics, distributed tracing, trace-aware logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all phonescan metrics.
const meterName = "github.com/MrWong99/phonescan"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Scan pipeline ---

	// FramesProcessed counts frames fed into scan sessions.
	FramesProcessed metric.Int64Counter

	// Extractions counts per-string extraction attempts. Use with attribute:
	//   attribute.String("outcome", ...) (matched, no_shape_match, unresolvable)
	Extractions metric.Int64Counter

	// StableResults counts sessions that reached a stable number.
	StableResults metric.Int64Counter

	// Rejections counts stable results rejected by the client.
	Rejections metric.Int64Counter

	// FrameDuration tracks the time spent processing one frame, excluding
	// recognition.
	FrameDuration metric.Float64Histogram

	// FramesToStable records how many frames a session needed before its
	// result became stable.
	FramesToStable metric.Int64Histogram

	// --- Recognizer ---

	// RecognizeDuration tracks OCR latency per image.
	RecognizeDuration metric.Float64Histogram

	// ProviderRequests counts recognizer calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts recognizer errors. Use with attribute:
	//   attribute.String("provider", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of open scan sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Frame
// processing sits at the low end, remote OCR calls at the high end.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// frameBuckets covers frames-to-stable. Eleven is the minimum with default
// settings.
var frameBuckets = []float64{11, 15, 20, 30, 45, 60, 90, 120, 180, 300}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Scan pipeline.
	if met.FramesProcessed, err = m.Int64Counter("phonescan.frames.processed",
		metric.WithDescription("Total frames processed by scan sessions."),
	); err != nil {
		return nil, err
	}
	if met.Extractions, err = m.Int64Counter("phonescan.extractions",
		metric.WithDescription("Total extraction attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.StableResults, err = m.Int64Counter("phonescan.results.stable",
		metric.WithDescription("Total stable phone numbers reported."),
	); err != nil {
		return nil, err
	}
	if met.Rejections, err = m.Int64Counter("phonescan.results.rejected",
		metric.WithDescription("Total stable results rejected by clients."),
	); err != nil {
		return nil, err
	}
	if met.FrameDuration, err = m.Float64Histogram("phonescan.frame.duration",
		metric.WithDescription("Latency of extracting and stabilising one frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FramesToStable, err = m.Int64Histogram("phonescan.frames_to_stable",
		metric.WithDescription("Frames processed before a result became stable."),
		metric.WithUnit("{frame}"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}

	// Recognizer.
	if met.RecognizeDuration, err = m.Float64Histogram("phonescan.recognize.duration",
		metric.WithDescription("Latency of OCR recognition per image."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("phonescan.provider.requests",
		metric.WithDescription("Total recognizer requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("phonescan.provider.errors",
		metric.WithDescription("Total recognizer errors by provider."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("phonescan.active_sessions",
		metric.WithDescription("Number of open scan sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("phonescan.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// RecordExtraction increments the extraction counter for outcome.
func (m *Metrics) RecordExtraction(ctx context.Context, outcome string) {
	m.Extractions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordProviderRequest records a recognizer request with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a recognizer error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
