package resilience

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/phonescan/internal/observe"
	"github.com/MrWong99/phonescan/pkg/provider/ocr"
)

// OCRFallback implements [ocr.Provider] with failover across several
// recognizers. Each recognizer has its own circuit breaker, and every
// attempt is recorded in the provider metrics.
type OCRFallback struct {
	group   *FallbackGroup[namedRecognizer]
	metrics *observe.Metrics
}

// namedRecognizer keeps the registration name next to the provider so that
// metrics can be labelled per attempt.
type namedRecognizer struct {
	name string
	ocr.Provider
}

var _ ocr.Provider = (*OCRFallback)(nil)

// NewOCRFallback creates an [OCRFallback] with primary as the preferred
// recognizer. A nil metrics uses [observe.DefaultMetrics].
func NewOCRFallback(primary ocr.Provider, primaryName string, cfg FallbackConfig, metrics *observe.Metrics) *OCRFallback {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &OCRFallback{
		group:   NewFallbackGroup(namedRecognizer{primaryName, primary}, primaryName, cfg),
		metrics: metrics,
	}
}

// AddFallback registers an additional recognizer.
func (f *OCRFallback) AddFallback(name string, p ocr.Provider) {
	f.group.AddFallback(name, namedRecognizer{name, p})
}

// Health reports the breaker state of each recognizer.
func (f *OCRFallback) Health() []EntryHealth {
	return f.group.Health()
}

// Recognize runs the image through the first healthy recognizer.
func (f *OCRFallback) Recognize(ctx context.Context, img ocr.Image) ([]string, error) {
	ctx, span := observe.StartSpan(ctx, "ocr.Recognize", trace.WithAttributes(
		attribute.String("ocr.content_type", img.ContentType),
		attribute.Int("ocr.bytes", len(img.Data)),
	))
	start := time.Now()
	texts, err := ExecuteWithResult(ctx, f.group, func(ctx context.Context, p namedRecognizer) ([]string, error) {
		span.AddEvent("attempt", trace.WithAttributes(attribute.String("ocr.recognizer", p.name)))
		out, err := p.Recognize(ctx, img)
		if err != nil {
			f.metrics.RecordProviderRequest(ctx, p.name, "error")
			f.metrics.RecordProviderError(ctx, p.name)
			return nil, err
		}
		f.metrics.RecordProviderRequest(ctx, p.name, "ok")
		return out, nil
	})
	f.metrics.RecognizeDuration.Record(ctx, time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("ocr.texts", len(texts)))
	observe.EndSpan(span, err)
	return texts, err
}
