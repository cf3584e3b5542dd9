// Package scan runs the per-session control flow: every string recognized in
// a frame goes through the phone extractor, the surviving candidates are fed
// into a stabilize.Tracker as one frame, and the session reports a result
// once the tracker has one.
//
// A [Session] serialises all access to its tracker, so frames may be
// submitted from any goroutine. Frames are still processed strictly in the
// order ProcessFrame acquires the session lock; callers that care about
// capture order must submit from a single goroutine.
package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"github.com/MrWong99/phonescan/internal/observe"
	"github.com/MrWong99/phonescan/internal/phone"
	"github.com/MrWong99/phonescan/internal/stabilize"
)

// ErrFinished is returned by [Session.ProcessFrame] after the session has
// reported a result and was not configured to keep going. Call
// [Session.Resume] or [Session.Reject] to continue scanning.
var ErrFinished = errors.New("scan: session already produced a result")

// Settings tunes a [Session]. The zero value is not useful; start from
// [DefaultSettings].
type Settings struct {
	// Horizon is the number of frames a candidate may go unseen.
	Horizon int64

	// Threshold is the repeat-sighting count needed for a result.
	Threshold int64

	// NormalizeUnicode applies NFKC to recognized text before extraction so
	// that fullwidth digits and similar compatibility forms are matched.
	NormalizeUnicode bool

	// ContinueAfterResult keeps the session accepting frames after a result
	// has been reported.
	ContinueAfterResult bool
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Horizon:          stabilize.DefaultHorizon,
		Threshold:        stabilize.DefaultThreshold,
		NormalizeUnicode: true,
	}
}

// Result is a stable phone number reported by a session.
type Result struct {
	// Number is the normalised 10-character candidate.
	Number string

	// Frame is the index of the frame that made the result stable.
	Frame int64

	// Sightings is the number of frames the candidate was seen in.
	Sightings int64

	// At is the wall-clock time the result became stable.
	At time.Time
}

// FrameReport describes what happened to one frame.
type FrameReport struct {
	// Frame is the index assigned to this frame.
	Frame int64

	// Candidates are the distinct numbers extracted from the frame, in the
	// order their source strings were given.
	Candidates []string

	// Best is the tracker's current best candidate and BestCount its repeat
	// count. Best may be empty.
	Best      string
	BestCount int64

	// Result is set on the frame that made a number stable.
	Result *Result

	// Finished reports whether the session refuses further frames after
	// this one.
	Finished bool
}

// Option configures a [Session].
type Option func(*Session)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithClock overrides the wall clock used for [Result.At].
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// Session owns one tracker and the lifecycle around it.
type Session struct {
	id       string
	settings Settings
	metrics  *observe.Metrics
	now      func() time.Time

	mu       sync.Mutex
	tracker  *stabilize.Tracker
	finished bool
	results  []Result
}

// NewSession creates a session identified by id.
func NewSession(id string, settings Settings, opts ...Option) *Session {
	s := &Session{
		id:       id,
		settings: settings,
		now:      time.Now,
		tracker: stabilize.New(
			stabilize.WithHorizon(settings.Horizon),
			stabilize.WithThreshold(settings.Threshold),
		),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Settings returns the settings the session was created with.
func (s *Session) Settings() Settings { return s.settings }

// ProcessFrame extracts candidates from texts and feeds them to the tracker
// as one frame. An empty texts slice is a valid frame and still advances the
// frame index.
func (s *Session) ProcessFrame(ctx context.Context, texts []string) (report FrameReport, err error) {
	if ctx.Err() != nil {
		return FrameReport{}, ctx.Err()
	}
	ctx = observe.WithSessionID(ctx, s.id)
	ctx, span := observe.StartSpan(ctx, "scan.ProcessFrame",
		trace.WithAttributes(attribute.Int("scan.texts", len(texts))),
	)
	defer func() {
		span.SetAttributes(
			attribute.Int64("scan.frame", report.Frame),
			attribute.Int("scan.candidates", len(report.Candidates)),
			attribute.Bool("scan.stable", report.Result != nil),
		)
		observe.EndSpan(span, err)
	}()

	start := time.Now()
	candidates, outcomes := s.extract(texts)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return FrameReport{}, ErrFinished
	}
	for _, o := range outcomes {
		s.metrics.RecordExtraction(ctx, o.String())
	}

	frame := s.tracker.FrameIndex()
	s.tracker.Observe(candidates)
	best, count := s.tracker.Best()
	report = FrameReport{
		Frame:      frame,
		Candidates: candidates,
		Best:       best,
		BestCount:  count,
	}

	if number, ok := s.tracker.Stable(); ok {
		res := Result{
			Number:    number,
			Frame:     frame,
			Sightings: count + 1,
			At:        s.now(),
		}
		s.results = append(s.results, res)
		report.Result = &res

		// Forget the number so a resumed session has to see it again.
		s.tracker.Reset(number)
		if !s.settings.ContinueAfterResult {
			s.finished = true
		}
		report.Finished = s.finished

		s.metrics.StableResults.Add(ctx, 1)
		s.metrics.FramesToStable.Record(ctx, frame+1)
		observe.Logger(ctx).Info("stable number found",
			"frame", frame,
			"sightings", res.Sightings,
		)
	}

	s.metrics.FramesProcessed.Add(ctx, 1)
	s.metrics.FrameDuration.Record(ctx, time.Since(start).Seconds())
	return report, nil
}

// extract runs the extractor over every text and returns the distinct
// candidates plus one outcome per text. It needs no lock: extraction is pure.
func (s *Session) extract(texts []string) (out []string, outcomes []phone.Outcome) {
	outcomes = make([]phone.Outcome, 0, len(texts))
	seen := make(map[string]struct{}, len(texts))
	for _, text := range texts {
		if s.settings.NormalizeUnicode {
			text = norm.NFKC.String(text)
		}
		c, outcome := phone.Classify(text)
		outcomes = append(outcomes, outcome)
		if outcome != phone.OutcomeMatched {
			continue
		}
		if _, dup := seen[c.Number]; dup {
			continue
		}
		seen[c.Number] = struct{}{}
		out = append(out, c.Number)
	}
	return out, outcomes
}

// Resume reopens a finished session without discarding anything.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = false
}

// Reject records that number was misread, removes it from the ledger and
// reopens the session.
func (s *Session) Reject(ctx context.Context, number string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tracker.Reset(number)
	s.finished = false
	s.metrics.Rejections.Add(ctx, 1)
	observe.Logger(observe.WithSessionID(ctx, s.id)).Info("result rejected")
}

// Finished reports whether the session stopped after a result.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Results returns every result reported so far, oldest first.
func (s *Session) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

// Frames returns the number of frames processed.
func (s *Session) Frames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.FrameIndex()
}

// Ledger returns a copy of the tracker's ledger.
func (s *Session) Ledger() []stabilize.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Snapshot()
}
