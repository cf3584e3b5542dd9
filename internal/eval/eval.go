// Package eval measures how well the extractor and stabilizer recover known
// numbers from recorded frame streams.
//
// Each recording is replayed in its own session, concurrently, and its first
// stable result is compared with the recording's expected number. Besides
// exact hits the report carries the edit distance of misses, which tells a
// confusion-table problem (distance 1 or 2) from a shape problem.
package eval

import (
	"context"
	"fmt"
	"runtime"

	"github.com/antzucaro/matchr"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/phonescan/internal/scan"
)

// CaseResult is the outcome for one recording.
type CaseResult struct {
	Name     string `json:"name"`
	Expected string `json:"expected,omitempty"`
	Got      string `json:"got,omitempty"`

	// Found reports whether the session produced a result at all.
	Found bool `json:"found"`

	// Exact reports Got == Expected.
	Exact bool `json:"exact"`

	// Distance is the Levenshtein distance between Expected and Got, or
	// len(Expected) when nothing was found.
	Distance int `json:"distance"`

	// Similarity is the Jaro-Winkler similarity of Expected and Got.
	Similarity float64 `json:"similarity"`

	// FramesToStable is the number of frames consumed until the result, zero
	// when nothing was found.
	FramesToStable int64 `json:"frames_to_stable"`

	// Frames is the recording length.
	Frames int `json:"frames"`
}

// Scored reports whether the recording had an expected number.
func (c CaseResult) Scored() bool { return c.Expected != "" }

// Summary aggregates all cases. Only scored cases count towards the rates.
type Summary struct {
	Cases  []CaseResult `json:"cases"`
	Scored int          `json:"scored"`
	Found  int          `json:"found"`
	Exact  int          `json:"exact"`

	// MeanDistance averages Distance over scored cases.
	MeanDistance float64 `json:"mean_distance"`

	// MeanFramesToStable averages FramesToStable over exact hits.
	MeanFramesToStable float64 `json:"mean_frames_to_stable"`
}

// Accuracy is the share of scored cases that were exact hits.
func (s Summary) Accuracy() float64 {
	if s.Scored == 0 {
		return 0
	}
	return float64(s.Exact) / float64(s.Scored)
}

// Option configures [Run].
type Option func(*runner)

// WithConcurrency limits the number of recordings replayed at once.
// Defaults to GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(r *runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithSessionOptions passes options to every replayed session.
func WithSessionOptions(opts ...scan.Option) Option {
	return func(r *runner) {
		r.sessionOpts = append(r.sessionOpts, opts...)
	}
}

type runner struct {
	concurrency int
	sessionOpts []scan.Option
}

// Run replays recs with settings and scores each against its expected
// number. Cases keep the order of recs.
func Run(ctx context.Context, recs []*scan.Recording, settings scan.Settings, opts ...Option) (Summary, error) {
	r := &runner{concurrency: runtime.GOMAXPROCS(0)}
	for _, o := range opts {
		o(r)
	}

	cases := make([]CaseResult, len(recs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, rec := range recs {
		g.Go(func() error {
			res, err := scan.Replay(gctx, rec, settings, r.sessionOpts...)
			if err != nil {
				return fmt.Errorf("eval: replay %s: %w", rec.Name, err)
			}
			cases[i] = Score(rec, res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return Summarize(cases), nil
}

// Score compares the first result of res with rec.Expected.
func Score(rec *scan.Recording, res scan.ReplayResult) CaseResult {
	c := CaseResult{
		Name:     rec.Name,
		Expected: rec.Expected,
		Frames:   len(rec.Frames),
	}
	if first, ok := res.First(); ok {
		c.Found = true
		c.Got = first.Number
		c.FramesToStable = first.Frame + 1
	}
	if !c.Scored() {
		return c
	}

	c.Exact = c.Found && c.Got == c.Expected
	if c.Found {
		c.Distance = matchr.Levenshtein(c.Expected, c.Got)
		c.Similarity = matchr.JaroWinkler(c.Expected, c.Got, false)
	} else {
		c.Distance = len(c.Expected)
	}
	return c
}

// Summarize aggregates cases.
func Summarize(cases []CaseResult) Summary {
	s := Summary{Cases: cases}
	var distance, frames int64
	for _, c := range cases {
		if !c.Scored() {
			continue
		}
		s.Scored++
		distance += int64(c.Distance)
		if c.Found {
			s.Found++
		}
		if c.Exact {
			s.Exact++
			frames += c.FramesToStable
		}
	}
	if s.Scored > 0 {
		s.MeanDistance = float64(distance) / float64(s.Scored)
	}
	if s.Exact > 0 {
		s.MeanFramesToStable = float64(frames) / float64(s.Exact)
	}
	return s
}
