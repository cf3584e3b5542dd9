// Package stabilize turns a noisy per-frame stream of candidate strings into
// a single confident answer.
//
// A [Tracker] keeps a ledger of every candidate seen recently together with
// the frame it was last seen in and how many times it was seen again after
// its first sighting. Candidates that disappear for longer than the horizon
// are evicted and lose their count. Once the best candidate has been seen
// again often enough it is reported by [Tracker.Stable].
//
// Frames must be fed in arrival order. A Tracker is not safe for concurrent
// use; callers serialise access (see the scan package).
package stabilize

const (
	// DefaultHorizon is the number of frames a candidate may go unseen
	// before it is evicted. Roughly one second at 30 fps.
	DefaultHorizon = 30

	// DefaultThreshold is the repeat-sighting count a candidate needs to be
	// reported. The first sighting counts as zero, so the default requires
	// eleven sightings.
	DefaultThreshold = 10
)

// Observation is a ledger entry.
type Observation struct {
	// LastSeen is the frame index of the latest sighting.
	LastSeen int64

	// Count is the number of sightings after the first one.
	Count int64
}

// Entry pairs a candidate with its [Observation]. Returned by
// [Tracker.Snapshot].
type Entry struct {
	Candidate string
	Observation
}

// Option configures a [Tracker].
type Option func(*Tracker)

// WithHorizon sets the eviction horizon in frames. Non-positive values are
// ignored.
func WithHorizon(frames int64) Option {
	return func(t *Tracker) {
		if frames > 0 {
			t.horizon = frames
		}
	}
}

// WithThreshold sets the repeat-sighting count required by
// [Tracker.Stable]. Non-positive values are ignored.
func WithThreshold(count int64) Option {
	return func(t *Tracker) {
		if count > 0 {
			t.threshold = count
		}
	}
}

// Tracker is the per-session voting ledger.
type Tracker struct {
	horizon   int64
	threshold int64

	frameIndex int64
	seen       map[string]*Observation
	// order holds ledger keys in insertion order so the best-candidate scan
	// is deterministic.
	order []string

	bestCount  int64
	bestString string
}

// New returns an empty Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		horizon:   DefaultHorizon,
		threshold: DefaultThreshold,
		seen:      make(map[string]*Observation),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Observe records one frame worth of candidates. Repeated strings within the
// same call count as one sighting. The frame index advances by exactly one
// even when candidates is empty.
func (t *Tracker) Observe(candidates []string) {
	for _, c := range candidates {
		obs, ok := t.seen[c]
		if !ok {
			obs = &Observation{LastSeen: 0, Count: -1}
			t.seen[c] = obs
			t.order = append(t.order, c)
		} else if obs.LastSeen == t.frameIndex {
			// Already counted in this frame.
			continue
		}
		obs.LastSeen = t.frameIndex
		obs.Count++
	}

	// Single scan: mark stale entries and pick the best among the rest.
	kept := t.order[:0]
	for _, c := range t.order {
		obs := t.seen[c]
		if obs.LastSeen < t.frameIndex-t.horizon {
			delete(t.seen, c)
			continue
		}
		kept = append(kept, c)
		if obs.Count > t.bestCount {
			t.bestCount = obs.Count
			t.bestString = c
		}
	}
	clear(t.order[len(kept):])
	t.order = kept

	t.frameIndex++
}

// Stable returns the best candidate once its repeat count has reached the
// threshold.
func (t *Tracker) Stable() (string, bool) {
	if t.bestCount >= t.threshold {
		return t.bestString, true
	}
	return "", false
}

// Best returns the current best candidate and its repeat count, whether or
// not it has reached the threshold.
func (t *Tracker) Best() (string, int64) {
	return t.bestString, t.bestCount
}

// Reset forgets candidate and clears the best-candidate tracking. The frame
// index and every other ledger entry are left untouched. Used when a
// reported result was rejected and scanning should continue.
func (t *Tracker) Reset(candidate string) {
	if _, ok := t.seen[candidate]; ok {
		delete(t.seen, candidate)
		for i, c := range t.order {
			if c == candidate {
				t.order = append(t.order[:i], t.order[i+1:]...)
				break
			}
		}
	}
	t.bestCount = 0
	t.bestString = ""
}

// FrameIndex returns the index the next observed frame will get.
func (t *Tracker) FrameIndex() int64 {
	return t.frameIndex
}

// Threshold returns the configured repeat-sighting threshold.
func (t *Tracker) Threshold() int64 {
	return t.threshold
}

// Len returns the number of ledger entries.
func (t *Tracker) Len() int {
	return len(t.seen)
}

// Lookup returns the ledger entry for candidate.
func (t *Tracker) Lookup(candidate string) (Observation, bool) {
	obs, ok := t.seen[candidate]
	if !ok {
		return Observation{}, false
	}
	return *obs, true
}

// Snapshot returns a copy of the ledger in insertion order.
func (t *Tracker) Snapshot() []Entry {
	out := make([]Entry, 0, len(t.order))
	for _, c := range t.order {
		out = append(out, Entry{Candidate: c, Observation: *t.seen[c]})
	}
	return out
}
