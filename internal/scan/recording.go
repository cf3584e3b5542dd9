package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Recording is a captured stream of recognized text, one entry per frame.
// Recordings are stored as YAML:
//
//	name: storefront
//	expected: "5551234567"
//	frames:
//	  - ["ACME Plumbing", "Call 555-123-4567"]
//	  - []
//	  - ["Call 5S5-l23-4567"]
type Recording struct {
	Name     string     `yaml:"name"`
	Expected string     `yaml:"expected,omitempty"`
	Frames   [][]string `yaml:"frames"`
}

// LoadRecording reads a recording from a YAML file.
func LoadRecording(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scan: open recording: %w", err)
	}
	defer f.Close()

	rec, err := DecodeRecording(f)
	if err != nil {
		return nil, fmt.Errorf("scan: %s: %w", path, err)
	}
	if rec.Name == "" {
		rec.Name = path
	}
	return rec, nil
}

// DecodeRecording parses a YAML recording from r. Unknown keys are errors.
func DecodeRecording(r io.Reader) (*Recording, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var rec Recording
	if err := dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return &rec, nil
		}
		return nil, fmt.Errorf("decode recording: %w", err)
	}
	return &rec, nil
}

// EncodeRecording writes rec as YAML to w.
func EncodeRecording(w io.Writer, rec *Recording) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("scan: encode recording: %w", err)
	}
	return enc.Close()
}

// ReplayResult summarises a replayed recording.
type ReplayResult struct {
	Name string

	// Results holds every stable number reported, in order. With default
	// settings replay stops after the first one.
	Results []Result

	// Frames is the number of frames fed to the session.
	Frames int64
}

// First returns the first result, if any.
func (r ReplayResult) First() (Result, bool) {
	if len(r.Results) == 0 {
		return Result{}, false
	}
	return r.Results[0], true
}

// Replay feeds every frame of rec into a fresh session. It stops early when
// the session finishes or ctx is done.
func Replay(ctx context.Context, rec *Recording, settings Settings, opts ...Option) (ReplayResult, error) {
	s := NewSession(rec.Name, settings, opts...)
	out := ReplayResult{Name: rec.Name}

	for _, texts := range rec.Frames {
		report, err := s.ProcessFrame(ctx, texts)
		if errors.Is(err, ErrFinished) {
			break
		}
		if err != nil {
			out.Frames = s.Frames()
			return out, err
		}
		if report.Result != nil {
			out.Results = append(out.Results, *report.Result)
			if s.Finished() {
				break
			}
		}
	}
	out.Frames = s.Frames()
	return out, nil
}
