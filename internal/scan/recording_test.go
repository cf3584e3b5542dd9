package scan_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/phonescan/internal/scan"
)

const storefront = `
name: storefront
expected: "5551234567"
frames:
  - ["ACME Plumbing", "Call 555-123-4567"]
  - []
  - ["call 5S5-l23-4567"]
  - ["Call 555-123-4567"]
`

// repeatFrames returns a recording with frame repeated n times.
func repeatFrames(frame []string, n int) *scan.Recording {
	rec := &scan.Recording{Name: "repeat"}
	for i := 0; i < n; i++ {
		rec.Frames = append(rec.Frames, frame)
	}
	return rec
}

func TestDecodeRecording(t *testing.T) {
	t.Parallel()

	rec, err := scan.DecodeRecording(strings.NewReader(storefront))
	if err != nil {
		t.Fatalf("DecodeRecording: %v", err)
	}
	if rec.Name != "storefront" || rec.Expected != "5551234567" {
		t.Errorf("rec = %+v", rec)
	}
	if len(rec.Frames) != 4 {
		t.Fatalf("len(Frames) = %d, want 4", len(rec.Frames))
	}
	if len(rec.Frames[1]) != 0 {
		t.Errorf("Frames[1] = %q, want empty", rec.Frames[1])
	}
}

func TestDecodeRecording_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := scan.DecodeRecording(strings.NewReader("name: x\nfps: 30\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestRecording_RoundTripFile(t *testing.T) {
	t.Parallel()

	rec := &scan.Recording{Expected: "5551234567", Frames: [][]string{{"a"}, {}}}
	var buf bytes.Buffer
	if err := scan.EncodeRecording(&buf, rec); err != nil {
		t.Fatalf("EncodeRecording: %v", err)
	}

	path := filepath.Join(t.TempDir(), "rec.yaml")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := scan.LoadRecording(path)
	if err != nil {
		t.Fatalf("LoadRecording: %v", err)
	}
	if got.Name != path {
		t.Errorf("Name = %q, want file path for unnamed recording", got.Name)
	}
	if got.Expected != rec.Expected || len(got.Frames) != 2 {
		t.Errorf("got = %+v", got)
	}
}

func TestReplay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		rec        *scan.Recording
		settings   func(*scan.Settings)
		wantNumber string
		wantFrames int64
		wantCount  int
	}{
		{
			name:       "stable after eleven frames",
			rec:        repeatFrames([]string{"Call 555-123-4567"}, 20),
			wantNumber: "5551234567",
			wantFrames: 11,
			wantCount:  1,
		},
		{
			name:       "ten frames are not enough",
			rec:        repeatFrames([]string{"Call 555-123-4567"}, 10),
			wantFrames: 10,
		},
		{
			name:       "continue after result",
			rec:        repeatFrames([]string{"555-123-4567"}, 22),
			settings:   func(s *scan.Settings) { s.ContinueAfterResult = true },
			wantNumber: "5551234567",
			wantFrames: 22,
			wantCount:  2,
		},
		{
			name:       "noise only",
			rec:        repeatFrames([]string{"OPEN 24 HOURS"}, 40),
			wantFrames: 40,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			settings := scan.DefaultSettings()
			if tc.settings != nil {
				tc.settings(&settings)
			}

			res, err := scan.Replay(context.Background(), tc.rec, settings)
			if err != nil {
				t.Fatalf("Replay: %v", err)
			}
			if res.Frames != tc.wantFrames {
				t.Errorf("Frames = %d, want %d", res.Frames, tc.wantFrames)
			}
			if len(res.Results) != tc.wantCount {
				t.Errorf("len(Results) = %d, want %d", len(res.Results), tc.wantCount)
			}
			first, ok := res.First()
			if ok != (tc.wantNumber != "") {
				t.Fatalf("First() ok = %v", ok)
			}
			if ok && first.Number != tc.wantNumber {
				t.Errorf("Number = %q, want %q", first.Number, tc.wantNumber)
			}
		})
	}
}

func TestReplay_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := scan.Replay(ctx, repeatFrames(nil, 3), scan.DefaultSettings())
	if err == nil {
		t.Fatal("expected context error")
	}
}
