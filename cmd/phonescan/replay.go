package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/MrWong99/phonescan/internal/config"
	"github.com/MrWong99/phonescan/internal/display"
	"github.com/MrWong99/phonescan/internal/eval"
	"github.com/MrWong99/phonescan/internal/scan"
)

// settingsFlags registers the flags shared by replay and eval. Values given
// on the command line override the config file.
type settingsFlags struct {
	configPath string
	threshold  int64
	horizon    int64
	cont       bool
}

func (s *settingsFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.configPath, "config", "", "optional configuration file to take scan settings from")
	fs.Int64Var(&s.threshold, "threshold", 0, "repeat sightings needed for a result (0 keeps the configured value)")
	fs.Int64Var(&s.horizon, "horizon", 0, "frames a candidate may go unseen (0 keeps the configured value)")
	fs.BoolVar(&s.cont, "continue", false, "keep scanning after the first result")
}

func (s *settingsFlags) settings() (scan.Settings, error) {
	cfg := &config.Config{}
	if s.configPath != "" {
		var err error
		if cfg, err = config.Load(s.configPath); err != nil {
			return scan.Settings{}, err
		}
	} else {
		config.ApplyDefaults(cfg)
	}
	settings := cfg.ScanSettings()
	if s.threshold > 0 {
		settings.Threshold = s.threshold
	}
	if s.horizon > 0 {
		settings.Horizon = s.horizon
	}
	if s.cont {
		settings.ContinueAfterResult = true
	}
	return settings, nil
}

func loadRecordings(paths []string) ([]*scan.Recording, error) {
	recs := make([]*scan.Recording, 0, len(paths))
	for _, p := range paths {
		rec, err := scan.LoadRecording(p)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

type replayOutput struct {
	Name    string              `json:"name"`
	Frames  int64               `json:"frames"`
	Results []display.Formatted `json:"results"`
}

func runReplay(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var sf settingsFlags
	sf.register(fs)
	asJSON := fs.Bool("json", false, "print results as JSON lines")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "phonescan replay: at least one recording is required")
		return 2
	}

	settings, err := sf.settings()
	if err != nil {
		fmt.Fprintf(stderr, "phonescan replay: %v\n", err)
		return 1
	}
	recs, err := loadRecordings(fs.Args())
	if err != nil {
		fmt.Fprintf(stderr, "phonescan replay: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(stdout)
	for _, rec := range recs {
		res, err := scan.Replay(ctx, rec, settings)
		if err != nil {
			fmt.Fprintf(stderr, "phonescan replay: %s: %v\n", rec.Name, err)
			return 1
		}

		if *asJSON {
			out := replayOutput{Name: res.Name, Frames: res.Frames, Results: []display.Formatted{}}
			for _, r := range res.Results {
				out.Results = append(out.Results, display.Format(r.Number))
			}
			if err := enc.Encode(out); err != nil {
				fmt.Fprintf(stderr, "phonescan replay: %v\n", err)
				return 1
			}
			continue
		}

		if len(res.Results) == 0 {
			fmt.Fprintf(stdout, "%s: no number after %d frames\n", res.Name, res.Frames)
			continue
		}
		for _, r := range res.Results {
			f := display.Format(r.Number)
			fmt.Fprintf(stdout, "%s: %s (frame %d, %d sightings)\n", res.Name, f.National, r.Frame, r.Sightings)
		}
	}
	return 0
}

func runEval(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var sf settingsFlags
	sf.register(fs)
	concurrency := fs.Int("concurrency", 0, "recordings replayed at once (0 uses GOMAXPROCS)")
	asJSON := fs.Bool("json", false, "print the summary as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "phonescan eval: at least one recording is required")
		return 2
	}

	settings, err := sf.settings()
	if err != nil {
		fmt.Fprintf(stderr, "phonescan eval: %v\n", err)
		return 1
	}
	recs, err := loadRecordings(fs.Args())
	if err != nil {
		fmt.Fprintf(stderr, "phonescan eval: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sum, err := eval.Run(ctx, recs, settings, eval.WithConcurrency(*concurrency))
	if err != nil {
		fmt.Fprintf(stderr, "phonescan eval: %v\n", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			fmt.Fprintf(stderr, "phonescan eval: %v\n", err)
			return 1
		}
		return 0
	}
	printSummary(stdout, sum)
	return 0
}

func printSummary(w io.Writer, sum eval.Summary) {
	for _, c := range sum.Cases {
		switch {
		case !c.Scored():
			fmt.Fprintf(w, "  ?    %-24s got=%q\n", c.Name, c.Got)
		case c.Exact:
			fmt.Fprintf(w, "  ok   %-24s %s in %d frames\n", c.Name, c.Got, c.FramesToStable)
		case c.Found:
			fmt.Fprintf(w, "  MISS %-24s want=%s got=%s distance=%d\n", c.Name, c.Expected, c.Got, c.Distance)
		default:
			fmt.Fprintf(w, "  MISS %-24s want=%s got nothing in %d frames\n", c.Name, c.Expected, c.Frames)
		}
	}
	fmt.Fprintf(w, "\nscored %d, found %d, exact %d (%.1f%%)\n", sum.Scored, sum.Found, sum.Exact, 100*sum.Accuracy())
	fmt.Fprintf(w, "mean distance %.2f, mean frames to stable %.1f\n", sum.MeanDistance, sum.MeanFramesToStable)
}
