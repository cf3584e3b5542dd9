package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// KnownRecognizers lists the recognizer names shipped with phonescan.
// Used by [Validate] to warn about unrecognised names.
var KnownRecognizers = []string{"tesseract", "http"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Recognizer chain
	validateRecognizerName(cfg.Recognizer.Name)
	if !cfg.Recognizer.Enabled() && len(cfg.Recognizer.Fallbacks) > 0 {
		errs = append(errs, errors.New("recognizer.fallbacks requires recognizer.name"))
	}
	namesSeen := map[string]string{}
	if cfg.Recognizer.Name != "" {
		namesSeen[cfg.Recognizer.Name] = "recognizer"
	}
	for i, fb := range cfg.Recognizer.Fallbacks {
		prefix := fmt.Sprintf("recognizer.fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateRecognizerName(fb.Name)
		if prev, ok := namesSeen[fb.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of %s", prefix, fb.Name, prev))
		}
		namesSeen[fb.Name] = prefix
	}
	if cfg.Recognizer.Name == "http" && cfg.Recognizer.BaseURL == "" {
		errs = append(errs, errors.New("recognizer.base_url is required for the http recognizer"))
	}

	// Stabilizer
	if cfg.Stabilizer.HorizonFrames < 0 {
		errs = append(errs, fmt.Errorf("stabilizer.horizon_frames %d must not be negative", cfg.Stabilizer.HorizonFrames))
	}
	if cfg.Stabilizer.Threshold < 0 {
		errs = append(errs, fmt.Errorf("stabilizer.threshold %d must not be negative", cfg.Stabilizer.Threshold))
	}
	if cfg.Stabilizer.Threshold > 0 && cfg.Stabilizer.HorizonFrames > 0 && cfg.Stabilizer.Threshold > cfg.Stabilizer.HorizonFrames {
		slog.Warn("stabilizer.threshold exceeds horizon_frames; a candidate missing a single frame near the horizon loses its count",
			"threshold", cfg.Stabilizer.Threshold,
			"horizon_frames", cfg.Stabilizer.HorizonFrames,
		)
	}

	// Scan
	if cfg.Scan.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("scan.max_sessions %d must not be negative", cfg.Scan.MaxSessions))
	}
	if cfg.Scan.ProgressEvery < 0 {
		errs = append(errs, fmt.Errorf("scan.progress_every %d must not be negative", cfg.Scan.ProgressEvery))
	}

	// Results
	if cfg.Results.Driver != "" && !cfg.Results.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("results.driver %q is invalid; valid values: memory, postgres, sqlite", cfg.Results.Driver))
	}
	if (cfg.Results.Driver == DriverPostgres || cfg.Results.Driver == DriverSQLite) && cfg.Results.DSN == "" {
		errs = append(errs, fmt.Errorf("results.dsn is required for driver %q", cfg.Results.Driver))
	}
	if cfg.Results.Driver == DriverMemory && cfg.Results.DSN != "" {
		slog.Warn("results.dsn is ignored by the memory driver")
	}

	// Telemetry
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %g must be between 0 and 1", r))
	}

	return errors.Join(errs...)
}

// validateRecognizerName logs a warning if name is non-empty and not one of
// [KnownRecognizers].
func validateRecognizerName(name string) {
	if name == "" || slices.Contains(KnownRecognizers, name) {
		return
	}
	slog.Warn("unknown recognizer name, may be a typo or a third-party recognizer",
		"name", name,
		"known", KnownRecognizers,
	)
}
