// Package config provides the configuration schema, loader, and recognizer
// registry for the phonescan server.
package config

import (
	"github.com/MrWong99/phonescan/internal/scan"
	"github.com/MrWong99/phonescan/internal/stabilize"
)

// LogLevel controls log verbosity for the phonescan server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// ResultsDriver selects the backing store for stable results.
type ResultsDriver string

const (
	// DriverMemory keeps results in process memory. Nothing survives a restart.
	DriverMemory ResultsDriver = "memory"

	// DriverPostgres stores results in PostgreSQL.
	DriverPostgres ResultsDriver = "postgres"

	// DriverSQLite stores results in a local SQLite file.
	DriverSQLite ResultsDriver = "sqlite"
)

// IsValid reports whether d is a recognised results driver.
func (d ResultsDriver) IsValid() bool {
	switch d {
	case DriverMemory, DriverPostgres, DriverSQLite:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr    = ":8080"
	DefaultMaxSessions   = 64
	DefaultProgressEvery = 5
	DefaultServiceName   = "phonescan"
)

// Config is the root configuration structure for phonescan.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Stabilizer StabilizerConfig `yaml:"stabilizer"`
	Scan       ScanConfig       `yaml:"scan"`
	Results    ResultsConfig    `yaml:"results"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProviderEntry is the configuration block of a single recognizer.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered recognizer implementation (e.g., "tesseract").
	Name string `yaml:"name"`

	// APIKey is the authentication key for remote recognizers.
	APIKey string `yaml:"api_key"`

	// BaseURL is the endpoint of remote recognizers.
	BaseURL string `yaml:"base_url"`

	// Model selects a model or language pack within the recognizer.
	Model string `yaml:"model"`

	// Options holds recognizer-specific values not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options"`
}

// RecognizerConfig is the primary recognizer plus ordered fallbacks. Images
// sent over the stream endpoint go to the primary first; each entry is
// guarded by its own circuit breaker.
type RecognizerConfig struct {
	ProviderEntry `yaml:",inline"`

	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// Enabled reports whether a recognizer is configured. Without one the
// server only accepts pre-recognized text frames.
func (r RecognizerConfig) Enabled() bool { return r.Name != "" }

// StabilizerConfig tunes the voting tracker.
type StabilizerConfig struct {
	// HorizonFrames is how long a candidate may go unseen before eviction.
	HorizonFrames int64 `yaml:"horizon_frames"`

	// Threshold is the repeat-sighting count needed for a result.
	Threshold int64 `yaml:"threshold"`
}

// ScanConfig controls per-session behaviour.
type ScanConfig struct {
	// NormalizeUnicode applies NFKC before extraction. Defaults to true.
	NormalizeUnicode *bool `yaml:"normalize_unicode"`

	// ContinueAfterResult keeps sessions scanning after a result.
	ContinueAfterResult bool `yaml:"continue_after_result"`

	// MaxSessions caps concurrently open stream sessions.
	MaxSessions int `yaml:"max_sessions"`

	// ProgressEvery sends a progress message every n frames. Zero disables
	// progress messages.
	ProgressEvery int `yaml:"progress_every"`
}

// ResultsConfig selects where stable results are persisted.
type ResultsConfig struct {
	Driver ResultsDriver `yaml:"driver"`

	// DSN is the connection string for postgres or the file path for sqlite.
	DSN string `yaml:"dsn"`
}

// TelemetryConfig names the service in exported telemetry.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`

	// TraceSampleRatio is the share of new traces sampled. 0 samples all.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Stabilizer.HorizonFrames == 0 {
		cfg.Stabilizer.HorizonFrames = stabilize.DefaultHorizon
	}
	if cfg.Stabilizer.Threshold == 0 {
		cfg.Stabilizer.Threshold = stabilize.DefaultThreshold
	}
	if cfg.Scan.NormalizeUnicode == nil {
		normalize := true
		cfg.Scan.NormalizeUnicode = &normalize
	}
	if cfg.Scan.MaxSessions == 0 {
		cfg.Scan.MaxSessions = DefaultMaxSessions
	}
	if cfg.Results.Driver == "" {
		cfg.Results.Driver = DriverMemory
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// ScanSettings converts the stabilizer and scan sections into session
// settings. Unset values fall back to [scan.DefaultSettings].
func (c *Config) ScanSettings() scan.Settings {
	s := scan.DefaultSettings()
	if c.Stabilizer.HorizonFrames > 0 {
		s.Horizon = c.Stabilizer.HorizonFrames
	}
	if c.Stabilizer.Threshold > 0 {
		s.Threshold = c.Stabilizer.Threshold
	}
	if c.Scan.NormalizeUnicode != nil {
		s.NormalizeUnicode = *c.Scan.NormalizeUnicode
	}
	s.ContinueAfterResult = c.Scan.ContinueAfterResult
	return s
}
