package config

import "reflect"

// ConfigDiff describes what changed between two configs.
//
// Log level and session settings are applied at runtime. Sessions already
// open keep the settings they started with. Everything else needs a
// restart and is only listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SettingsChanged is true if the stabilizer or scan behaviour changed.
	SettingsChanged bool

	MaxSessionsChanged bool
	NewMaxSessions     int

	ProgressEveryChanged bool
	NewProgressEvery     int

	// RestartRequired names the top-level sections that changed but cannot
	// be hot-reloaded.
	RestartRequired []string
}

// Changed reports whether d carries any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.SettingsChanged || d.MaxSessionsChanged ||
		d.ProgressEveryChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.ScanSettings() != new.ScanSettings() {
		d.SettingsChanged = true
	}

	if old.Scan.MaxSessions != new.Scan.MaxSessions {
		d.MaxSessionsChanged = true
		d.NewMaxSessions = new.Scan.MaxSessions
	}
	if old.Scan.ProgressEvery != new.Scan.ProgressEvery {
		d.ProgressEveryChanged = true
		d.NewProgressEvery = new.Scan.ProgressEvery
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Recognizer, new.Recognizer) {
		d.RestartRequired = append(d.RestartRequired, "recognizer")
	}
	if old.Results != new.Results {
		d.RestartRequired = append(d.RestartRequired, "results")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}
