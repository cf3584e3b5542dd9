package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] polls its file.
const DefaultWatchInterval = 5 * time.Second

// Watcher keeps a config file loaded and reports effective changes. It polls
// the file's mtime; [Watcher.Reload] forces a check, e.g. on SIGHUP.
//
// A file that fails to parse or validate is logged and skipped, so a typo
// never replaces a working config. Edits that do not change anything [Diff]
// tracks, such as comments or reordered keys, update the stored config
// without calling the callback.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	reloadMu sync.Mutex // serialises reloads and callbacks
	mu       sync.Mutex // guards state
	state    fileState

	stop     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

type fileState struct {
	cfg   *Config
	hash  [sha256.Size]byte
	mtime time.Time
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values keep
// [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it. onChange may be nil. It is
// called from the polling goroutine, or from the caller of Reload, and
// never concurrently with itself.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		stop:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	st, err := readState(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.state = st

	go w.poll()
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.cfg
}

// Reload reads the file now, regardless of its mtime. It reports whether the
// callback fired. A file that cannot be loaded returns the error and leaves
// the current config in place.
func (w *Watcher) Reload() (bool, error) {
	return w.reload(true)
}

// Stop ends polling and waits for an in-flight check to finish. Safe to call
// more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.exited
}

func (w *Watcher) poll() {
	defer close(w.exited)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			if _, err := w.reload(false); err != nil {
				slog.Warn("config reload skipped", "path", w.path, "err", err)
			}
		}
	}
}

func (w *Watcher) reload(force bool) (bool, error) {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	w.mu.Lock()
	prev := w.state
	w.mu.Unlock()

	if !force {
		info, err := os.Stat(w.path)
		if err != nil {
			return false, err
		}
		if info.ModTime().Equal(prev.mtime) {
			return false, nil
		}
	}

	st, err := readState(w.path)
	if err != nil {
		return false, err
	}
	if st.hash == prev.hash {
		st.cfg = prev.cfg
	}

	w.mu.Lock()
	w.state = st
	w.mu.Unlock()

	if st.hash == prev.hash {
		return false, nil
	}
	d := Diff(prev.cfg, st.cfg)
	if !d.Changed() {
		slog.Debug("config file changed without effect", "path", w.path)
		return false, nil
	}

	slog.Info("configuration reloaded",
		"path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"settings_changed", d.SettingsChanged,
		"restart_required", d.RestartRequired,
	)
	if w.onChange != nil {
		w.onChange(prev.cfg, st.cfg)
	}
	return true, nil
}

func readState(path string) (fileState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileState{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return fileState{}, err
	}
	return fileState{cfg: cfg, hash: sha256.Sum256(data), mtime: info.ModTime()}, nil
}
