package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/phonescan/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
stabilizer:
  threshold: 10
results:
  driver: memory
`

const watcherUpdatedYAML = `
server:
  log_level: debug
stabilizer:
  threshold: 6
results:
  driver: memory
`

// Same effective config as watcherValidYAML, different bytes.
const watcherCommentedYAML = `
# tuned for the storefront camera
results:
  driver: memory
stabilizer:
  threshold: 10
server:
  log_level: info
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// changeRecorder collects onChange calls.
type changeRecorder struct {
	mu    sync.Mutex
	calls [][2]*config.Config
	fired chan struct{}
}

func newChangeRecorder() *changeRecorder {
	return &changeRecorder{fired: make(chan struct{}, 8)}
}

func (r *changeRecorder) onChange(old, new *config.Config) {
	r.mu.Lock()
	r.calls = append(r.calls, [2]*config.Config{old, new})
	r.mu.Unlock()
	r.fired <- struct{}{}
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// newManualWatcher returns a watcher that effectively only reloads when
// Reload is called.
func newManualWatcher(t *testing.T, content string, rec *changeRecorder) (*config.Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, content)

	var cb func(old, new *config.Config)
	if rec != nil {
		cb = rec.onChange
	}
	w, err := config.NewWatcher(path, cb, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, path
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, _ := newManualWatcher(t, watcherValidYAML, nil)

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Stabilizer.HorizonFrames != 30 {
		t.Errorf("defaults not applied: horizon_frames = %d", cfg.Stabilizer.HorizonFrames)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/path.yaml", nil); err == nil {
		t.Fatal("expected error for non-existent file")
	}
}

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		next        string
		wantFired   bool
		wantErr     bool
		wantLevel   config.LogLevel
		wantPayload func(t *testing.T, old, new *config.Config)
	}{
		{
			name:      "effective change",
			next:      watcherUpdatedYAML,
			wantFired: true,
			wantLevel: config.LogDebug,
			wantPayload: func(t *testing.T, old, new *config.Config) {
				d := config.Diff(old, new)
				if !d.LogLevelChanged || !d.SettingsChanged {
					t.Errorf("diff = %+v, want log level and settings changes", d)
				}
				if new.Stabilizer.Threshold != 6 {
					t.Errorf("new threshold = %d, want 6", new.Stabilizer.Threshold)
				}
			},
		},
		{
			name:      "same bytes",
			next:      watcherValidYAML,
			wantLevel: config.LogInfo,
		},
		{
			name:      "comments and key order only",
			next:      watcherCommentedYAML,
			wantLevel: config.LogInfo,
		},
		{
			name:      "invalid file keeps old config",
			next:      watcherInvalidYAML,
			wantErr:   true,
			wantLevel: config.LogInfo,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := newChangeRecorder()
			w, path := newManualWatcher(t, watcherValidYAML, rec)

			writeFile(t, path, tt.next)
			fired, err := w.Reload()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Reload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if fired != tt.wantFired {
				t.Errorf("Reload() fired = %v, want %v", fired, tt.wantFired)
			}
			wantCalls := 0
			if tt.wantFired {
				wantCalls = 1
			}
			if got := rec.count(); got != wantCalls {
				t.Fatalf("callback calls = %d, want %d", got, wantCalls)
			}
			if got := w.Current().Server.LogLevel; got != tt.wantLevel {
				t.Errorf("Current() log_level = %q, want %q", got, tt.wantLevel)
			}
			if tt.wantPayload != nil {
				tt.wantPayload(t, rec.calls[0][0], rec.calls[0][1])
			}
		})
	}
}

func TestWatcher_ReloadAfterNoEffectEdit(t *testing.T) {
	t.Parallel()
	rec := newChangeRecorder()
	w, path := newManualWatcher(t, watcherValidYAML, rec)

	writeFile(t, path, watcherCommentedYAML)
	if fired, _ := w.Reload(); fired {
		t.Fatal("comment-only edit fired the callback")
	}
	writeFile(t, path, watcherUpdatedYAML)
	if fired, err := w.Reload(); err != nil || !fired {
		t.Fatalf("Reload() = %v, %v; want fired", fired, err)
	}
	old := rec.calls[0][0]
	if old.Server.LogLevel != config.LogInfo {
		t.Errorf("old log_level = %q, want info", old.Server.LogLevel)
	}
}

func TestWatcher_CallbackMayReadCurrent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)

	var w *config.Watcher
	var seen config.LogLevel
	w, err := config.NewWatcher(path, func(_, _ *config.Config) {
		seen = w.Current().Server.LogLevel
	}, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeFile(t, path, watcherUpdatedYAML)
	if _, err := w.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if seen != config.LogDebug {
		t.Errorf("Current() inside callback = %q, want debug", seen)
	}
}

func TestWatcher_PollsForChanges(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)

	rec := newChangeRecorder()
	w, err := config.NewWatcher(path, rec.onChange, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Move the mtime forward explicitly; some filesystems have coarse
	// timestamps.
	writeFile(t, path, watcherUpdatedYAML)
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked within timeout")
	}
	if got := w.Current().Stabilizer.Threshold; got != 6 {
		t.Errorf("Current() threshold = %d, want 6", got)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)

	w, err := config.NewWatcher(path, nil, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Stop()
	w.Stop()
	w.Stop()
}
