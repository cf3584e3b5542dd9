package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/phonescan/internal/observe"
	"github.com/MrWong99/phonescan/internal/results"
	"github.com/MrWong99/phonescan/internal/scan"
)

var (
	// ErrTooManySessions is returned by [SessionManager.Start] when the
	// configured session cap is reached.
	ErrTooManySessions = errors.New("app: too many active sessions")

	// ErrSessionNotFound is returned for unknown or stopped session IDs.
	ErrSessionNotFound = errors.New("app: session not found")
)

// SessionInfo holds metadata about an active session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string `json:"session_id"`

	// Source labels where frames come from (e.g. "stream", "replay").
	Source string `json:"source"`

	// StartedAt is when the session was started.
	StartedAt time.Time `json:"started_at"`

	// Frames is the number of frames processed so far.
	Frames int64 `json:"frames"`

	// Results is the number of stable results reported so far.
	Results int `json:"results"`

	// Finished reports whether the session stopped after a result.
	Finished bool `json:"finished"`
}

type managedSession struct {
	*scan.Session
	source    string
	startedAt time.Time
}

func (m *managedSession) info() SessionInfo {
	return SessionInfo{
		SessionID: m.ID(),
		Source:    m.source,
		StartedAt: m.startedAt,
		Frames:    m.Frames(),
		Results:   len(m.Results()),
		Finished:  m.Finished(),
	}
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	// Store receives every stable result. Nil disables persistence.
	Store results.Store

	// Settings apply to sessions started from now on.
	Settings scan.Settings

	// MaxSessions caps concurrently active sessions. Zero means unlimited.
	MaxSessions int

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// SessionManager owns the set of active scan sessions, keyed by a random
// UUID. All exported methods are safe for concurrent use.
type SessionManager struct {
	store   results.Store
	metrics *observe.Metrics

	mu          sync.Mutex
	sessions    map[string]*managedSession
	settings    scan.Settings
	maxSessions int
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Settings == (scan.Settings{}) {
		cfg.Settings = scan.DefaultSettings()
	}
	return &SessionManager{
		store:       cfg.Store,
		metrics:     cfg.Metrics,
		sessions:    make(map[string]*managedSession),
		settings:    cfg.Settings,
		maxSessions: cfg.MaxSessions,
	}
}

// Start opens a new session with the current settings.
//
// Returns [ErrTooManySessions] if the cap is reached.
func (sm *SessionManager) Start(ctx context.Context, source string) (SessionInfo, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.maxSessions > 0 && len(sm.sessions) >= sm.maxSessions {
		return SessionInfo{}, fmt.Errorf("%w (max %d)", ErrTooManySessions, sm.maxSessions)
	}

	id := uuid.NewString()
	ms := &managedSession{
		Session:   scan.NewSession(id, sm.settings, scan.WithMetrics(sm.metrics)),
		source:    source,
		startedAt: time.Now().UTC(),
	}
	sm.sessions[id] = ms
	sm.metrics.ActiveSessions.Add(ctx, 1)

	observe.Logger(observe.WithSessionID(ctx, id)).Info("scan session started",
		"source", source,
		"horizon", sm.settings.Horizon,
		"threshold", sm.settings.Threshold,
	)
	return ms.info(), nil
}

// Stop closes the session. Results already persisted are kept.
func (sm *SessionManager) Stop(ctx context.Context, id string) error {
	sm.mu.Lock()
	ms, ok := sm.sessions[id]
	if ok {
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sm.metrics.ActiveSessions.Add(ctx, -1)
	observe.Logger(observe.WithSessionID(ctx, id)).Info("scan session stopped",
		"frames", ms.Frames(),
		"results", len(ms.Results()),
	)
	return nil
}

// StopAll closes every active session. Used during shutdown.
func (sm *SessionManager) StopAll(ctx context.Context) {
	sm.mu.Lock()
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sm.mu.Unlock()

	for _, id := range ids {
		_ = sm.Stop(ctx, id)
	}
}

// ProcessFrame feeds texts to the session. A result that becomes stable is
// persisted before the report is returned. A failed save is logged; the
// result is still reported to the caller.
func (sm *SessionManager) ProcessFrame(ctx context.Context, id string, texts []string) (scan.FrameReport, error) {
	ms, err := sm.get(id)
	if err != nil {
		return scan.FrameReport{}, err
	}
	ctx = observe.WithSessionID(ctx, id)

	report, err := ms.ProcessFrame(ctx, texts)
	if err != nil {
		return report, err
	}
	if report.Result != nil && sm.store != nil {
		rec := results.NewRecord(id, ms.source, *report.Result)
		if err := sm.store.Save(ctx, rec); err != nil {
			observe.Logger(ctx).Error("failed to save result", "err", err)
		}
	}
	return report, nil
}

// Reject tells the session that number was misread and reopens it.
func (sm *SessionManager) Reject(ctx context.Context, id, number string) error {
	ms, err := sm.get(id)
	if err != nil {
		return err
	}
	ms.Reject(ctx, number)
	return nil
}

// Resume reopens a finished session.
func (sm *SessionManager) Resume(id string) error {
	ms, err := sm.get(id)
	if err != nil {
		return err
	}
	ms.Resume()
	return nil
}

// Info returns metadata about one session.
func (sm *SessionManager) Info(id string) (SessionInfo, error) {
	ms, err := sm.get(id)
	if err != nil {
		return SessionInfo{}, err
	}
	return ms.info(), nil
}

// Active returns metadata about all active sessions.
func (sm *SessionManager) Active() []SessionInfo {
	sm.mu.Lock()
	list := make([]*managedSession, 0, len(sm.sessions))
	for _, ms := range sm.sessions {
		list = append(list, ms)
	}
	sm.mu.Unlock()

	out := make([]SessionInfo, 0, len(list))
	for _, ms := range list {
		out = append(out, ms.info())
	}
	return out
}

// Len returns the number of active sessions.
func (sm *SessionManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// Settings returns the settings new sessions start with.
func (sm *SessionManager) Settings() scan.Settings {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.settings
}

// UpdateSettings swaps the settings for sessions started from now on.
// Active sessions keep theirs.
func (sm *SessionManager) UpdateSettings(s scan.Settings) {
	sm.mu.Lock()
	sm.settings = s
	active := len(sm.sessions)
	sm.mu.Unlock()

	slog.Info("scan settings updated",
		"horizon", s.Horizon,
		"threshold", s.Threshold,
		"normalize_unicode", s.NormalizeUnicode,
		"continue_after_result", s.ContinueAfterResult,
		"active_sessions_unchanged", active,
	)
}

// SetMaxSessions changes the session cap. Sessions above a lowered cap are
// not closed; new ones are refused until enough have stopped.
func (sm *SessionManager) SetMaxSessions(n int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.maxSessions = n
}

func (sm *SessionManager) get(id string) (*managedSession, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	ms, ok := sm.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return ms, nil
}
