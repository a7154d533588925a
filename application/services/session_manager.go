package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"knowmap-backend/application/ports"
	"knowmap-backend/domain/services/layout"
	appErrors "knowmap-backend/pkg/errors"
	"knowmap-backend/pkg/observability"
)

// ManagerDeps bundles the collaborators shared by all sessions.
type ManagerDeps struct {
	MapStore    ports.MapStore
	MemoStore   ports.MemoStore
	Suggestions ports.SuggestionService
	NodeFactory ports.NodeFactory
	Temporal    ports.TemporalService
	Activity    ports.ActivityLogger
	Engine      *layout.Engine
	Logger      *zap.Logger
	Metrics     *observability.Collector

	// MainLayout and PreviewLayout override the built-in layout options
	// when set; sessions call them per layout run.
	MainLayout    func() layout.Options
	PreviewLayout func() layout.Options
}

// ManagerConfig tunes session lifecycle behavior.
type ManagerConfig struct {
	AutosaveQuietPeriod time.Duration
	SessionIdleTimeout  time.Duration
	MaxNotifications    int
}

// SessionManager owns the set of live editing sessions. Each session gets
// its own layout adapter so trigger tokens never cross maps.
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	lastTouched map[string]time.Time

	deps ManagerDeps
	cfg  ManagerConfig

	stopReaper chan struct{}
	reaperOnce sync.Once
}

// NewSessionManager creates the manager and starts the idle-session reaper.
func NewSessionManager(deps ManagerDeps, cfg ManagerConfig) *SessionManager {
	if cfg.SessionIdleTimeout <= 0 {
		cfg.SessionIdleTimeout = 30 * time.Minute
	}
	m := &SessionManager{
		sessions:    make(map[string]*Session),
		lastTouched: make(map[string]time.Time),
		deps:        deps,
		cfg:         cfg,
		stopReaper:  make(chan struct{}),
	}
	go m.reapLoop()
	return m
}

// SetAutosaveQuietPeriod updates the quiet period for sessions opened from
// now on; live sessions keep the period they were created with.
func (m *SessionManager) SetAutosaveQuietPeriod(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.cfg.AutosaveQuietPeriod = d
	m.mu.Unlock()
}

// ListMemos lists memos available to the resolved identity.
func (m *SessionManager) ListMemos(ctx context.Context) ([]ports.Memo, error) {
	return m.deps.MemoStore.ListMemos(ctx)
}

// Open starts a session. With a memo id the stored map is hydrated; without
// one the session edits an unsaveable scratch map.
func (m *SessionManager) Open(ctx context.Context, memoID *int64) (*Session, error) {
	var memo *ports.Memo
	if memoID != nil {
		memos, err := m.deps.MemoStore.ListMemos(ctx)
		if err != nil {
			return nil, err
		}
		for i := range memos {
			if memos[i].ID == *memoID {
				memo = &memos[i]
				break
			}
		}
		if memo == nil {
			return nil, appErrors.NewNotFoundError("memo")
		}
	}

	session := m.newSession(memo)
	if err := session.Hydrate(ctx); err != nil {
		return nil, err
	}
	m.register(session)
	return session, nil
}

// OpenWithNewMemo creates a memo from free text and opens a session seeded
// with its generated initial map.
func (m *SessionManager) OpenWithNewMemo(ctx context.Context, content string) (*Session, error) {
	if content == "" {
		return nil, appErrors.NewValidationError("memo content must not be empty")
	}
	memo, nodes, edges, err := m.deps.MemoStore.CreateMemoWithMap(ctx, content)
	if err != nil {
		return nil, err
	}

	session := m.newSession(&memo)
	session.HydrateFrom(nodes, edges)
	m.register(session)
	return session, nil
}

// AttachMemo creates a memo from free text and binds it to an already open
// scratch session, replacing the scratch map with the generated one.
func (m *SessionManager) AttachMemo(ctx context.Context, sessionID, content string) (*Session, error) {
	if content == "" {
		return nil, appErrors.NewValidationError("memo content must not be empty")
	}
	session, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Memo() != nil {
		return nil, appErrors.NewConflictError("session already has a memo")
	}

	memo, nodes, edges, err := m.deps.MemoStore.CreateMemoWithMap(ctx, content)
	if err != nil {
		return nil, err
	}
	if err := session.AdoptMemo(&memo, nodes, edges); err != nil {
		return nil, err
	}
	return session, nil
}

// Get returns a live session and refreshes its idle clock.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, appErrors.NewNotFoundError("session")
	}
	m.lastTouched[id] = time.Now()
	return session, nil
}

// Close flushes and removes a session.
func (m *SessionManager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		delete(m.lastTouched, id)
	}
	m.mu.Unlock()
	if !ok {
		return appErrors.NewNotFoundError("session")
	}

	if m.deps.Metrics != nil {
		m.deps.Metrics.SessionsOpen.Dec()
	}
	return session.Close(ctx)
}

// Shutdown flushes and closes every session.
func (m *SessionManager) Shutdown(ctx context.Context) {
	m.reaperOnce.Do(func() {
		close(m.stopReaper)
	})

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.lastTouched = make(map[string]time.Time)
	m.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(ctx); err != nil {
			m.deps.Logger.Warn("session close during shutdown failed",
				zap.String("session_id", s.ID()),
				zap.Error(err))
		}
		if m.deps.Metrics != nil {
			m.deps.Metrics.SessionsOpen.Dec()
		}
	}
}

func (m *SessionManager) newSession(memo *ports.Memo) *Session {
	m.mu.RLock()
	quiet := m.cfg.AutosaveQuietPeriod
	maxNotifications := m.cfg.MaxNotifications
	m.mu.RUnlock()

	deps := Dependencies{
		MapStore:    m.deps.MapStore,
		Suggestions: m.deps.Suggestions,
		NodeFactory: m.deps.NodeFactory,
		Temporal:    m.deps.Temporal,
		Activity:    m.deps.Activity,
		Layout:      NewLayoutAdapter(m.deps.Engine, m.deps.Logger, m.deps.Metrics),
		Logger:      m.deps.Logger,
		Metrics:     m.deps.Metrics,

		MainLayout:    m.deps.MainLayout,
		PreviewLayout: m.deps.PreviewLayout,
	}
	return NewSession(uuid.NewString(), memo, deps, Options{
		AutosaveQuietPeriod: quiet,
		MaxNotifications:    maxNotifications,
	})
}

func (m *SessionManager) register(session *Session) {
	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.lastTouched[session.ID()] = time.Now()
	m.mu.Unlock()

	if m.deps.Metrics != nil {
		m.deps.Metrics.SessionsOpen.Inc()
	}
	m.deps.Logger.Info("session opened",
		zap.String("session_id", session.ID()),
		zap.Bool("has_memo", session.Memo() != nil))
}

func (m *SessionManager) reapLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopReaper:
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

func (m *SessionManager) reapIdle() {
	cutoff := time.Now().Add(-m.cfg.SessionIdleTimeout)

	m.mu.Lock()
	var idle []*Session
	for id, touched := range m.lastTouched {
		if touched.Before(cutoff) {
			if s, ok := m.sessions[id]; ok {
				idle = append(idle, s)
				delete(m.sessions, id)
			}
			delete(m.lastTouched, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := s.Close(ctx); err != nil {
			m.deps.Logger.Warn("idle session close failed",
				zap.String("session_id", s.ID()),
				zap.Error(err))
		}
		cancel()
		if m.deps.Metrics != nil {
			m.deps.Metrics.SessionsOpen.Dec()
		}
		m.deps.Logger.Info("idle session reaped", zap.String("session_id", s.ID()))
	}
}
