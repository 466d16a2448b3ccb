// Package insight owns the one-injector-per-session lifecycle.
package insight

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager is the factory that hands out single-use session injectors and
// enforces their lifecycle: one injector per session id, flushed and
// discarded at session end. Abandoned sessions are flushed by SweepIdle.
type Manager struct {
	store QueueStore
	now   func() time.Time

	mu       sync.Mutex
	sessions map[string]*Injector
}

// NewManager creates a session manager backed by the given store.
func NewManager(st QueueStore) *Manager {
	slog.Debug("Creating insight session Manager")
	return &Manager{
		store:    st,
		now:      time.Now,
		sessions: make(map[string]*Injector),
	}
}

// StartSession constructs and initializes a fresh injector under a new
// session id. Initialization is non-throwing; a session always starts, at
// worst with zero insights.
func (m *Manager) StartSession(ctx context.Context, userID string) *Injector {
	sessionID := uuid.NewString()
	inj := NewInjector(m.store, userID, sessionID)
	inj.now = m.now
	inj.Initialize(ctx)

	m.mu.Lock()
	m.sessions[sessionID] = inj
	m.mu.Unlock()

	slog.Info("Session started", "userID", userID, "sessionID", sessionID, "insights", len(inj.Insights()))
	return inj
}

// Get returns the live injector for a session id.
func (m *Manager) Get(sessionID string) (*Injector, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inj, ok := m.sessions[sessionID]
	return inj, ok
}

// EndSession flushes and closes a session, removing it from the registry.
// Returns false when the session id is unknown (already ended or never
// started). The injector is removed even when the final flush fails; the
// session is over either way, and the records were best-effort.
func (m *Manager) EndSession(ctx context.Context, sessionID string) bool {
	m.mu.Lock()
	inj, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		slog.Debug("EndSession: unknown session", "sessionID", sessionID)
		return false
	}
	inj.Close(ctx)
	slog.Info("Session ended", "sessionID", sessionID)
	return true
}

// SweepIdle ends every session idle for longer than olderThan, flushing its
// engagement best-effort. Returns the number of sessions swept. Invoked
// periodically from the cron scheduler so abandoned sessions still deliver
// telemetry.
func (m *Manager) SweepIdle(ctx context.Context, olderThan time.Duration) int {
	cutoff := m.now().Add(-olderThan)

	m.mu.Lock()
	var stale []*Injector
	for sessionID, inj := range m.sessions {
		if inj.LastActivity().Before(cutoff) {
			stale = append(stale, inj)
			delete(m.sessions, sessionID)
		}
	}
	m.mu.Unlock()

	for _, inj := range stale {
		inj.Close(ctx)
		slog.Info("Idle session swept", "sessionID", inj.SessionID(), "userID", inj.UserID())
	}
	return len(stale)
}

// ActiveSessions returns the number of live sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
