package session

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Manager owns at most one session at a time.
type Manager struct {
	mu      sync.Mutex
	current *Session
	Logger  *zap.Logger
}

// Start ends the current session, if any, and starts a new one. A failure
// to end the previous session is logged and does not prevent the new one
// from starting.
func (m *Manager) Start(ctx context.Context, cfg Config) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		if err := m.current.Close(ctx); err != nil && m.Logger != nil {
			m.Logger.Error("failed to end previous session", zap.Error(err))
		}
		m.current = nil
	}

	if cfg.Logger == nil {
		cfg.Logger = m.Logger
	}
	s, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	m.current = s
	return s, nil
}

// Current returns the active session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// End closes the active session.
func (m *Manager) End(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	err := m.current.Close(ctx)
	m.current = nil
	return err
}
