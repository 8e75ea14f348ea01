package inference

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"go_upscaler/logging"
)

// SessionManager owns at most one live session: the one for the currently
// selected model. Selecting a different model releases the old session
// before the new one is handed out, so native resources never accumulate.
//
// The manager itself is safe for concurrent use, but callers must not
// switch models while inference calls on the previous session are still
// in flight; the pipeline guarantees this by switching only between files.
type SessionManager struct {
	backend Backend
	log     *logging.Logger

	mu       sync.Mutex
	active   Session
	activeID string
	closed   bool
}

// NewSessionManager creates a manager on top of a backend.
// log may be nil.
func NewSessionManager(backend Backend, log *logging.Logger) *SessionManager {
	if log == nil {
		log = logging.NewTestLogger()
	}
	return &SessionManager{backend: backend, log: log}
}

// Use returns a session for modelID, loading the model at path on first
// use. If a session for a different model is active it is released first.
// Repeated calls for the same model reuse the live session.
func (m *SessionManager) Use(ctx context.Context, modelID, path string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("%w: manager closed", ErrSessionClosed)
	}
	if m.active != nil && m.activeID == modelID {
		return m.active, nil
	}

	if m.active != nil {
		m.log.Debug("releasing inference session",
			zap.String("model_id", m.activeID))
		if err := m.active.Close(); err != nil {
			m.log.Warn("session release failed",
				zap.String("model_id", m.activeID), zap.Error(err))
		}
		m.active = nil
		m.activeID = ""
	}

	m.log.Info("loading inference session",
		zap.String("model_id", modelID),
		zap.String("backend", m.backend.Name()),
		zap.String("path", path))

	sess, err := m.backend.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load model %q: %w", modelID, err)
	}

	m.active = sess
	m.activeID = modelID
	return sess, nil
}

// ActiveModel returns the id of the currently loaded model, or "".
func (m *SessionManager) ActiveModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Release closes the active session, if any. The manager stays usable.
func (m *SessionManager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releaseLocked()
}

// Close releases the active session and marks the manager unusable.
func (m *SessionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.releaseLocked()
	m.closed = true
	return err
}

func (m *SessionManager) releaseLocked() error {
	if m.active == nil {
		return nil
	}
	err := m.active.Close()
	m.active = nil
	m.activeID = ""
	return err
}
