package captp

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dantte-lp/gocaptp/internal/locator"
)

// MetricsReporter receives session lifecycle events from a Manager. The
// captpmetrics.Collector type satisfies this interface; tests and callers
// that don't need Prometheus wiring can leave it unset.
type MetricsReporter interface {
	RegisterSession(designator, transport string)
	UnregisterSession(designator, transport string)
	IncAborts(designator string)
}

// noopMetrics is the default MetricsReporter when none is configured.
type noopMetrics struct{}

func (noopMetrics) RegisterSession(string, string)   {}
func (noopMetrics) UnregisterSession(string, string) {}
func (noopMetrics) IncAborts(string)                 {}

// ManagerOption customizes a Manager at construction time.
type ManagerOption func(*Manager)

// WithManagerMetrics attaches mr to the manager, so registrations and
// unregistrations are reflected in mr. The manager never calls
// mr.IncAborts, including for the sessions CloseAll aborts. A nil mr is
// ignored.
func WithManagerMetrics(mr MetricsReporter) ManagerOption {
	return func(m *Manager) {
		if mr != nil {
			m.metrics = mr
		}
	}
}

// Manager keeps the set of live sessions keyed by the peer's designator,
// deduplicating repeated connect attempts to the same peer (mirrors the
// registration bookkeeping pattern used elsewhere in this codebase for
// long-lived peer state).
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
	metrics  MetricsReporter
}

// NewManager constructs an empty session manager.
func NewManager(logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		sessions: make(map[string]*Session),
		logger:   logger.With(slog.String("component", "captp.manager")),
		metrics:  noopMetrics{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register installs session under the peer's designator. If a session is
// already registered for that designator, Register closes the new session
// and returns the existing one, so concurrent connect attempts converge on
// a single session (spec §4.4's "sessions are deduplicated per peer"
// expectation).
func (m *Manager) Register(peer locator.NodeLocator, session *Session) *Session {
	key := peer.Designator

	m.mu.Lock()
	if existing, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		m.logger.Debug("dropping duplicate session", slog.String("designator", key))
		_ = session.Close()
		return existing
	}
	m.sessions[key] = session
	m.mu.Unlock()

	m.metrics.RegisterSession(key, session.Transport())
	m.logger.Info("session registered", slog.String("designator", key))
	return session
}

// Lookup returns the session registered under designator, if any.
func (m *Manager) Lookup(designator string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[designator]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSessionForDesignator, designator)
	}
	return session, nil
}

// Unregister removes the session registered under designator, if it is
// still session. A stale Unregister (the session has already been replaced)
// is a no-op.
func (m *Manager) Unregister(designator string, session *Session) {
	m.mu.Lock()
	current, ok := m.sessions[designator]
	if ok && current == session {
		delete(m.sessions, designator)
	}
	m.mu.Unlock()
	if ok && current == session {
		m.metrics.UnregisterSession(designator, session.Transport())
	}
}

// Snapshot returns the designators of all currently registered sessions,
// for diagnostics.
func (m *Manager) Snapshot() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	designators := make([]string, 0, len(m.sessions))
	for d := range m.sessions {
		designators = append(designators, d)
	}
	return designators
}

// CloseAll aborts every registered session with reason and clears the
// manager, for graceful shutdown.
func (m *Manager) CloseAll(reason string) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		m.metrics.UnregisterSession(s.Designator(), s.Transport())
		if err := s.Abort(reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
