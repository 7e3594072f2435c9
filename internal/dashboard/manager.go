package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fixora/dashboard/internal/coordinator"
	"github.com/fixora/dashboard/internal/domain"
	"github.com/fixora/dashboard/internal/logger"
	"github.com/fixora/dashboard/internal/ports"
)

// ManagerConfig tunes the session registry
type ManagerConfig struct {
	Session     Config
	IdleTTL     time.Duration
	ReapEvery   time.Duration
	MaxSessions int
}

// Manager owns the mounted sessions of the process
type Manager struct {
	cfg    ManagerConfig
	loader Loader
	coord  *coordinator.Coordinator
	prefs  ports.PreferenceStore
	log    logger.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	reaper   *Task
}

// NewManager creates a new session manager
func NewManager(cfg ManagerConfig, loader Loader, coord *coordinator.Coordinator, prefs ports.PreferenceStore, log logger.Logger) *Manager {
	if coord == nil {
		coord = coordinator.New()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	m := &Manager{
		cfg:      cfg,
		loader:   loader,
		coord:    coord,
		prefs:    prefs,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	m.reaper = NewTask(cfg.ReapEvery, m.reap)
	return m
}

// Start runs the idle session reaper
func (m *Manager) Start(ctx context.Context) {
	if m.cfg.IdleTTL > 0 {
		m.reaper.Start(ctx)
	}
}

// Create mounts a new session. Empty date filters default to the configured recent range.
func (m *Manager) Create(ctx context.Context, filters domain.FilterParams, prefs *domain.Preferences) (*Session, State, error) {
	if filters.StartDate == "" && filters.EndDate == "" && m.cfg.Session.DefaultRangeDays > 0 {
		filters = filters.WithDateRange(domain.LastDays(m.now(), m.cfg.Session.DefaultRangeDays))
	}
	if err := filters.Validate(); err != nil {
		return nil, State{}, domain.ErrInvalidRequest(err.Error(), err)
	}

	m.mu.Lock()
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, State{}, domain.ErrInvalidRequest("too many dashboard sessions", nil)
	}
	id := uuid.NewString()
	s := NewSession(id, m.cfg.Session, filters, m.loader, m.coord, m.prefs, m.log)
	m.sessions[id] = s
	m.mu.Unlock()

	if prefs != nil && m.prefs != nil {
		if err := m.prefs.Save(ctx, id, *prefs); err != nil {
			m.log.Warn(ctx, "Failed to store initial preferences", map[string]interface{}{
				"session_id": id,
				"error":      err.Error(),
			})
		}
	}

	st, err := s.Start(ctx)
	if err != nil {
		_ = m.Remove(ctx, id)
		return nil, State{}, err
	}
	if prefs != nil && m.prefs == nil {
		st, _ = s.SetPreferences(ctx, *prefs)
	}

	m.log.Info(ctx, "Dashboard session created", map[string]interface{}{
		"session_id": id,
		"filters":    filters.CacheKey(),
		"status":     string(st.Status),
	})
	return s, st, nil
}

// Get returns a mounted session
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound(id)
	}
	s.touch()
	return s, nil
}

// Remove unmounts a session and forgets its stored preferences
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound(id)
	}

	s.Stop()
	if m.prefs != nil {
		if err := m.prefs.Delete(ctx, id); err != nil {
			m.log.Warn(ctx, "Failed to delete stored preferences", map[string]interface{}{
				"session_id": id,
				"error":      err.Error(),
			})
		}
	}
	m.log.Info(ctx, "Dashboard session removed", map[string]interface{}{"session_id": id})
	return nil
}

// Len returns the number of mounted sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown stops the reaper and every session
func (m *Manager) Shutdown() {
	m.reaper.Stop()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}

func (m *Manager) reap(ctx context.Context) {
	cutoff := m.now().Add(-m.cfg.IdleTTL)

	m.mu.RLock()
	var idle []string
	for id, s := range m.sessions {
		if since, ok := s.idleSince(); ok && since.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range idle {
		// stored preferences expire on their own
		m.mu.Lock()
		s, ok := m.sessions[id]
		delete(m.sessions, id)
		m.mu.Unlock()
		if ok {
			s.Stop()
		}
	}
	if len(idle) > 0 {
		m.log.Info(ctx, "Reaped idle dashboard sessions", map[string]interface{}{"count": len(idle)})
	}
}
