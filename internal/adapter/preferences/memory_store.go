package preferences

import (
	"context"
	"sync"
	"time"

	"github.com/fixora/dashboard/internal/domain"
)

// MemoryStore keeps preferences in process memory. Entries live as long as the process.
type MemoryStore struct {
	mu    sync.RWMutex
	prefs map[string]domain.Preferences
	now   func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prefs: make(map[string]domain.Preferences),
		now:   time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) (domain.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.prefs[sessionID]; ok {
		return p, nil
	}
	return domain.DefaultPreferences(), nil
}

func (s *MemoryStore) Save(ctx context.Context, sessionID string, prefs domain.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prefs.LastInteraction.IsZero() {
		prefs.LastInteraction = s.prefs[sessionID].LastInteraction
	}
	s.prefs[sessionID] = prefs
	return nil
}

func (s *MemoryStore) Touch(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prefs[sessionID]
	if !ok {
		p = domain.DefaultPreferences()
	}
	p.LastInteraction = s.now()
	s.prefs[sessionID] = p
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prefs, sessionID)
	return nil
}

// Len returns the number of stored sessions
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.prefs)
}
