package ports

import (
	"context"

	"github.com/fixora/dashboard/internal/domain"
)

// MetricsSource defines the interface for the ticketing backend read side
type MetricsSource interface {
	// Metrics returns the normalized per-level ticket counts
	Metrics(ctx context.Context, params domain.FilterParams) (domain.MetricsSnapshot, error)

	// Ranking returns technicians ordered by score
	Ranking(ctx context.Context, params domain.FilterParams) ([]domain.TechnicianRankingEntry, error)

	// Status returns backend and GLPI availability
	Status(ctx context.Context) (domain.SystemStatus, error)

	// NewTickets returns the most recently opened tickets
	NewTickets(ctx context.Context, params domain.FilterParams) ([]domain.NewTicket, error)
}

// PreferenceStore keeps per-session user preferences
type PreferenceStore interface {
	// Get returns the stored preferences, or the defaults when none were saved
	Get(ctx context.Context, sessionID string) (domain.Preferences, error)

	// Save replaces the stored preferences
	Save(ctx context.Context, sessionID string, prefs domain.Preferences) error

	// Touch records the time of the last user interaction
	Touch(ctx context.Context, sessionID string) error

	// Delete removes everything stored for the session
	Delete(ctx context.Context, sessionID string) error
}
