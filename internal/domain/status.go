package domain

import "time"

// Health values reported by the backend status endpoint
const (
	HealthOnline   = "online"
	HealthDegraded = "degraded"
	HealthOffline  = "offline"
	HealthUnknown  = "unknown"
)

// SystemStatus describes the backend and GLPI availability
type SystemStatus struct {
	Status     string    `json:"status"`
	APIStatus  string    `json:"api_status"`
	GLPIStatus string    `json:"glpi_status"`
	Version    string    `json:"version,omitempty"`
	LastUpdate time.Time `json:"last_update"`
}

// UnknownStatus is served when the status endpoint cannot be read
func UnknownStatus() SystemStatus {
	return SystemStatus{
		Status:     HealthUnknown,
		APIStatus:  HealthOffline,
		GLPIStatus: HealthUnknown,
	}
}

// IsOnline reports whether both the API and GLPI are reachable
func (s SystemStatus) IsOnline() bool {
	return s.APIStatus == HealthOnline && s.GLPIStatus == HealthOnline
}

// Preferences are the per-session user settings kept alongside a dashboard session
type Preferences struct {
	Theme           string    `json:"theme"`
	AutoRefresh     bool      `json:"auto_refresh"`
	LastInteraction time.Time `json:"last_interaction"`
}

// DefaultPreferences returns light theme with auto refresh on
func DefaultPreferences() Preferences {
	return Preferences{Theme: "light", AutoRefresh: true}
}
