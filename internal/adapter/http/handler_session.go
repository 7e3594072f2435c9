package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fixora/dashboard/internal/dashboard"
	"github.com/fixora/dashboard/internal/domain"
)

// SessionHandler handles HTTP requests for dashboard sessions
type SessionHandler struct {
	manager  *dashboard.Manager
	streamer *Streamer
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(manager *dashboard.Manager, streamer *Streamer) *SessionHandler {
	return &SessionHandler{
		manager:  manager,
		streamer: streamer,
	}
}

// RegisterRoutes registers session routes
func (h *SessionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	router.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	router.HandleFunc("/sessions/{id}", h.DeleteSession).Methods("DELETE")
	router.HandleFunc("/sessions/{id}/filters", h.UpdateFilters).Methods("PUT")
	router.HandleFunc("/sessions/{id}/date-range", h.UpdateDateRange).Methods("PUT")
	router.HandleFunc("/sessions/{id}/preferences", h.UpdatePreferences).Methods("PUT")
	router.HandleFunc("/sessions/{id}/refresh", h.Refresh).Methods("POST")
	router.HandleFunc("/sessions/{id}/interaction", h.RecordInteraction).Methods("POST")
	router.HandleFunc("/sessions/{id}/stream", h.Stream).Methods("GET")
}

// CreateSessionRequest is the body of POST /sessions
type CreateSessionRequest struct {
	Filters     domain.FilterParams `json:"filters"`
	Preferences *domain.Preferences `json:"preferences,omitempty"`
}

// CreateSession mounts a new dashboard and returns its first state
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			badRequest(w, "Invalid request body")
			return
		}
	}

	_, st, err := h.manager.Create(r.Context(), req.Filters, req.Preferences)
	if err != nil {
		writeError(w, err)
		return
	}
	success(w, http.StatusCreated, "Session created", st)
}

// GetSession returns the current state
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	success(w, http.StatusOK, "Session state", s.State())
}

// DeleteSession unmounts a session
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Remove(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	success(w, http.StatusOK, "Session removed", nil)
}

// UpdateFilters replaces the filters and waits for the debounced reload
func (h *SessionHandler) UpdateFilters(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var params domain.FilterParams
	if err := decodeBody(r, &params); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	h.respond(w, "Filters updated")(s.UpdateFilters(r.Context(), params))
}

// UpdateDateRange replaces only the date range
func (h *SessionHandler) UpdateDateRange(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var dr domain.DateRange
	if err := decodeBody(r, &dr); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	h.respond(w, "Date range updated")(s.UpdateDateRange(r.Context(), dr))
}

// UpdatePreferences replaces the session preferences
func (h *SessionHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var p domain.Preferences
	if err := decodeBody(r, &p); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	h.respond(w, "Preferences updated")(s.SetPreferences(r.Context(), p))
}

// Refresh reloads immediately
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, "Session refreshed")(s.Refresh(r.Context()))
}

// RecordInteraction marks user activity on the dashboard
func (h *SessionHandler) RecordInteraction(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.RecordInteraction(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Stream sends state changes as Server-Sent Events
func (h *SessionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.streamer.Stream(w, r, s)
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*dashboard.Session, bool) {
	s, err := h.manager.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return s, true
}

func (h *SessionHandler) respond(w http.ResponseWriter, message string) func(dashboard.State, error) {
	return func(st dashboard.State, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		success(w, http.StatusOK, message, st)
	}
}
