package domain

import (
	"strings"
	"time"
)

// TicketStatus represents the status of a ticket as grouped on the dashboard
type TicketStatus string

const (
	TicketStatusOpened     TicketStatus = "opened"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusPending    TicketStatus = "pending"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// ParseTicketStatus maps GLPI and dashboard spellings to a TicketStatus
func ParseTicketStatus(s string) (TicketStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "opened", "novo", "novos", "new", "1":
		return TicketStatusOpened, true
	case "in_progress", "progresso", "processing", "em_atendimento", "2", "3":
		return TicketStatusInProgress, true
	case "pending", "pendente", "pendentes", "4":
		return TicketStatusPending, true
	case "resolved", "resolvido", "resolvidos", "solved", "5":
		return TicketStatusResolved, true
	case "closed", "fechado", "6":
		return TicketStatusClosed, true
	}
	return "", false
}

// TicketPriority represents the priority of a ticket
type TicketPriority string

const (
	TicketPriorityVeryLow  TicketPriority = "very_low"
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityVeryHigh TicketPriority = "very_high"
	TicketPriorityMajor    TicketPriority = "major"
)

// ParseTicketPriority maps GLPI numeric priorities (1..6) and names to a TicketPriority
func ParseTicketPriority(s string) TicketPriority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "very_low", "muito baixa":
		return TicketPriorityVeryLow
	case "2", "low", "baixa":
		return TicketPriorityLow
	case "4", "high", "alta":
		return TicketPriorityHigh
	case "5", "very_high", "muito alta":
		return TicketPriorityVeryHigh
	case "6", "major", "crítica", "critica":
		return TicketPriorityMajor
	default:
		return TicketPriorityMedium
	}
}

// NewTicket is an entry of the recently opened tickets feed
type NewTicket struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Requester   string         `json:"requester"`
	Priority    TicketPriority `json:"priority"`
	Status      TicketStatus   `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Age returns how long ago the ticket was opened
func (t NewTicket) Age(now time.Time) time.Duration {
	if t.CreatedAt.IsZero() || now.Before(t.CreatedAt) {
		return 0
	}
	return now.Sub(t.CreatedAt)
}

// DomainError represents a domain-specific error
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func NewDomainError(message string) *DomainError {
	return &DomainError{Message: message}
}
