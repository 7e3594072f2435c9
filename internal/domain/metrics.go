package domain

import (
	"strconv"
	"time"
)

// Level represents a helpdesk support tier
type Level string

const (
	LevelN1      Level = "N1"
	LevelN2      Level = "N2"
	LevelN3      Level = "N3"
	LevelN4      Level = "N4"
	LevelOverall Level = "overall"
)

// SupportLevels lists the per-tier levels in display order. LevelOverall is not part of it.
var SupportLevels = []Level{LevelN1, LevelN2, LevelN3, LevelN4}

// ParseLevel maps backend and user spellings ("n1", "N1", "geral", "general") to a Level
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "n1", "N1":
		return LevelN1, true
	case "n2", "N2":
		return LevelN2, true
	case "n3", "N3":
		return LevelN3, true
	case "n4", "N4":
		return LevelN4, true
	case "overall", "geral", "general", "total":
		return LevelOverall, true
	}
	return "", false
}

// LevelCount holds the ticket counts of a single level
type LevelCount struct {
	Opened     int `json:"opened"`
	InProgress int `json:"in_progress"`
	Pending    int `json:"pending"`
	Resolved   int `json:"resolved"`
	Total      int `json:"total"`
}

// Sum returns opened + in progress + pending + resolved
func (c LevelCount) Sum() int {
	return c.Opened + c.InProgress + c.Pending + c.Resolved
}

// Normalize clamps negative counts to zero and derives Total when the backend did not supply one.
// It reports whether any value had to be clamped.
func (c LevelCount) Normalize() (LevelCount, bool) {
	clamped := false
	clamp := func(v int) int {
		if v < 0 {
			clamped = true
			return 0
		}
		return v
	}

	c.Opened = clamp(c.Opened)
	c.InProgress = clamp(c.InProgress)
	c.Pending = clamp(c.Pending)
	c.Resolved = clamp(c.Resolved)
	c.Total = clamp(c.Total)
	if c.Total == 0 {
		c.Total = c.Sum()
	}
	return c, clamped
}

// Add returns the field-wise sum of two counts
func (c LevelCount) Add(o LevelCount) LevelCount {
	return LevelCount{
		Opened:     c.Opened + o.Opened,
		InProgress: c.InProgress + o.InProgress,
		Pending:    c.Pending + o.Pending,
		Resolved:   c.Resolved + o.Resolved,
		Total:      c.Total + o.Total,
	}
}

// MetricsSnapshot is a point-in-time normalized read of ticket metrics
type MetricsSnapshot struct {
	Levels      map[Level]LevelCount `json:"levels"`
	Trends      map[string]string    `json:"trends"`
	GeneratedAt time.Time            `json:"generated_at"`
	Fallback    bool                 `json:"fallback"`
}

// FallbackSnapshot returns the all-zero snapshot served when the backend cannot be read
func FallbackSnapshot() MetricsSnapshot {
	levels := make(map[Level]LevelCount, len(SupportLevels)+1)
	for _, l := range SupportLevels {
		levels[l] = LevelCount{}
	}
	levels[LevelOverall] = LevelCount{}

	return MetricsSnapshot{
		Levels:   levels,
		Trends:   map[string]string{},
		Fallback: true,
	}
}

// Level returns the counts of a level, zero when absent
func (s MetricsSnapshot) Level(l Level) LevelCount {
	return s.Levels[l]
}

// TotalFor returns the total ticket count of a level
func (s MetricsSnapshot) TotalFor(l Level) int {
	return s.Levels[l].Total
}

// Clone returns a deep copy so callers can hand snapshots across goroutines
func (s MetricsSnapshot) Clone() MetricsSnapshot {
	out := s
	out.Levels = make(map[Level]LevelCount, len(s.Levels))
	for k, v := range s.Levels {
		out.Levels[k] = v
	}
	out.Trends = make(map[string]string, len(s.Trends))
	for k, v := range s.Trends {
		out.Trends[k] = v
	}
	return out
}

// Equal compares counts and trends, ignoring GeneratedAt
func (s MetricsSnapshot) Equal(o MetricsSnapshot) bool {
	if s.Fallback != o.Fallback || len(s.Levels) != len(o.Levels) || len(s.Trends) != len(o.Trends) {
		return false
	}
	for k, v := range s.Levels {
		if ov, ok := o.Levels[k]; !ok || ov != v {
			return false
		}
	}
	for k, v := range s.Trends {
		if ov, ok := o.Trends[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// KPICard is the rendered form of one level on the dashboard
type KPICard struct {
	Level      Level  `json:"level"`
	Title      string `json:"title"`
	TotalLabel string `json:"total_label"`
	LevelCount
}

// KPICards renders one card per support level followed by the overall card
func (s MetricsSnapshot) KPICards() []KPICard {
	levels := append(append([]Level{}, SupportLevels...), LevelOverall)
	cards := make([]KPICard, 0, len(levels))
	for _, l := range levels {
		count, ok := s.Levels[l]
		if !ok {
			continue
		}
		cards = append(cards, NewKPICard(l, count))
	}
	return cards
}

// NewKPICard builds the card for a level
func NewKPICard(l Level, count LevelCount) KPICard {
	title := "Nível " + string(l)
	if l == LevelOverall {
		title = "Geral"
	}
	return KPICard{
		Level:      l,
		Title:      title,
		TotalLabel: "Total: " + strconv.Itoa(count.Total),
		LevelCount: count,
	}
}

// Metric errors
var (
	ErrInvalidDateRange = NewDomainError("invalid date range")
	ErrInvalidDate      = NewDomainError("invalid date, expected YYYY-MM-DD")
	ErrInvalidLevel     = NewDomainError("invalid level")
)
