package domain

import (
	"testing"
	"time"
)

func TestParseTicketStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected TicketStatus
		ok       bool
	}{
		{"novos", TicketStatusOpened, true},
		{"NEW", TicketStatusOpened, true},
		{"progresso", TicketStatusInProgress, true},
		{"3", TicketStatusInProgress, true},
		{"pendentes", TicketStatusPending, true},
		{"solved", TicketStatusResolved, true},
		{"6", TicketStatusClosed, true},
		{"whatever", "", false},
	}

	for _, tt := range tests {
		status, ok := ParseTicketStatus(tt.input)
		if ok != tt.ok {
			t.Errorf("ParseTicketStatus(%q): expected ok=%v, got %v", tt.input, tt.ok, ok)
		}
		if status != tt.expected {
			t.Errorf("ParseTicketStatus(%q): expected %s, got %s", tt.input, tt.expected, status)
		}
	}
}

func TestParseTicketPriority(t *testing.T) {
	tests := []struct {
		input    string
		expected TicketPriority
	}{
		{"1", TicketPriorityVeryLow},
		{"low", TicketPriorityLow},
		{"3", TicketPriorityMedium},
		{"Alta", TicketPriorityHigh},
		{"5", TicketPriorityVeryHigh},
		{"6", TicketPriorityMajor},
		{"", TicketPriorityMedium},
	}

	for _, tt := range tests {
		if got := ParseTicketPriority(tt.input); got != tt.expected {
			t.Errorf("ParseTicketPriority(%q): expected %s, got %s", tt.input, tt.expected, got)
		}
	}
}

func TestNewTicket_Age(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	ticket := NewTicket{ID: "1", CreatedAt: now.Add(-90 * time.Minute)}

	if got := ticket.Age(now); got != 90*time.Minute {
		t.Errorf("Expected age 90m, got %s", got)
	}

	future := NewTicket{ID: "2", CreatedAt: now.Add(time.Hour)}
	if got := future.Age(now); got != 0 {
		t.Errorf("Expected zero age for future ticket, got %s", got)
	}

	if got := (NewTicket{}).Age(now); got != 0 {
		t.Errorf("Expected zero age without timestamp, got %s", got)
	}
}

func TestSortRanking(t *testing.T) {
	entries := []TechnicianRankingEntry{
		{ID: "1", Name: "Carla", Level: LevelN2, Score: 10},
		{ID: "2", Name: "Bruno", Level: LevelN1, Score: 30},
		{ID: "3", Name: "Ana", Level: LevelN3, Score: 10},
	}

	SortRanking(entries)

	expected := []string{"2", "3", "1"}
	for i, id := range expected {
		if entries[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, entries[i].ID)
		}
	}

	if total := RankingTotal(entries); total != 50 {
		t.Errorf("Expected ranking total 50, got %d", total)
	}
}

func TestTopN(t *testing.T) {
	entries := []TechnicianRankingEntry{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	if got := TopN(entries, 2); len(got) != 2 || got[1].ID != "b" {
		t.Errorf("Expected first two entries, got %+v", got)
	}
	if got := TopN(entries, 0); len(got) != 3 {
		t.Errorf("Expected all entries, got %d", len(got))
	}

	top := TopN(entries, 5)
	top[0].ID = "changed"
	if entries[0].ID != "a" {
		t.Error("TopN must not alias the input slice")
	}
}

func BenchmarkSortRanking(b *testing.B) {
	base := make([]TechnicianRankingEntry, 200)
	for i := range base {
		base[i] = TechnicianRankingEntry{ID: string(rune('a' + i%26)), Score: (i * 7919) % 101}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		entries := make([]TechnicianRankingEntry, len(base))
		copy(entries, base)
		SortRanking(entries)
	}
}
