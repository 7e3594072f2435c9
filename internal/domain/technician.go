package domain

import (
	"sort"
)

// TechnicianRankingEntry is one row of the technician ranking table
type TechnicianRankingEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level Level  `json:"level"`
	Score int    `json:"total"`
}

// SortRanking orders entries by score descending. Ties keep a stable order by name.
func SortRanking(entries []TechnicianRankingEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Name < entries[j].Name
	})
}

// RankingTotal sums the scores of all entries
func RankingTotal(entries []TechnicianRankingEntry) int {
	total := 0
	for _, e := range entries {
		total += e.Score
	}
	return total
}

// TopN returns at most n entries. n <= 0 returns everything.
func TopN(entries []TechnicianRankingEntry, n int) []TechnicianRankingEntry {
	if n <= 0 || n >= len(entries) {
		out := make([]TechnicianRankingEntry, len(entries))
		copy(out, entries)
		return out
	}
	out := make([]TechnicianRankingEntry, n)
	copy(out, entries[:n])
	return out
}
