package domain

import "fmt"

// RankingOverallFactor bounds the ranking total relative to the overall ticket total.
// Exceeding it is reported, not rejected.
const RankingOverallFactor = 2

// Diagnostic is an advisory finding about backend data
type Diagnostic struct {
	Check   string `json:"check"`
	Message string `json:"message"`
}

// ConsistencyReport collects advisory diagnostics for one load
type ConsistencyReport struct {
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// OK reports whether no diagnostic was raised
func (r ConsistencyReport) OK() bool {
	return len(r.Diagnostics) == 0
}

func (r *ConsistencyReport) add(check, format string, args ...interface{}) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Check: check, Message: fmt.Sprintf(format, args...)})
}

// CheckConsistency runs the advisory checks over a snapshot and an optional ranking
func CheckConsistency(s MetricsSnapshot, ranking []TechnicianRankingEntry) ConsistencyReport {
	var r ConsistencyReport
	if s.Fallback {
		return r
	}

	var sum LevelCount
	levels := 0
	for _, l := range SupportLevels {
		if c, ok := s.Levels[l]; ok {
			sum = sum.Add(c)
			levels++
		}
	}
	overall, hasOverall := s.Levels[LevelOverall]
	if levels > 0 && hasOverall && sum != overall {
		r.add("aggregate", "overall %+v differs from per-level sum %+v", overall, sum)
	}

	for l, c := range s.Levels {
		if c.Total < c.Sum() {
			r.add("level_total", "level %s total %d is below the sum of its statuses %d", l, c.Total, c.Sum())
		}
	}

	if len(ranking) > 0 && hasOverall && overall.Total > 0 {
		if rt := RankingTotal(ranking); rt > RankingOverallFactor*overall.Total {
			r.add("ranking_total", "ranking total %d exceeds %dx overall total %d", rt, RankingOverallFactor, overall.Total)
		}
	}

	return r
}
