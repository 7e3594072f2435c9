package usecase

import (
	"context"
	"time"

	"github.com/fixora/dashboard/internal/domain"
)

type rankingReply struct {
	entries []domain.TechnicianRankingEntry
	latency time.Duration
	err     error
}

// fetchRankingBatch serves a batch of ranking requests. Requests that differ only by limit share
// one backend call made with the largest limit, and each request gets its own prefix.
func (s *MetricsService) fetchRankingBatch(ctx context.Context, batch []domain.FilterParams) ([]rankingReply, error) {
	type group struct {
		params  domain.FilterParams
		members []int
	}

	groups := make(map[string]*group)
	order := make([]string, 0, len(batch))
	for i, p := range batch {
		base := p.Clone()
		base.Limit = 0
		key := base.CacheKey()

		g, ok := groups[key]
		if !ok {
			g = &group{params: p.Clone()}
			groups[key] = g
			order = append(order, key)
		} else if g.params.Limit != 0 && (p.Limit == 0 || p.Limit > g.params.Limit) {
			// zero means no limit and wins over any bound
			g.params.Limit = p.Limit
		}
		g.members = append(g.members, i)
	}

	replies := make([]rankingReply, len(batch))
	for _, key := range order {
		g := groups[key]
		start := time.Now()
		entries, err := s.source.Ranking(ctx, g.params)
		latency := time.Since(start)
		if err == nil {
			domain.SortRanking(entries)
		}

		for _, i := range g.members {
			if err != nil {
				replies[i] = rankingReply{err: err}
				continue
			}
			replies[i] = rankingReply{
				entries: domain.TopN(entries, batch[i].Limit),
				latency: latency,
			}
		}
	}

	if len(groups) < len(batch) {
		s.log.Debug(ctx, "Ranking requests merged", map[string]interface{}{
			"requests": len(batch),
			"calls":    len(groups),
		})
	}
	return replies, nil
}
