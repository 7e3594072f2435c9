package usecase

import (
	"context"
	"time"

	"github.com/fixora/dashboard/internal/cache"
	"github.com/fixora/dashboard/internal/coordinator"
	"github.com/fixora/dashboard/internal/domain"
	"github.com/fixora/dashboard/internal/logger"
	"github.com/fixora/dashboard/internal/metrics"
	"github.com/fixora/dashboard/internal/ports"
)

// Result is the outcome of a read. On failure Data holds the fallback value, Err describes the
// failure for display and Fallback is set. Fallback values are never cached.
type Result[T any] struct {
	Data      T                `json:"data"`
	Err       *domain.AppError `json:"error,omitempty"`
	FromCache bool             `json:"from_cache"`
	Fallback  bool             `json:"fallback"`
}

// OK reports whether Data came from the backend or the cache
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Caches groups one cache per data category
type Caches struct {
	Metrics *cache.LocalCache[domain.MetricsSnapshot]
	Ranking *cache.LocalCache[[]domain.TechnicianRankingEntry]
	Status  *cache.LocalCache[domain.SystemStatus]
	Tickets *cache.LocalCache[[]domain.NewTicket]
}

// NewCaches builds the caches from per-category configs
func NewCaches(metricsCfg, rankingCfg, statusCfg, ticketsCfg cache.Config, opts ...cache.Option) Caches {
	return Caches{
		Metrics: cache.New[domain.MetricsSnapshot](metricsCfg, opts...),
		Ranking: cache.New[[]domain.TechnicianRankingEntry](rankingCfg, opts...),
		Status:  cache.New[domain.SystemStatus](statusCfg, opts...),
		Tickets: cache.New[[]domain.NewTicket](ticketsCfg, opts...),
	}
}

// ServiceConfig tunes request coordination
type ServiceConfig struct {
	// Throttle caps backend calls per distinct request
	Throttle time.Duration
	// CacheFor lets the coordinator replay a result this young without touching the caches
	CacheFor time.Duration
	// BatchWindow and BatchMaxSize bound ranking batches
	BatchWindow  time.Duration
	BatchMaxSize int
}

// DefaultServiceConfig returns the defaults used by the dashboard
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Throttle:     time.Second,
		CacheFor:     2 * time.Second,
		BatchWindow:  25 * time.Millisecond,
		BatchMaxSize: 16,
	}
}

// MetricsService reads dashboard data through cache, coordinator and backend
type MetricsService struct {
	source  ports.MetricsSource
	caches  Caches
	coord   *coordinator.Coordinator
	ranking *coordinator.Batcher[domain.FilterParams, rankingReply]
	cfg     ServiceConfig
	log     logger.Logger
}

// NewMetricsService creates a new metrics service
func NewMetricsService(source ports.MetricsSource, caches Caches, coord *coordinator.Coordinator, cfg ServiceConfig, log logger.Logger) *MetricsService {
	if coord == nil {
		coord = coordinator.New()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	s := &MetricsService{
		source: source,
		caches: caches,
		coord:  coord,
		cfg:    cfg,
		log:    log,
	}
	s.ranking = coordinator.NewBatcher(coordinator.BatchConfig{
		Window:  cfg.BatchWindow,
		MaxSize: cfg.BatchMaxSize,
	}, s.fetchRankingBatch)
	return s
}

func (s *MetricsService) opts() coordinator.Options {
	return coordinator.Options{Throttle: s.cfg.Throttle, CacheFor: s.cfg.CacheFor}
}

// GetMetrics returns the snapshot for params. The returned error is only set for invalid
// params or when ctx was canceled; backend failures are reported in the Result.
func (s *MetricsService) GetMetrics(ctx context.Context, params domain.FilterParams) (Result[domain.MetricsSnapshot], error) {
	if err := params.Validate(); err != nil {
		return Result[domain.MetricsSnapshot]{}, domain.ErrInvalidRequest(err.Error(), err)
	}

	if snap, ok := s.caches.Metrics.Get(params); ok {
		return Result[domain.MetricsSnapshot]{Data: snap.Clone(), FromCache: true}, nil
	}

	snap, err := coordinator.Do(ctx, s.coord, "metrics?"+params.CacheKey(), s.opts(), func(ctx context.Context) (domain.MetricsSnapshot, error) {
		start := time.Now()
		snap, err := s.source.Metrics(ctx, params)
		if err != nil {
			return snap, err
		}
		s.caches.Metrics.RecordLatency(params, time.Since(start))
		s.caches.Metrics.Set(params, snap)
		return snap, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result[domain.MetricsSnapshot]{}, ctx.Err()
		}
		return Result[domain.MetricsSnapshot]{
			Data:     domain.FallbackSnapshot(),
			Err:      s.failure(ctx, "metrics", params, err),
			Fallback: true,
		}, nil
	}
	return Result[domain.MetricsSnapshot]{Data: snap.Clone()}, nil
}

// GetRanking returns technicians ordered by score. Concurrent requests over the same filters
// with different limits share one backend call.
func (s *MetricsService) GetRanking(ctx context.Context, params domain.FilterParams) (Result[[]domain.TechnicianRankingEntry], error) {
	if err := params.Validate(); err != nil {
		return Result[[]domain.TechnicianRankingEntry]{}, domain.ErrInvalidRequest(err.Error(), err)
	}

	if entries, ok := s.caches.Ranking.Get(params); ok {
		return Result[[]domain.TechnicianRankingEntry]{Data: domain.TopN(entries, 0), FromCache: true}, nil
	}

	entries, err := coordinator.Do(ctx, s.coord, "ranking?"+params.CacheKey(), s.opts(), func(ctx context.Context) ([]domain.TechnicianRankingEntry, error) {
		reply, err := s.ranking.Submit(ctx, params)
		if err != nil {
			return nil, err
		}
		if reply.err != nil {
			return nil, reply.err
		}
		s.caches.Ranking.RecordLatency(params, reply.latency)
		s.caches.Ranking.Set(params, reply.entries)
		return reply.entries, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result[[]domain.TechnicianRankingEntry]{}, ctx.Err()
		}
		return Result[[]domain.TechnicianRankingEntry]{
			Data:     []domain.TechnicianRankingEntry{},
			Err:      s.failure(ctx, "ranking", params, err),
			Fallback: true,
		}, nil
	}
	return Result[[]domain.TechnicianRankingEntry]{Data: domain.TopN(entries, 0)}, nil
}

// GetStatus returns backend availability, UnknownStatus on failure
func (s *MetricsService) GetStatus(ctx context.Context) (Result[domain.SystemStatus], error) {
	var none domain.FilterParams
	if st, ok := s.caches.Status.Get(none); ok {
		return Result[domain.SystemStatus]{Data: st, FromCache: true}, nil
	}

	st, err := coordinator.Do(ctx, s.coord, "status", s.opts(), func(ctx context.Context) (domain.SystemStatus, error) {
		start := time.Now()
		st, err := s.source.Status(ctx)
		if err != nil {
			return st, err
		}
		s.caches.Status.RecordLatency(none, time.Since(start))
		s.caches.Status.Set(none, st)
		return st, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result[domain.SystemStatus]{}, ctx.Err()
		}
		return Result[domain.SystemStatus]{
			Data:     domain.UnknownStatus(),
			Err:      s.failure(ctx, "status", none, err),
			Fallback: true,
		}, nil
	}
	return Result[domain.SystemStatus]{Data: st}, nil
}

// GetNewTickets returns the recently opened tickets, empty on failure
func (s *MetricsService) GetNewTickets(ctx context.Context, params domain.FilterParams) (Result[[]domain.NewTicket], error) {
	if err := params.Validate(); err != nil {
		return Result[[]domain.NewTicket]{}, domain.ErrInvalidRequest(err.Error(), err)
	}

	if tickets, ok := s.caches.Tickets.Get(params); ok {
		return Result[[]domain.NewTicket]{Data: copyTickets(tickets), FromCache: true}, nil
	}

	tickets, err := coordinator.Do(ctx, s.coord, "tickets?"+params.CacheKey(), s.opts(), func(ctx context.Context) ([]domain.NewTicket, error) {
		start := time.Now()
		tickets, err := s.source.NewTickets(ctx, params)
		if err != nil {
			return nil, err
		}
		s.caches.Tickets.RecordLatency(params, time.Since(start))
		s.caches.Tickets.Set(params, tickets)
		return tickets, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result[[]domain.NewTicket]{}, ctx.Err()
		}
		return Result[[]domain.NewTicket]{
			Data:     []domain.NewTicket{},
			Err:      s.failure(ctx, "tickets", params, err),
			Fallback: true,
		}, nil
	}
	return Result[[]domain.NewTicket]{Data: copyTickets(tickets)}, nil
}

// CheckConsistency runs the advisory checks and logs every diagnostic. Nothing is rejected.
func (s *MetricsService) CheckConsistency(ctx context.Context, snap domain.MetricsSnapshot, ranking []domain.TechnicianRankingEntry) domain.ConsistencyReport {
	report := domain.CheckConsistency(snap, ranking)
	for _, d := range report.Diagnostics {
		metrics.DiagnosticsRaised.WithLabelValues(d.Check).Inc()
		s.log.Warn(ctx, "Backend data consistency check failed", map[string]interface{}{
			"check":  d.Check,
			"detail": d.Message,
		})
	}
	return report
}

// InvalidateAll drops every cached value
func (s *MetricsService) InvalidateAll(ctx context.Context) {
	s.caches.Metrics.Clear()
	s.caches.Ranking.Clear()
	s.caches.Status.Clear()
	s.caches.Tickets.Clear()
	s.coord.Reset()
	s.log.Info(ctx, "All caches invalidated", nil)
}

// CacheStats reports statistics per cache name
func (s *MetricsService) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		s.caches.Metrics.Name(): s.caches.Metrics.Stats(),
		s.caches.Ranking.Name(): s.caches.Ranking.Stats(),
		s.caches.Status.Name():  s.caches.Status.Stats(),
		s.caches.Tickets.Name(): s.caches.Tickets.Stats(),
	}
}

func (s *MetricsService) failure(ctx context.Context, endpoint string, params domain.FilterParams, err error) *domain.AppError {
	appErr := domain.AsAppError(err)
	metrics.BackendFallbacks.WithLabelValues(endpoint, string(appErr.Category())).Inc()
	s.log.Warn(ctx, "Serving fallback value", map[string]interface{}{
		"endpoint": endpoint,
		"params":   params.CacheKey(),
		"code":     string(appErr.Code),
		"error":    appErr.Error(),
	})
	return appErr
}

func copyTickets(in []domain.NewTicket) []domain.NewTicket {
	out := make([]domain.NewTicket, len(in))
	copy(out, in)
	return out
}
