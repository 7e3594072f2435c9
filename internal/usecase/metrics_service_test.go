package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fixora/dashboard/internal/cache"
	"github.com/fixora/dashboard/internal/domain"
)

// MockMetricsSource is a mock implementation of ports.MetricsSource
type MockMetricsSource struct {
	mock.Mock
}

func (m *MockMetricsSource) Metrics(ctx context.Context, params domain.FilterParams) (domain.MetricsSnapshot, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(domain.MetricsSnapshot), args.Error(1)
}

func (m *MockMetricsSource) Ranking(ctx context.Context, params domain.FilterParams) ([]domain.TechnicianRankingEntry, error) {
	args := m.Called(ctx, params)
	return args.Get(0).([]domain.TechnicianRankingEntry), args.Error(1)
}

func (m *MockMetricsSource) Status(ctx context.Context) (domain.SystemStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.SystemStatus), args.Error(1)
}

func (m *MockMetricsSource) NewTickets(ctx context.Context, params domain.FilterParams) ([]domain.NewTicket, error) {
	args := m.Called(ctx, params)
	return args.Get(0).([]domain.NewTicket), args.Error(1)
}

func newTestService(src *MockMetricsSource) *MetricsService {
	caches := NewCaches(
		cache.DefaultConfig("metrics"),
		cache.DefaultConfig("ranking"),
		cache.DefaultConfig("status"),
		cache.DefaultConfig("tickets"),
	)
	cfg := ServiceConfig{BatchWindow: 40 * time.Millisecond, BatchMaxSize: 8}
	return NewMetricsService(src, caches, nil, cfg, nil)
}

func sampleSnapshot() domain.MetricsSnapshot {
	snap := domain.FallbackSnapshot()
	snap.Fallback = false
	snap.Levels[domain.LevelN1] = domain.LevelCount{Opened: 15, InProgress: 12, Pending: 4, Resolved: 28, Total: 59}
	snap.Levels[domain.LevelOverall] = snap.Levels[domain.LevelN1]
	return snap
}

var january = domain.FilterParams{StartDate: "2024-01-01", EndDate: "2024-01-31"}

func TestMetricsService_GetMetrics_CachesSuccess(t *testing.T) {
	src := new(MockMetricsSource)
	src.On("Metrics", mock.Anything, january).Return(sampleSnapshot(), nil).Once()
	svc := newTestService(src)

	first, err := svc.GetMetrics(context.Background(), january)
	require.NoError(t, err)
	assert.True(t, first.OK())
	assert.False(t, first.FromCache)
	assert.Equal(t, 59, first.Data.TotalFor(domain.LevelN1))

	second, err := svc.GetMetrics(context.Background(), january)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.True(t, first.Data.Equal(second.Data))

	src.AssertNumberOfCalls(t, "Metrics", 1)
}

func TestMetricsService_GetMetrics_FallbackIsNotCached(t *testing.T) {
	src := new(MockMetricsSource)
	src.On("Metrics", mock.Anything, january).Return(domain.MetricsSnapshot{}, domain.ErrHTTPStatus(500, "")).Once()
	src.On("Metrics", mock.Anything, january).Return(sampleSnapshot(), nil).Once()
	svc := newTestService(src)

	failed, err := svc.GetMetrics(context.Background(), january)
	require.NoError(t, err)
	assert.True(t, failed.Fallback)
	require.NotNil(t, failed.Err)
	assert.Contains(t, failed.Err.Error(), "500")
	assert.True(t, failed.Data.Equal(domain.FallbackSnapshot()))

	retried, err := svc.GetMetrics(context.Background(), january)
	require.NoError(t, err)
	assert.True(t, retried.OK())
	assert.False(t, retried.FromCache, "the failed read left nothing in the cache")
	assert.Equal(t, 59, retried.Data.TotalFor(domain.LevelN1))

	src.AssertNumberOfCalls(t, "Metrics", 2)
}

func TestMetricsService_GetMetrics_InvalidParams(t *testing.T) {
	svc := newTestService(new(MockMetricsSource))

	_, err := svc.GetMetrics(context.Background(), domain.FilterParams{StartDate: "2024-02-01", EndDate: "2024-01-01"})
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeInvalidRequest, domain.AsAppError(err).Code)
}

func TestMetricsService_GetMetrics_Canceled(t *testing.T) {
	src := new(MockMetricsSource)
	src.On("Metrics", mock.Anything, january).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(domain.MetricsSnapshot{}, context.Canceled)
	svc := newTestService(src)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	res, err := svc.GetMetrics(ctx, january)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res.Err, "cancellation is not reported as a failure")
	assert.Zero(t, svc.CacheStats()["metrics"].Size)
}

func TestMetricsService_GetRanking_BatchesLimits(t *testing.T) {
	roster := []domain.TechnicianRankingEntry{
		{ID: "1", Name: "Ana", Score: 50},
		{ID: "2", Name: "Bia", Score: 40},
		{ID: "3", Name: "Caio", Score: 30},
		{ID: "4", Name: "Davi", Score: 20},
		{ID: "5", Name: "Eva", Score: 10},
	}
	widest := january
	widest.Limit = 5

	src := new(MockMetricsSource)
	src.On("Ranking", mock.Anything, widest).Return(roster, nil).Once()
	svc := newTestService(src)

	limits := []int{2, 5, 3}
	got := make([][]domain.TechnicianRankingEntry, len(limits))
	var wg sync.WaitGroup
	for i, limit := range limits {
		wg.Add(1)
		go func(i, limit int) {
			defer wg.Done()
			p := january
			p.Limit = limit
			res, err := svc.GetRanking(context.Background(), p)
			assert.NoError(t, err)
			assert.True(t, res.OK())
			got[i] = res.Data
		}(i, limit)
	}
	wg.Wait()

	src.AssertNumberOfCalls(t, "Ranking", 1)
	for i, limit := range limits {
		require.Len(t, got[i], limit)
		assert.Equal(t, "Ana", got[i][0].Name)
	}
}

func TestMetricsService_GetRanking_FailureReachesWholeGroup(t *testing.T) {
	src := new(MockMetricsSource)
	src.On("Ranking", mock.Anything, mock.Anything).Return([]domain.TechnicianRankingEntry(nil), domain.ErrNetwork("refused", nil))
	svc := newTestService(src)

	var wg sync.WaitGroup
	for _, limit := range []int{1, 2} {
		wg.Add(1)
		go func(limit int) {
			defer wg.Done()
			p := january
			p.Limit = limit
			res, err := svc.GetRanking(context.Background(), p)
			assert.NoError(t, err)
			assert.True(t, res.Fallback)
			assert.Empty(t, res.Data)
			assert.Equal(t, domain.CategoryNetwork, res.Err.Category())
		}(limit)
	}
	wg.Wait()
}

func TestMetricsService_GetStatus(t *testing.T) {
	src := new(MockMetricsSource)
	src.On("Status", mock.Anything).Return(domain.SystemStatus{}, domain.ErrTimeout("30s", nil)).Once()
	src.On("Status", mock.Anything).Return(domain.SystemStatus{Status: "online", APIStatus: "online", GLPIStatus: "online"}, nil).Once()
	svc := newTestService(src)

	res, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, domain.UnknownStatus(), res.Data)
	assert.Contains(t, res.Err.Error(), "connection/timeout")

	res, err = svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Data.IsOnline())
}

func TestMetricsService_GetNewTickets(t *testing.T) {
	src := new(MockMetricsSource)
	tickets := []domain.NewTicket{{ID: "10", Title: "VPN"}}
	src.On("NewTickets", mock.Anything, january).Return(tickets, nil).Once()
	svc := newTestService(src)

	res, err := svc.GetNewTickets(context.Background(), january)
	require.NoError(t, err)
	assert.Equal(t, tickets, res.Data)

	res.Data[0].Title = "changed"
	again, err := svc.GetNewTickets(context.Background(), january)
	require.NoError(t, err)
	assert.True(t, again.FromCache)
	assert.Equal(t, "VPN", again.Data[0].Title, "callers get their own copy")
}

func TestMetricsService_InvalidateAll(t *testing.T) {
	src := new(MockMetricsSource)
	src.On("Metrics", mock.Anything, january).Return(sampleSnapshot(), nil).Twice()
	svc := newTestService(src)

	_, err := svc.GetMetrics(context.Background(), january)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.CacheStats()["metrics"].Size)

	svc.InvalidateAll(context.Background())
	assert.Equal(t, 0, svc.CacheStats()["metrics"].Size)

	res, err := svc.GetMetrics(context.Background(), january)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	src.AssertNumberOfCalls(t, "Metrics", 2)
}

func TestMetricsService_CheckConsistency(t *testing.T) {
	svc := newTestService(new(MockMetricsSource))
	snap := sampleSnapshot()

	report := svc.CheckConsistency(context.Background(), snap, []domain.TechnicianRankingEntry{{Name: "Ana", Score: 200}})
	require.False(t, report.OK())
	assert.Equal(t, "ranking_total", report.Diagnostics[0].Check)

	assert.True(t, svc.CheckConsistency(context.Background(), domain.FallbackSnapshot(), nil).OK())
}
