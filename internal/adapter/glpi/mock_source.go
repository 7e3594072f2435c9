package glpi

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/fixora/dashboard/internal/domain"
)

// MockSource serves generated ticket data for local runs without a backend
type MockSource struct {
	latency   time.Duration
	errorRate float64

	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

// NewMockSource creates a new mock source. errorRate is the share of calls failing with a
// simulated server error.
func NewMockSource(latency time.Duration, errorRate float64) *MockSource {
	return &MockSource{
		latency:   latency,
		errorRate: errorRate,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
}

// Metrics returns counts derived from the filter, so identical filters give identical data
func (m *MockSource) Metrics(ctx context.Context, params domain.FilterParams) (domain.MetricsSnapshot, error) {
	if err := m.simulate(ctx); err != nil {
		return domain.MetricsSnapshot{}, err
	}

	seed := simpleHash(params.CacheKey())
	snap := domain.MetricsSnapshot{
		Levels:      make(map[domain.Level]domain.LevelCount, len(domain.SupportLevels)+1),
		Trends:      make(map[string]string, 4),
		GeneratedAt: m.now(),
	}

	var sum domain.LevelCount
	for i, lvl := range domain.SupportLevels {
		base := int(seed>>uint(i*4)&0xf) + 1
		c, _ := domain.LevelCount{
			Opened:     base * 3,
			InProgress: base * 2,
			Pending:    base,
			Resolved:   base * 5,
		}.Normalize()
		snap.Levels[lvl] = c
		sum = sum.Add(c)
	}
	snap.Levels[domain.LevelOverall] = sum

	for i, status := range []string{"novos", "progresso", "pendentes", "resolvidos"} {
		delta := int(seed>>uint(16+i*4)&0xf) - 7
		snap.Trends[status] = fmt.Sprintf("%+d%%", delta)
	}
	return snap, nil
}

// Ranking returns a fixed roster scored from the filter
func (m *MockSource) Ranking(ctx context.Context, params domain.FilterParams) ([]domain.TechnicianRankingEntry, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}

	roster := []struct {
		name  string
		level domain.Level
	}{
		{"Ana Souza", domain.LevelN1},
		{"Bruno Lima", domain.LevelN1},
		{"Carla Dias", domain.LevelN2},
		{"Diego Alves", domain.LevelN2},
		{"Elisa Rocha", domain.LevelN3},
		{"Fabio Nunes", domain.LevelN4},
	}

	seed := simpleHash(params.CacheKey())
	out := make([]domain.TechnicianRankingEntry, 0, len(roster))
	for i, r := range roster {
		if params.Level != "" && string(r.level) != params.Level {
			continue
		}
		out = append(out, domain.TechnicianRankingEntry{
			ID:    fmt.Sprintf("tech-%d", i+1),
			Name:  r.name,
			Level: r.level,
			Score: int(simpleHash(fmt.Sprintf("%d/%s", seed, r.name)) % 60),
		})
	}
	domain.SortRanking(out)
	return domain.TopN(out, params.Limit), nil
}

// Status always reports both sides online
func (m *MockSource) Status(ctx context.Context) (domain.SystemStatus, error) {
	if err := m.simulate(ctx); err != nil {
		return domain.SystemStatus{}, err
	}
	return domain.SystemStatus{
		Status:     domain.HealthOnline,
		APIStatus:  domain.HealthOnline,
		GLPIStatus: domain.HealthOnline,
		Version:    "mock",
		LastUpdate: m.now(),
	}, nil
}

// NewTickets returns a handful of tickets opened in the last hour
func (m *MockSource) NewTickets(ctx context.Context, params domain.FilterParams) ([]domain.NewTicket, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}

	titles := []string{
		"Printer offline on 3rd floor",
		"VPN disconnects every few minutes",
		"Password reset for ERP account",
		"New laptop setup",
		"Shared drive permissions",
	}
	limit := len(titles)
	if params.Limit > 0 && params.Limit < limit {
		limit = params.Limit
	}

	now := m.now()
	out := make([]domain.NewTicket, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, domain.NewTicket{
			ID:        fmt.Sprintf("%d", 1000+i),
			Title:     titles[i],
			Requester: fmt.Sprintf("user%02d", i+1),
			Priority:  domain.ParseTicketPriority(fmt.Sprintf("%d", i%5+1)),
			Status:    domain.TicketStatusOpened,
			CreatedAt: now.Add(-time.Duration(i*11) * time.Minute),
		})
	}
	return out, nil
}

func (m *MockSource) simulate(ctx context.Context) error {
	// Simulate network latency
	if m.latency > 0 {
		select {
		case <-time.After(m.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	fail := m.rnd.Float64() < m.errorRate
	m.mu.Unlock()
	if fail {
		return domain.ErrHTTPStatus(500, "mock backend error")
	}
	return nil
}

func simpleHash(s string) uint32 {
	hash := uint32(2166136261)
	for _, c := range s {
		hash ^= uint32(c)
		hash *= 16777619
	}
	return hash
}
