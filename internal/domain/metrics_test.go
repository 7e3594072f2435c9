package domain

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelCount_Normalize(t *testing.T) {
	c, clamped := LevelCount{Opened: 15, Pending: 4, InProgress: 12, Resolved: 28}.Normalize()
	assert.False(t, clamped)
	assert.Equal(t, 59, c.Total)

	c, clamped = LevelCount{Opened: 1, Total: 10}.Normalize()
	assert.False(t, clamped)
	assert.Equal(t, 10, c.Total, "backend supplied total is kept")

	c, clamped = LevelCount{Opened: -3, Resolved: 2}.Normalize()
	assert.True(t, clamped)
	assert.Equal(t, 0, c.Opened)
	assert.Equal(t, 2, c.Total)
}

func TestFallbackSnapshot(t *testing.T) {
	s := FallbackSnapshot()

	assert.True(t, s.Fallback)
	assert.Empty(t, s.Trends)
	require.Len(t, s.Levels, 5)
	for _, l := range append(SupportLevels, LevelOverall) {
		assert.Equal(t, LevelCount{}, s.Level(l))
	}
	assert.True(t, s.Equal(FallbackSnapshot()))
}

func TestMetricsSnapshot_CloneIsDeep(t *testing.T) {
	s := MetricsSnapshot{
		Levels: map[Level]LevelCount{LevelN1: {Opened: 1, Total: 1}},
		Trends: map[string]string{"novos": "+5%"},
	}
	c := s.Clone()
	c.Levels[LevelN1] = LevelCount{}
	c.Trends["novos"] = "-1%"

	assert.Equal(t, 1, s.TotalFor(LevelN1))
	assert.Equal(t, "+5%", s.Trends["novos"])
	assert.False(t, s.Equal(c))
}

func TestKPICards(t *testing.T) {
	s := MetricsSnapshot{
		Levels: map[Level]LevelCount{
			LevelN1:      {Opened: 15, Pending: 4, InProgress: 12, Resolved: 28, Total: 59},
			LevelOverall: {Opened: 15, Pending: 4, InProgress: 12, Resolved: 28, Total: 59},
		},
	}

	cards := s.KPICards()
	require.Len(t, cards, 2)
	assert.Equal(t, LevelN1, cards[0].Level)
	assert.Equal(t, "Total: 59", cards[0].TotalLabel)
	assert.Equal(t, "Geral", cards[1].Title)
}

func TestFilterParams_CacheKeyIgnoresInsertionOrder(t *testing.T) {
	a := FilterParams{StartDate: "2024-01-01", EndDate: "2024-01-31", Extra: map[string]string{}}
	a.Extra["group"] = "infra"
	a.Extra["entity"] = "2"

	b := FilterParams{EndDate: "2024-01-31", StartDate: "2024-01-01", Extra: map[string]string{}}
	b.Extra["entity"] = "2"
	b.Extra["group"] = "infra"

	assert.Equal(t, a.CacheKey(), b.CacheKey())
	assert.Equal(t, "end_date=2024-01-31&entity=2&group=infra&start_date=2024-01-01", a.CacheKey())
}

func TestFilterParams_Query(t *testing.T) {
	p := FilterParams{
		StartDate: "2024-01-01",
		EndDate:   "2024-01-31",
		Level:     "n2",
		Status:    "  ",
		Limit:     10,
		Extra:     map[string]string{"start_date": "1999-01-01", "empty": ""},
	}

	q := p.Query()
	assert.Equal(t, "2024-01-01", q.Get(ParamStartDate), "date range wins over extra")
	assert.Equal(t, "2024-01-31", q.Get(ParamEndDate))
	assert.Equal(t, "N2", q.Get(ParamLevel))
	assert.Equal(t, "10", q.Get(ParamLimit))
	assert.NotContains(t, q, ParamStatus)
	assert.NotContains(t, q, "empty")
	assert.True(t, FilterParams{}.IsEmpty())
}

func TestFilterParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  FilterParams
		wantErr error
	}{
		{name: "empty", params: FilterParams{}},
		{name: "valid range", params: FilterParams{StartDate: "2024-01-01", EndDate: "2024-01-02"}},
		{name: "bad date", params: FilterParams{StartDate: "01/01/2024"}, wantErr: ErrInvalidDate},
		{name: "inverted", params: FilterParams{StartDate: "2024-02-01", EndDate: "2024-01-01"}, wantErr: ErrInvalidDateRange},
		{name: "bad level", params: FilterParams{Level: "N9"}, wantErr: ErrInvalidLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantErr, err)
		})
	}
}

func TestLastDays(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	r := LastDays(now, 7)
	assert.Equal(t, "2024-03-04", r.Start)
	assert.Equal(t, "2024-03-10", r.End)
}

func TestCheckConsistency(t *testing.T) {
	n1 := LevelCount{Opened: 1, InProgress: 1, Pending: 1, Resolved: 1, Total: 4}
	s := MetricsSnapshot{Levels: map[Level]LevelCount{
		LevelN1:      n1,
		LevelOverall: n1,
	}}
	assert.True(t, CheckConsistency(s, nil).OK())

	s.Levels[LevelOverall] = LevelCount{Total: 100}
	r := CheckConsistency(s, nil)
	require.False(t, r.OK())
	assert.Equal(t, "aggregate", r.Diagnostics[0].Check)

	s.Levels[LevelOverall] = n1
	r = CheckConsistency(s, []TechnicianRankingEntry{{Score: 9}})
	require.Len(t, r.Diagnostics, 1)
	assert.Equal(t, "ranking_total", r.Diagnostics[0].Check)

	assert.True(t, CheckConsistency(FallbackSnapshot(), []TechnicianRankingEntry{{Score: 9}}).OK())
}

func TestErrHTTPStatus(t *testing.T) {
	e := ErrHTTPStatus(http.StatusInternalServerError, "")
	assert.Contains(t, e.Message, "500")
	assert.Equal(t, CategoryServer, e.Category())

	assert.Equal(t, CategoryAuth, ErrHTTPStatus(http.StatusUnauthorized, "").Category())
	assert.Equal(t, CategoryClient, ErrHTTPStatus(http.StatusNotFound, "").Category())
}

func TestAsAppError(t *testing.T) {
	assert.Nil(t, AsAppError(nil))

	appErr := ErrNetwork("dial", errors.New("refused"))
	assert.Same(t, appErr, AsAppError(appErr))

	wrapped := AsAppError(ErrInvalidDate)
	assert.Equal(t, ErrCodeInvalidRequest, wrapped.Code)
	assert.Equal(t, http.StatusBadRequest, GetHTTPStatusCode(wrapped))

	assert.Equal(t, ErrCodeInternalServerError, AsAppError(errors.New("boom")).Code)
	assert.Equal(t, http.StatusServiceUnavailable, GetHTTPStatusCode(appErr))
	assert.True(t, errors.Is(appErr, appErr.Cause))
}
