package http

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fixora/dashboard/internal/cache"
	"github.com/fixora/dashboard/internal/dashboard"
	"github.com/fixora/dashboard/internal/domain"
	"github.com/fixora/dashboard/internal/usecase"
)

// MockMetricsReader is a mock implementation of MetricsReader
type MockMetricsReader struct {
	mock.Mock
}

func (m *MockMetricsReader) GetMetrics(ctx context.Context, params domain.FilterParams) (usecase.Result[domain.MetricsSnapshot], error) {
	args := m.Called(ctx, params)
	return args.Get(0).(usecase.Result[domain.MetricsSnapshot]), args.Error(1)
}

func (m *MockMetricsReader) CacheStats() map[string]cache.Stats {
	args := m.Called()
	return args.Get(0).(map[string]cache.Stats)
}

func (m *MockMetricsReader) InvalidateAll(ctx context.Context) {
	m.Called(ctx)
}

// MockLoader is a mock implementation of dashboard.Loader
type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) GetMetrics(ctx context.Context, params domain.FilterParams) (usecase.Result[domain.MetricsSnapshot], error) {
	args := m.Called(ctx, params)
	return args.Get(0).(usecase.Result[domain.MetricsSnapshot]), args.Error(1)
}

func (m *MockLoader) GetRanking(ctx context.Context, params domain.FilterParams) (usecase.Result[[]domain.TechnicianRankingEntry], error) {
	args := m.Called(ctx, params)
	return args.Get(0).(usecase.Result[[]domain.TechnicianRankingEntry]), args.Error(1)
}

func (m *MockLoader) GetStatus(ctx context.Context) (usecase.Result[domain.SystemStatus], error) {
	args := m.Called(ctx)
	return args.Get(0).(usecase.Result[domain.SystemStatus]), args.Error(1)
}

func (m *MockLoader) GetNewTickets(ctx context.Context, params domain.FilterParams) (usecase.Result[[]domain.NewTicket], error) {
	args := m.Called(ctx, params)
	return args.Get(0).(usecase.Result[[]domain.NewTicket]), args.Error(1)
}

func (m *MockLoader) CheckConsistency(ctx context.Context, snap domain.MetricsSnapshot, ranking []domain.TechnicianRankingEntry) domain.ConsistencyReport {
	return domain.CheckConsistency(snap, ranking)
}

func sampleSnapshot() domain.MetricsSnapshot {
	snap := domain.FallbackSnapshot()
	snap.Fallback = false
	snap.Levels[domain.LevelN1] = domain.LevelCount{Opened: 15, InProgress: 12, Pending: 4, Resolved: 28, Total: 59}
	snap.Levels[domain.LevelOverall] = snap.Levels[domain.LevelN1]
	return snap
}

func newLoader() *MockLoader {
	loader := new(MockLoader)
	loader.On("GetMetrics", mock.Anything, mock.Anything).Return(usecase.Result[domain.MetricsSnapshot]{Data: sampleSnapshot()}, nil).Maybe()
	loader.On("GetRanking", mock.Anything, mock.Anything).Return(usecase.Result[[]domain.TechnicianRankingEntry]{Data: []domain.TechnicianRankingEntry{}}, nil).Maybe()
	loader.On("GetStatus", mock.Anything).Return(usecase.Result[domain.SystemStatus]{Data: domain.SystemStatus{Status: "online", APIStatus: "online", GLPIStatus: "online"}}, nil).Maybe()
	loader.On("GetNewTickets", mock.Anything, mock.Anything).Return(usecase.Result[[]domain.NewTicket]{Data: []domain.NewTicket{}}, nil).Maybe()
	return loader
}

func newTestServer(t *testing.T, reader MetricsReader) (*Server, *dashboard.Manager) {
	t.Helper()
	sessionCfg := dashboard.DefaultConfig()
	sessionCfg.RefreshInterval = time.Hour
	sessionCfg.FilterDebounce = 5 * time.Millisecond

	manager := dashboard.NewManager(dashboard.ManagerConfig{Session: sessionCfg}, newLoader(), nil, nil, nil)
	t.Cleanup(manager.Shutdown)

	if reader == nil {
		reader = new(MockMetricsReader)
	}
	srv := NewServer(ServerConfig{
		Port:           "0",
		AllowedOrigins: []string{"http://localhost:3000"},
	}, manager, reader, nil)
	return srv, manager
}

type stateEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    dashboard.State `json:"data"`
	Code    string          `json:"code"`
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) stateEnvelope {
	t.Helper()
	var env stateEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestSessionHandler_Lifecycle(t *testing.T) {
	srv, manager := newTestServer(t, nil)
	h := srv.Handler()

	w := do(t, h, "POST", "/api/v1/sessions", `{"filters":{"start_date":"2024-01-01","end_date":"2024-01-31"}}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, w.Header().Get(CorrelationIDHeader))

	created := decodeState(t, w)
	assert.True(t, created.Status)
	assert.Equal(t, dashboard.StatusReady, created.Data.Status)
	assert.Equal(t, 59, created.Data.Metrics.TotalFor(domain.LevelN1))
	id := created.Data.ID
	require.NotEmpty(t, id)
	assert.Equal(t, 1, manager.Len())

	w = do(t, h, "GET", "/api/v1/sessions/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2024-01-31", decodeState(t, w).Data.Filters.EndDate)

	w = do(t, h, "PUT", "/api/v1/sessions/"+id+"/filters", `{"start_date":"2024-01-01","end_date":"2024-01-31","level":"N2"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "N2", decodeState(t, w).Data.Filters.Level)

	w = do(t, h, "PUT", "/api/v1/sessions/"+id+"/date-range", `{"start_date":"2024-02-01","end_date":"2024-02-29"}`)
	require.Equal(t, http.StatusOK, w.Code)
	updated := decodeState(t, w).Data
	assert.Equal(t, "2024-02-01", updated.Filters.StartDate)
	assert.Equal(t, "N2", updated.Filters.Level)

	w = do(t, h, "PUT", "/api/v1/sessions/"+id+"/preferences", `{"theme":"dark","auto_refresh":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dark", decodeState(t, w).Data.Preferences.Theme)

	w = do(t, h, "POST", "/api/v1/sessions/"+id+"/interaction", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, "POST", "/api/v1/sessions/"+id+"/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dashboard.StatusReady, decodeState(t, w).Data.Status)

	w = do(t, h, "DELETE", "/api/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, manager.Len())

	w = do(t, h, "GET", "/api/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(domain.ErrCodeSessionNotFound), decodeState(t, w).Code)
}

func TestSessionHandler_Errors(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	tests := []struct {
		name           string
		method         string
		target         string
		body           string
		expectedStatus int
		expectedCode   domain.ErrorCode
	}{
		{
			name:           "invalid body",
			method:         "POST",
			target:         "/api/v1/sessions",
			body:           `{"filters": nope}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   domain.ErrCodeInvalidRequest,
		},
		{
			name:           "reversed date range",
			method:         "POST",
			target:         "/api/v1/sessions",
			body:           `{"filters":{"start_date":"2024-02-01","end_date":"2024-01-01"}}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   domain.ErrCodeInvalidRequest,
		},
		{
			name:           "unknown session",
			method:         "POST",
			target:         "/api/v1/sessions/missing/refresh",
			expectedStatus: http.StatusNotFound,
			expectedCode:   domain.ErrCodeSessionNotFound,
		},
		{
			name:           "delete unknown session",
			method:         "DELETE",
			target:         "/api/v1/sessions/missing",
			expectedStatus: http.StatusNotFound,
			expectedCode:   domain.ErrCodeSessionNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code)
			env := decodeState(t, w)
			assert.False(t, env.Status)
			assert.Equal(t, string(tt.expectedCode), env.Code)
		})
	}
}

func TestSessionHandler_InvalidFilterUpdate(t *testing.T) {
	srv, manager := newTestServer(t, nil)
	s, _, err := manager.Create(context.Background(), domain.FilterParams{}, nil)
	require.NoError(t, err)

	w := do(t, srv.Handler(), "PUT", "/api/v1/sessions/"+s.ID()+"/filters", `{"level":"N7"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(domain.ErrCodeInvalidRequest), decodeState(t, w).Code)
}

func TestSessionHandler_Stream(t *testing.T) {
	srv, manager := newTestServer(t, nil)
	s, _, err := manager.Create(context.Background(), domain.FilterParams{}, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/sessions/" + s.ID() + "/stream?client_id=c1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 8)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "event: ") {
				events <- strings.TrimPrefix(line, "event: ")
			}
		}
		close(events)
	}()

	next := func() string {
		select {
		case e := <-events:
			return e
		case <-time.After(2 * time.Second):
			t.Fatal("no event received")
			return ""
		}
	}

	assert.Equal(t, EventConnected, next())
	assert.Equal(t, EventState, next())

	require.NoError(t, manager.Remove(context.Background(), s.ID()))
	assert.Equal(t, EventClosed, next())
}

func TestMetricsHandler_GetMetrics(t *testing.T) {
	january := domain.FilterParams{StartDate: "2024-01-01", EndDate: "2024-01-31", Level: "N1", Extra: map[string]string{"entity": "3"}}

	tests := []struct {
		name           string
		query          string
		result         usecase.Result[domain.MetricsSnapshot]
		expectedStatus int
		expectedCode   string
		expectedN1     int
	}{
		{
			name:           "success",
			query:          "?start_date=2024-01-01&end_date=2024-01-31&level=N1&entity=3",
			result:         usecase.Result[domain.MetricsSnapshot]{Data: sampleSnapshot(), FromCache: true},
			expectedStatus: http.StatusOK,
			expectedN1:     59,
		},
		{
			name:  "backend failure serves fallback",
			query: "?start_date=2024-01-01&end_date=2024-01-31&level=N1&entity=3",
			result: usecase.Result[domain.MetricsSnapshot]{
				Data:     domain.FallbackSnapshot(),
				Err:      domain.ErrHTTPStatus(500, ""),
				Fallback: true,
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   string(domain.ErrCodeBackendServer),
			expectedN1:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := new(MockMetricsReader)
			reader.On("GetMetrics", mock.Anything, january).Return(tt.result, nil).Once()
			srv, _ := newTestServer(t, reader)

			w := do(t, srv.Handler(), "GET", "/api/v1/metrics"+tt.query, "")
			assert.Equal(t, tt.expectedStatus, w.Code)

			var env struct {
				Status bool            `json:"status"`
				Data   MetricsResponse `json:"data"`
				Code   string          `json:"code"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			assert.Equal(t, tt.expectedCode, env.Code)
			assert.Equal(t, tt.expectedN1, env.Data.Metrics.TotalFor(domain.LevelN1))
			assert.Equal(t, tt.result.FromCache, env.Data.FromCache)
			assert.Equal(t, tt.result.Fallback, env.Data.Fallback)
			assert.Len(t, env.Data.Cards, 5)

			reader.AssertExpectations(t)
		})
	}
}

func TestMetricsHandler_BadLimit(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := do(t, srv.Handler(), "GET", "/api/v1/metrics?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"status":false,"message":"limit must be a number","data":null,"code":"REQ_4001"}`, w.Body.String())
}

func TestMetricsHandler_Cache(t *testing.T) {
	reader := new(MockMetricsReader)
	reader.On("CacheStats").Return(map[string]cache.Stats{"metrics": {Name: "metrics", Size: 2, Hits: 3}}).Once()
	reader.On("InvalidateAll", mock.Anything).Once()
	srv, _ := newTestServer(t, reader)

	w := do(t, srv.Handler(), "GET", "/api/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data map[string]cache.Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, 2, env.Data["metrics"].Size)

	w = do(t, srv.Handler(), "DELETE", "/api/v1/cache", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":true,"message":"Cache cleared","data":null}`, w.Body.String())

	reader.AssertExpectations(t)
}

func TestServer_HealthAndPrometheus(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := do(t, srv.Handler(), "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":true,"message":"ok","data":{"sessions":0}}`, w.Body.String())

	w = do(t, srv.Handler(), "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dashboard_active_sessions")
}
