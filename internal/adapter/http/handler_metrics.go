package http

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/fixora/dashboard/internal/cache"
	"github.com/fixora/dashboard/internal/domain"
	"github.com/fixora/dashboard/internal/usecase"
)

// MetricsReader is the read side used by the one-shot endpoints
type MetricsReader interface {
	GetMetrics(ctx context.Context, params domain.FilterParams) (usecase.Result[domain.MetricsSnapshot], error)
	CacheStats() map[string]cache.Stats
	InvalidateAll(ctx context.Context)
}

// MetricsHandler handles one-shot metric reads and cache administration
type MetricsHandler struct {
	service MetricsReader
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(service MetricsReader) *MetricsHandler {
	return &MetricsHandler{service: service}
}

// RegisterRoutes registers metric and cache routes
func (h *MetricsHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/metrics", h.GetMetrics).Methods("GET")
	router.HandleFunc("/cache/stats", h.GetCacheStats).Methods("GET")
	router.HandleFunc("/cache", h.ClearCache).Methods("DELETE")
}

// MetricsResponse is the data of GET /metrics
type MetricsResponse struct {
	Metrics   domain.MetricsSnapshot `json:"metrics"`
	Cards     []domain.KPICard       `json:"cards"`
	FromCache bool                   `json:"from_cache"`
	Fallback  bool                   `json:"fallback"`
	Error     *domain.AppError       `json:"error,omitempty"`
}

// GetMetrics reads the metrics for the filters given in the query string. A backend failure
// still carries the fallback snapshot.
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	params, err := parseFilterQuery(r.URL.Query())
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	res, err := h.service.GetMetrics(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}

	data := MetricsResponse{
		Metrics:   res.Data,
		Cards:     res.Data.KPICards(),
		FromCache: res.FromCache,
		Fallback:  res.Fallback,
		Error:     res.Err,
	}
	if res.Err != nil {
		writeJSON(w, domain.GetHTTPStatusCode(res.Err), Envelope{
			Message: res.Err.Message,
			Data:    data,
			Code:    string(res.Err.Code),
		})
		return
	}
	success(w, http.StatusOK, "Metrics", data)
}

// GetCacheStats returns hit/miss counters per cache
func (h *MetricsHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	success(w, http.StatusOK, "Cache stats", h.service.CacheStats())
}

// ClearCache drops every cached response
func (h *MetricsHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateAll(r.Context())
	success(w, http.StatusOK, "Cache cleared", nil)
}

// parseFilterQuery reads FilterParams from query parameters. Unknown parameters are kept as
// extra backend filters.
func parseFilterQuery(q url.Values) (domain.FilterParams, error) {
	var p domain.FilterParams
	for key, values := range q {
		if len(values) == 0 {
			continue
		}
		v := values[0]
		switch key {
		case domain.ParamStartDate:
			p.StartDate = v
		case domain.ParamEndDate:
			p.EndDate = v
		case domain.ParamLevel:
			p.Level = v
		case domain.ParamStatus:
			p.Status = v
		case domain.ParamPriority:
			p.Priority = v
		case domain.ParamTechnician:
			p.Technician = v
		case domain.ParamLimit:
			n, err := strconv.Atoi(v)
			if err != nil {
				return domain.FilterParams{}, domain.NewDomainError("limit must be a number")
			}
			p.Limit = n
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]string)
			}
			p.Extra[key] = v
		}
	}
	return p, nil
}
