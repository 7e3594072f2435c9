// Package glpi reads ticket metrics from the GLPI-backed helpdesk API.
package glpi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/fixora/dashboard/internal/domain"
	"github.com/fixora/dashboard/internal/metrics"
)

// Backend endpoints, relative to the base URL
const (
	EndpointMetrics    = "/metrics"
	EndpointStatus     = "/status"
	EndpointRanking    = "/technicians/ranking"
	EndpointNewTickets = "/tickets/new"
)

const maxBodyBytes = 8 << 20

// Config configures the backend client
type Config struct {
	BaseURL string
	Timeout time.Duration

	BreakerName      string
	MaxRequests      uint32
	BreakerInterval  time.Duration
	BreakerTimeout   time.Duration
	FailureThreshold uint32
}

// DefaultConfig returns production defaults for baseURL
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:          baseURL,
		Timeout:          30 * time.Second,
		BreakerName:      "glpi",
		MaxRequests:      1,
		BreakerInterval:  time.Minute,
		BreakerTimeout:   30 * time.Second,
		FailureThreshold: 5,
	}
}

// Client implements ports.MetricsSource over HTTP
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	log        *logrus.Logger
	now        func() time.Time
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default transport
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a backend client
func NewClient(cfg Config, log *logrus.Logger, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend base URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = "glpi"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}

	c := &Client{
		baseURL:    base,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		log:        log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	threshold := cfg.FailureThreshold
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Backend circuit breaker changed state")
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(cfg.BreakerName).Set(float64(gobreaker.StateClosed))

	return c, nil
}

// countsAsSuccess keeps cancellations and rejected requests from tripping the breaker
func countsAsSuccess(err error) bool {
	if err == nil || domain.IsCanceled(err) {
		return true
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case domain.ErrCodeBackendAuth, domain.ErrCodeBackendClient:
			return true
		}
	}
	return false
}

// Metrics fetches {BASE}/metrics and normalizes either known payload shape
func (c *Client) Metrics(ctx context.Context, params domain.FilterParams) (domain.MetricsSnapshot, error) {
	data, err := c.get(ctx, EndpointMetrics, params.Query())
	if err != nil {
		return domain.MetricsSnapshot{}, err
	}
	snap, warnings, err := DecodeMetrics(data, c.now())
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"endpoint": EndpointMetrics,
			"error":    err.Error(),
		}).Warn("Backend metrics payload rejected")
		return domain.MetricsSnapshot{}, err
	}
	for _, w := range warnings {
		c.log.WithFields(logrus.Fields{
			"endpoint": EndpointMetrics,
			"params":   params.CacheKey(),
		}).Warn(w)
	}
	return snap, nil
}

// Ranking fetches {BASE}/technicians/ranking
func (c *Client) Ranking(ctx context.Context, params domain.FilterParams) ([]domain.TechnicianRankingEntry, error) {
	data, err := c.get(ctx, EndpointRanking, params.Query())
	if err != nil {
		return nil, err
	}
	return DecodeRanking(data)
}

// Status fetches {BASE}/status
func (c *Client) Status(ctx context.Context) (domain.SystemStatus, error) {
	data, err := c.get(ctx, EndpointStatus, nil)
	if err != nil {
		return domain.SystemStatus{}, err
	}
	return DecodeStatus(data, c.now())
}

// NewTickets fetches {BASE}/tickets/new
func (c *Client) NewTickets(ctx context.Context, params domain.FilterParams) ([]domain.NewTicket, error) {
	data, err := c.get(ctx, EndpointNewTickets, params.Query())
	if err != nil {
		return nil, err
	}
	return DecodeNewTickets(data)
}

// get issues one GET under the client timeout and returns the envelope's data
func (c *Client) get(ctx context.Context, endpoint string, q url.Values) ([]byte, error) {
	target := c.baseURL + endpoint
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, target)
	})
	if err == nil {
		var data []byte
		data, err = unwrap(body)
		if err == nil {
			metrics.BackendRequestDuration.WithLabelValues(endpoint, "success").Observe(time.Since(start).Seconds())
			return data, nil
		}
	}

	err = c.classify(ctx, err)
	if domain.IsCanceled(err) {
		c.log.WithField("endpoint", endpoint).Debug("Backend request canceled")
		return nil, err
	}

	metrics.BackendRequestDuration.WithLabelValues(endpoint, "failure").Observe(time.Since(start).Seconds())
	c.log.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"url":      target,
		"duration": time.Since(start).String(),
		"error":    err.Error(),
	}).Error("Backend request failed")
	return nil, err
}

func (c *Client) do(ctx context.Context, target string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, domain.ErrInternalServerError("failed to create backend request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.ErrHTTPStatus(resp.StatusCode, snippet(body))
	}
	return body, nil
}

// classify maps transport failures onto the error catalog. Cancellation by the caller is passed
// through as context.Canceled.
func (c *Client) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}

	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return domain.ErrCircuitOpen(err)
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrTimeout(c.timeout.String(), err)
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrTimeout(c.timeout.String(), err)
	}
	return domain.ErrNetwork(err.Error(), err)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		cut := 200
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}
