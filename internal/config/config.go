package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fixora/dashboard/internal/adapter/glpi"
	"github.com/fixora/dashboard/internal/cache"
)

// Backend modes
const (
	BackendHTTP = "http"
	BackendMock = "mock"
)

// Config represents application configuration
type Config struct {
	Server      ServerConfig      `json:"server"`
	Backend     BackendConfig     `json:"backend"`
	Cache       CacheConfig       `json:"cache"`
	Coordinator CoordinatorConfig `json:"coordinator"`
	Dashboard   DashboardConfig   `json:"dashboard"`
	Redis       RedisConfig       `json:"redis"`
	Logging     LoggingConfig     `json:"logging"`
	Security    SecurityConfig    `json:"security"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port            string        `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	StreamHeartbeat time.Duration `json:"stream_heartbeat"`
	Environment     string        `json:"environment"`
}

// BackendConfig represents the ticketing backend connection
type BackendConfig struct {
	Mode             string        `json:"mode"` // http, mock
	BaseURL          string        `json:"base_url"`
	Timeout          time.Duration `json:"timeout"`
	FailureThreshold uint32        `json:"failure_threshold"`
	BreakerTimeout   time.Duration `json:"breaker_timeout"`
	BreakerInterval  time.Duration `json:"breaker_interval"`
	MockLatency      time.Duration `json:"mock_latency"`
	MockErrorRate    float64       `json:"mock_error_rate"`
}

// CacheConfig represents the response cache bounds, shared by every category except the
// per-category TTLs
type CacheConfig struct {
	MetricsTTL        time.Duration `json:"metrics_ttl"`
	RankingTTL        time.Duration `json:"ranking_ttl"`
	StatusTTL         time.Duration `json:"status_ttl"`
	TicketsTTL        time.Duration `json:"tickets_ttl"`
	MinTTL            time.Duration `json:"min_ttl"`
	MaxTTL            time.Duration `json:"max_ttl"`
	MaxEntries        int           `json:"max_entries"`
	DynamicTTL        bool          `json:"dynamic_ttl"`
	AutoActivate      bool          `json:"auto_activate"`
	ActivationLatency time.Duration `json:"activation_latency"`
}

// CoordinatorConfig represents request coordination settings
type CoordinatorConfig struct {
	Throttle     time.Duration `json:"throttle"`
	CacheFor     time.Duration `json:"cache_for"`
	BatchWindow  time.Duration `json:"batch_window"`
	BatchMaxSize int           `json:"batch_max_size"`
}

// DashboardConfig represents session behavior
type DashboardConfig struct {
	RefreshInterval   time.Duration `json:"refresh_interval"`
	InteractionWindow time.Duration `json:"interaction_window"`
	FilterDebounce    time.Duration `json:"filter_debounce"`
	RankingLimit      int           `json:"ranking_limit"`
	TicketsLimit      int           `json:"tickets_limit"`
	DefaultRangeDays  int           `json:"default_range_days"`
	IdleTTL           time.Duration `json:"idle_ttl"`
	ReapEvery         time.Duration `json:"reap_every"`
	MaxSessions       int           `json:"max_sessions"`
}

// RedisConfig represents the preference store connection. An empty URL keeps preferences in
// memory.
type RedisConfig struct {
	URL       string        `json:"url"`
	KeyPrefix string        `json:"key_prefix"`
	TTL       time.Duration `json:"ttl"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"` // json, text
	ReportCaller bool   `json:"report_caller"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	CORSOrigins      []string `json:"cors_origins"`
	AllowCredentials bool     `json:"allow_credentials"`
	RateLimitEnabled bool     `json:"rate_limit_enabled"`
	RateLimitRPS     float64  `json:"rate_limit_rps"`
	RateLimitBurst   int      `json:"rate_limit_burst"`
}

// Load loads configuration from environment variables and defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 0),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			StreamHeartbeat: getEnvDuration("SSE_HEARTBEAT_INTERVAL", 15*time.Second),
			Environment:     getEnv("ENVIRONMENT", "development"),
		},
		Backend: BackendConfig{
			Mode:             getEnv("BACKEND_MODE", BackendHTTP),
			BaseURL:          getEnv("BACKEND_BASE_URL", "http://localhost:5000/api"),
			Timeout:          getEnvDuration("BACKEND_TIMEOUT", 30*time.Second),
			FailureThreshold: uint32(getEnvInt("BACKEND_BREAKER_FAILURES", 5)),
			BreakerTimeout:   getEnvDuration("BACKEND_BREAKER_TIMEOUT", 30*time.Second),
			BreakerInterval:  getEnvDuration("BACKEND_BREAKER_INTERVAL", time.Minute),
			MockLatency:      getEnvDuration("BACKEND_MOCK_LATENCY", 150*time.Millisecond),
			MockErrorRate:    getEnvFloat("BACKEND_MOCK_ERROR_RATE", 0),
		},
		Cache: CacheConfig{
			MetricsTTL:        getEnvDuration("CACHE_METRICS_TTL", 5*time.Minute),
			RankingTTL:        getEnvDuration("CACHE_RANKING_TTL", 5*time.Minute),
			StatusTTL:         getEnvDuration("CACHE_STATUS_TTL", 30*time.Second),
			TicketsTTL:        getEnvDuration("CACHE_TICKETS_TTL", time.Minute),
			MinTTL:            getEnvDuration("CACHE_MIN_TTL", 30*time.Second),
			MaxTTL:            getEnvDuration("CACHE_MAX_TTL", 15*time.Minute),
			MaxEntries:        getEnvInt("CACHE_MAX_ENTRIES", 100),
			DynamicTTL:        getEnvBool("CACHE_DYNAMIC_TTL", false),
			AutoActivate:      getEnvBool("CACHE_AUTO_ACTIVATE", false),
			ActivationLatency: getEnvDuration("CACHE_ACTIVATION_LATENCY", time.Second),
		},
		Coordinator: CoordinatorConfig{
			Throttle:     getEnvDuration("COORDINATOR_THROTTLE", time.Second),
			CacheFor:     getEnvDuration("COORDINATOR_CACHE_FOR", 2*time.Second),
			BatchWindow:  getEnvDuration("COORDINATOR_BATCH_WINDOW", 25*time.Millisecond),
			BatchMaxSize: getEnvInt("COORDINATOR_BATCH_MAX_SIZE", 16),
		},
		Dashboard: DashboardConfig{
			RefreshInterval:   getEnvDuration("DASHBOARD_REFRESH_INTERVAL", 5*time.Minute),
			InteractionWindow: getEnvDuration("DASHBOARD_INTERACTION_WINDOW", 30*time.Second),
			FilterDebounce:    getEnvDuration("DASHBOARD_FILTER_DEBOUNCE", 300*time.Millisecond),
			RankingLimit:      getEnvInt("DASHBOARD_RANKING_LIMIT", 10),
			TicketsLimit:      getEnvInt("DASHBOARD_TICKETS_LIMIT", 10),
			DefaultRangeDays:  getEnvInt("DASHBOARD_DEFAULT_RANGE_DAYS", 30),
			IdleTTL:           getEnvDuration("DASHBOARD_IDLE_TTL", 30*time.Minute),
			ReapEvery:         getEnvDuration("DASHBOARD_REAP_EVERY", time.Minute),
			MaxSessions:       getEnvInt("DASHBOARD_MAX_SESSIONS", 1000),
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", ""),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "dashboard:prefs:"),
			TTL:       getEnvDuration("REDIS_PREFERENCES_TTL", 30*24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:        getEnv("LOG_LEVEL", "info"),
			Format:       getEnv("LOG_FORMAT", "json"),
			ReportCaller: getEnvBool("LOG_REPORT_CALLER", false),
		},
		Security: SecurityConfig{
			CORSOrigins:      getEnvSlice("CORS_ORIGINS", []string{"*"}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", false),
			RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", true),
			RateLimitRPS:     getEnvFloat("RATE_LIMIT_RPS", 20),
			RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 40),
		},
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Backend.Mode {
	case BackendHTTP:
		u, err := url.Parse(c.Backend.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("backend base URL must be an absolute URL: %q", c.Backend.BaseURL)
		}
	case BackendMock:
		if c.IsProduction() {
			return fmt.Errorf("mock backend is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown backend mode: %s", c.Backend.Mode)
	}

	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be positive")
	}

	if c.Backend.MockErrorRate < 0 || c.Backend.MockErrorRate > 1 {
		return fmt.Errorf("mock error rate must be between 0 and 1")
	}

	if c.Cache.MinTTL > c.Cache.MaxTTL {
		return fmt.Errorf("cache min TTL must not exceed max TTL")
	}

	if c.Dashboard.RankingLimit < 0 || c.Dashboard.TicketsLimit < 0 {
		return fmt.Errorf("dashboard limits must not be negative")
	}

	if c.Security.RateLimitEnabled && c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit must be positive when enabled")
	}

	return nil
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// ToGLPIConfig converts to the backend client configuration
func (c *Config) ToGLPIConfig() glpi.Config {
	cfg := glpi.DefaultConfig(c.Backend.BaseURL)
	cfg.Timeout = c.Backend.Timeout
	cfg.FailureThreshold = c.Backend.FailureThreshold
	cfg.BreakerTimeout = c.Backend.BreakerTimeout
	cfg.BreakerInterval = c.Backend.BreakerInterval
	return cfg
}

// ToCacheConfig returns the bounds of one cache category
func (c *Config) ToCacheConfig(name string, ttl time.Duration) cache.Config {
	cfg := cache.DefaultConfig(name)
	cfg.BaseTTL = ttl
	cfg.MinTTL = c.Cache.MinTTL
	cfg.MaxTTL = c.Cache.MaxTTL
	cfg.MaxEntries = c.Cache.MaxEntries
	cfg.DynamicTTL = c.Cache.DynamicTTL
	cfg.AutoActivate = c.Cache.AutoActivate
	cfg.ActivationLatency = c.Cache.ActivationLatency
	return cfg
}

// Helper functions for environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
