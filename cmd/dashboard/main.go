package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/fixora/dashboard/internal/adapter/glpi"
	httpadapter "github.com/fixora/dashboard/internal/adapter/http"
	"github.com/fixora/dashboard/internal/adapter/preferences"
	"github.com/fixora/dashboard/internal/config"
	"github.com/fixora/dashboard/internal/coordinator"
	"github.com/fixora/dashboard/internal/dashboard"
	"github.com/fixora/dashboard/internal/logger"
	"github.com/fixora/dashboard/internal/ports"
	"github.com/fixora/dashboard/internal/usecase"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("Fixora Helpdesk Dashboard\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("Dashboard service failed: %v", err)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize structured logger
	base := logger.NewLogrus(logger.LoggerConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	structuredLogger := logger.FromLogrus(base, "helpdesk-dashboard", cfg.Logging.ReportCaller)
	structuredLogger.Info(ctx, "Application starting", map[string]interface{}{
		"version": Version,
		"env":     cfg.Server.Environment,
		"backend": cfg.Backend.Mode,
	})

	// Backend source
	var source ports.MetricsSource
	switch cfg.Backend.Mode {
	case config.BackendMock:
		source = glpi.NewMockSource(cfg.Backend.MockLatency, cfg.Backend.MockErrorRate)
		structuredLogger.Warn(ctx, "Using mock backend", map[string]interface{}{
			"latency":    cfg.Backend.MockLatency.String(),
			"error_rate": cfg.Backend.MockErrorRate,
		})
	default:
		client, err := glpi.NewClient(cfg.ToGLPIConfig(), base)
		if err != nil {
			return fmt.Errorf("failed to create backend client: %w", err)
		}
		source = client
		structuredLogger.Info(ctx, "Backend client initialized", map[string]interface{}{
			"base_url": cfg.Backend.BaseURL,
			"timeout":  cfg.Backend.Timeout.String(),
		})
	}

	// Preference store (Redis-backed or in memory based on config)
	var prefs ports.PreferenceStore
	if cfg.Redis.URL != "" {
		store, err := preferences.NewRedisStore(preferences.RedisConfig{
			URL:       cfg.Redis.URL,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		}, base)
		if err != nil {
			structuredLogger.Error(ctx, "Failed to initialize Redis preference store, falling back to memory", err, nil)
			prefs = preferences.NewMemoryStore()
		} else {
			defer store.Close()
			prefs = store
		}
	} else {
		prefs = preferences.NewMemoryStore()
	}

	// Services
	coord := coordinator.New()
	caches := usecase.NewCaches(
		cfg.ToCacheConfig("metrics", cfg.Cache.MetricsTTL),
		cfg.ToCacheConfig("ranking", cfg.Cache.RankingTTL),
		cfg.ToCacheConfig("status", cfg.Cache.StatusTTL),
		cfg.ToCacheConfig("tickets", cfg.Cache.TicketsTTL),
	)
	service := usecase.NewMetricsService(source, caches, coord, usecase.ServiceConfig{
		Throttle:     cfg.Coordinator.Throttle,
		CacheFor:     cfg.Coordinator.CacheFor,
		BatchWindow:  cfg.Coordinator.BatchWindow,
		BatchMaxSize: cfg.Coordinator.BatchMaxSize,
	}, structuredLogger)

	manager := dashboard.NewManager(dashboard.ManagerConfig{
		Session: dashboard.Config{
			RefreshInterval:   cfg.Dashboard.RefreshInterval,
			InteractionWindow: cfg.Dashboard.InteractionWindow,
			FilterDebounce:    cfg.Dashboard.FilterDebounce,
			RankingLimit:      cfg.Dashboard.RankingLimit,
			TicketsLimit:      cfg.Dashboard.TicketsLimit,
			DefaultRangeDays:  cfg.Dashboard.DefaultRangeDays,
		},
		IdleTTL:     cfg.Dashboard.IdleTTL,
		ReapEvery:   cfg.Dashboard.ReapEvery,
		MaxSessions: cfg.Dashboard.MaxSessions,
	}, service, coord, prefs, structuredLogger)
	manager.Start(ctx)
	defer manager.Shutdown()

	serverCfg := httpadapter.ServerConfig{
		Port:             cfg.Server.Port,
		ReadTimeout:      cfg.Server.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		IdleTimeout:      cfg.Server.IdleTimeout,
		AllowedOrigins:   cfg.Security.CORSOrigins,
		AllowCredentials: cfg.Security.AllowCredentials,
		StreamHeartbeat:  cfg.Server.StreamHeartbeat,
	}
	if cfg.Security.RateLimitEnabled {
		serverCfg.RateLimit = cfg.Security.RateLimitRPS
		serverCfg.RateBurst = cfg.Security.RateLimitBurst
	}
	server := httpadapter.NewServer(serverCfg, manager, service, structuredLogger)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	structuredLogger.Info(context.Background(), "Shutting down server...", nil)

	// stopping the sessions closes their event streams
	manager.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		structuredLogger.Error(shutdownCtx, "Server forced to shutdown", err, nil)
	}
	structuredLogger.Info(shutdownCtx, "Server exited", nil)
	return nil
}
