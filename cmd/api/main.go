package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/claimlens/backend/internal/adapters/cache"
	"github.com/claimlens/backend/internal/adapters/database"
	"github.com/claimlens/backend/internal/api/handlers"
	"github.com/claimlens/backend/internal/api/routes"
	"github.com/claimlens/backend/internal/application/services"
	"github.com/claimlens/backend/internal/domain/providers"
	"github.com/claimlens/backend/internal/infrastructure/clients/crossref"
	"github.com/claimlens/backend/internal/infrastructure/clients/openai"
	"github.com/claimlens/backend/internal/infrastructure/clients/postgres"
	"github.com/claimlens/backend/internal/infrastructure/clients/redis"
	"github.com/claimlens/backend/internal/infrastructure/observability"
	"github.com/claimlens/backend/internal/research"
	"github.com/claimlens/backend/internal/resilience"
	"github.com/claimlens/backend/pkg/config"
	"github.com/claimlens/backend/pkg/retry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	observability.InitLogger(cfg.OTEL.ServiceName, env)

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	var shutdown func(context.Context) error
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err = observability.Setup(
			ctx,
			cfg.OTEL.ServiceName,
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized successfully")
		}
	}

	// Initialize metrics
	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	// Initialize database client
	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	// Initialize Redis client; classifier caching is optional
	var cacheProvider providers.CacheProvider
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis client, classifier results will not be cached")
	} else {
		defer redisClient.Close()
		cacheProvider = cache.NewRedisAdapter(redisClient)
		log.Info().Msg("Redis client initialized successfully")
	}

	// Initialize the classifier; research degrades to the fallback
	// strategy without it
	var classifier providers.Classifier
	openaiClient, err := openai.NewClient(&cfg.OpenAI)
	if err != nil {
		log.Warn().Err(err).Msg("Classifier unavailable, using fallback research strategy")
	} else {
		if cacheProvider != nil {
			openaiClient.SetCache(cacheProvider)
		}
		classifier = openaiClient
	}

	// Initialize the resilience registry and research backends
	registry := resilience.NewRegistry(cfg.Research.Backends)
	backends := []providers.ResearchBackend{
		crossref.NewClient(os.Getenv("CROSSREF_MAILTO")),
	}

	retryCfg := retry.Config{
		MaxAttempts:   cfg.Research.Retry.MaxAttempts,
		BaseDelay:     cfg.Research.Retry.BaseDelay,
		BackoffFactor: cfg.Research.Retry.BackoffFactor,
		MaxDelay:      cfg.Research.Retry.MaxDelay,
	}

	orchestrator := research.NewOrchestrator(backends, registry, classifier, retryCfg, cfg.Research.CallTimeout)
	orchestrator.SetMetrics(metrics)
	coordinator := research.NewBatchCoordinator(orchestrator, cfg.Research.BatchConcurrency)

	// Initialize adapters and services
	analysisRepo := database.NewAnalysisAdapter(pgClient)

	cacheService := services.NewAnalysisCacheService(analysisRepo)
	cacheService.SetMetrics(metrics)

	researchService := services.NewResearchService(cacheService, classifier, coordinator, analysisRepo, cfg.Cache.MaxAge())

	// Initialize handlers and router
	analysisHandler := handlers.NewAnalysisHandler(researchService, cacheService)

	router := routes.NewRouter(analysisHandler, registry, metrics)
	handler := router.SetupRoutes()

	// Create HTTP server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", serverAddr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
	}

	log.Info().Msg("Server stopped")
}
