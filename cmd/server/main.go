package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/blobstore"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/config"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/fetchclient"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/handler"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/middleware"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/orchestrator"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/ratelimit"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/reconcile"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/store"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/tracing"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: 0.1,
		}); err != nil {
			logger.Error("failed to init sentry", slog.String("error", err.Error()))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx := context.Background()
	tracingShutdown, err := tracing.Init(ctx, "vehicle-inventory-system", cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		logger.Warn("failed to init tracing", slog.String("error", err.Error()))
	} else {
		defer tracingShutdown(ctx)
	}

	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to parse database config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	dbConfig.MaxConns = int32(cfg.DBMaxConns)
	dbConfig.MinConns = int32(cfg.DBMinConns)
	dbConfig.MaxConnLifetime = cfg.DBMaxConnLife

	db, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		logger.Error("failed to ping database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("database_connected")

	st := store.New(db, logger)

	blobs, err := blobstore.NewLocalStore(cfg.BlobStoreDir)
	if err != nil {
		logger.Error("failed to init blob store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fetch := fetchclient.New(
		cfg.FetchBaseURL, cfg.FetchAPIKey, cfg.FetchTimeout,
		cfg.FetchMaxAttempts, cfg.FetchBackoffBase, logger,
	)
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitRPM,
		MaxConcurrency:    int64(cfg.MaxConcurrency),
	})
	ingestReconciler := reconcile.NewIngestReconciler(st, logger)
	absenceReconciler := reconcile.NewAbsenceReconciler(st, logger)

	processor := orchestrator.NewProcessor(
		st, st, fetch, limiter, blobs, ingestReconciler, absenceReconciler,
		cfg.FetchAPITimeout, cfg.FetchMaxAttempts, logger,
	)

	teamVelocityDealerIDs := make(map[int64]bool, len(cfg.TeamVelocityDealerIDs))
	for _, id := range cfg.TeamVelocityDealerIDs {
		teamVelocityDealerIDs[id] = true
	}

	engine := orchestrator.NewEngine(
		st, processor, logger,
		orchestrator.WithQueueSize(cfg.JobQueueSize),
		orchestrator.WithSyncMode(cfg.SyncOrchestratorMode),
		orchestrator.WithTeamVelocityDealerIDs(teamVelocityDealerIDs),
	)
	engine.Start()
	defer engine.Stop()

	healthHandler := handler.NewHealthHandler(db)
	jobHandler := handler.NewJobHandler(st, engine, logger)
	listingHandler := handler.NewListingHandler(st, logger)
	priceEventHandler := handler.NewPriceEventHandler(st, logger)

	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing)
	r.Use(middleware.Logging(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/live", healthHandler.Live)
	r.Handle(cfg.MetricsPath, promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", jobHandler.CreateJob)
		r.Get("/jobs/{id}", jobHandler.GetJob)
		r.Get("/listings", listingHandler.ListListings)
		r.Get("/price-events", priceEventHandler.ListPriceEvents)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute, // a job submission blocks for a full scrape sweep
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server_starting",
			slog.Int("port", cfg.Port),
			slog.String("environment", cfg.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server_error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", slog.String("error", err.Error()))
	}

	logger.Info("server_stopped")
}
