package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"Postgen/internal/api/middleware"
	"Postgen/internal/api/routes"
	"Postgen/internal/config"
	"Postgen/internal/core/generation"
	"Postgen/internal/core/posts"
	"Postgen/internal/core/rehost"
	"Postgen/internal/core/storage"
	"Postgen/internal/db/postgres"
	"Postgen/internal/observability"
)

const (
	shutdownTimeout    = 30 * time.Second
	writeTimeoutMargin = time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Warn("Failed to close database", zap.Error(closeErr))
		}
	}()

	pingCtx, cancelPing := context.WithTimeout(ctx, 10*time.Second)
	err = db.PingContext(pingCtx)
	cancelPing()
	if err != nil {
		return fmt.Errorf("failed to connect to database (check DATABASE_URL and that Postgres is running): %w", err)
	}
	logger.Info("Connected to database")

	goose.SetLogger(observability.NewPrintfAdapter(logger))
	if err := postgres.Migrate(db); err != nil {
		return err
	}
	logger.Info("Migrations completed successfully")

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	fetcher := rehost.NewHTTPFetcher(cfg.Generation.ImageFetchTimeout, cfg.Generation.MaxSourceSizeMB)
	rehoster, err := rehost.NewRehoster(store, fetcher, cfg.Storage.Bucket, cfg.OwnedImagePrefix(), logger)
	if err != nil {
		return fmt.Errorf("failed to create image rehoster: %w", err)
	}

	// Initialize repositories and services
	postRepo := postgres.NewPostRepository(db)
	postService := posts.NewPostService(postRepo, rehoster, cfg.DefaultPreviewImageURL, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := generation.NewMetrics(registry)

	if cfg.Generation.WebhookURL == "" {
		logger.Warn("N8N_WEBHOOK_URL is not set; generation requests will fail with CONFIGURATION_ERROR")
	}
	webhook := generation.NewWebhookClient(cfg.Generation.WebhookURL, cfg.Generation.Timeout, logger)
	reconciler := generation.NewReconciler(postRepo, rehoster, cfg.Generation.RehostConcurrency, metrics, logger)
	generationService := generation.NewService(webhook, postService, reconciler, logger,
		generation.WithMetrics(metrics),
		generation.WithTimeouts(cfg.Generation.Timeout, 0),
	)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(observability.AccessLog(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(routes.CORS([]string{cfg.FrontendOrigin}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	// Rate limiting: global budget per IP, with a stricter one for generation
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, time.Minute, cfg.RateLimit.MaxClients, logger)
	generateLimiter := middleware.NewRateLimiter(cfg.RateLimit.GenerateRequestsPerMinute, time.Minute, cfg.RateLimit.MaxClients, logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimiter.Middleware)
		routes.RegisterPostRoutes(r, postService, generationService, generateLimiter, logger)
	})

	server := newHTTPServer(cfg, r)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("port", cfg.Port),
			zap.String("storage_backend", cfg.Storage.Backend),
			zap.String("frontend_origin", cfg.FrontendOrigin))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// newHTTPServer sizes the write deadline so a finished generation can still be written
func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Generate may wait on the webhook and then on both persistence steps
		WriteTimeout: generation.MaxDuration(cfg.Generation.Timeout, 0) + writeTimeoutMargin,
		IdleTimeout:  2 * time.Minute,
	}
}

// newStore builds the object store for the configured backend.
// The returned func releases backend resources.
func newStore(ctx context.Context, cfg *config.Config) (storage.Store, func(), error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendGCS:
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create GCS client: %w", err)
		}
		store, err := storage.NewGCSStore(client, cfg.Storage.PublicBaseURL)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil
	default:
		store, err := storage.NewSupabaseStore(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey,
			cfg.Storage.PublicBaseURL, cfg.Generation.ImageFetchTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Supabase store: %w", err)
		}
		return store, func() {}, nil
	}
}
