package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"kcalify-backend/internal/ai"
	"kcalify-backend/internal/config"
	"kcalify-backend/internal/database"
	"kcalify-backend/internal/handlers"
	"kcalify-backend/internal/logger"
	"kcalify-backend/internal/metrics"
	"kcalify-backend/internal/middleware"
	"kcalify-backend/internal/nutrition"
	"kcalify-backend/internal/services"
	"kcalify-backend/internal/storage"
	"kcalify-backend/internal/supabase"
	"kcalify-backend/internal/telemetry"
)

const shutdownGrace = 10 * time.Second

// mealStore is what every persistence backend provides.
type mealStore interface {
	services.MealWriter
	services.MealReader
	Close() error
}

func runServe(ctx context.Context, configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	log := logger.Module("server")

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	reporter, err := telemetry.Init(telemetry.Options{DSN: cfg.SentryDSN, Environment: cfg.Environment, Release: "kcalify-backend"})
	if err != nil {
		log.Warn("error reporting disabled", "error", err)
	}
	defer reporter.Flush()

	m, err := metrics.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	store, err := openMealStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	images, closeImages, err := openImageStore(ctx, cfg)
	if err != nil {
		if cfg.StorageRequired {
			return err
		}
		log.Warn("image storage disabled", "provider", cfg.StorageProvider, "error", err)
		images, closeImages = nil, nil
	}
	if closeImages != nil {
		defer closeImages()
	}

	analyzer, err := ai.NewGeminiAnalyzer(ctx, ai.VertexConfig{
		ProjectID:       cfg.GoogleProjectID,
		Location:        cfg.GoogleLocation,
		CredentialsFile: cfg.GoogleCredentialsFile,
		Model:           cfg.AIModel,
		Temperature:     cfg.AITemperature,
	})
	if err != nil {
		// A nil analyzer answers every call with ErrNotConfigured, so scans
		// degrade instead of failing startup.
		log.Warn("ai model unavailable, scans will return degraded results", "error", err)
	}
	defer analyzer.Close()

	var reader services.MealReader
	var writer services.MealWriter
	if store != nil {
		reader, writer = store, store
	}
	history := services.NewHistoryService(reader, cfg.HistoryCacheTTL)

	mealService, err := services.NewMealService(services.MealServiceDeps{
		Analyzer:   analyzer,
		Normalizer: nutrition.NewNormalizer(),
		Images:     images,
		Meals:      writer,
		Recorder:   m,
		History:    history,
	}, services.MealServiceConfig{
		AITimeout:       cfg.AITimeout,
		StorageRequired: cfg.StorageRequired,
		GuestMarkers:    cfg.GuestUserMarkers,
		MaxImageBytes:   cfg.MaxUploadBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to create meal service: %w", err)
	}

	var pinger handlers.Pinger
	if p, ok := store.(handlers.Pinger); ok {
		pinger = p
	}

	router := newRouter(cfg, routerDeps{
		scanner:  mealService,
		history:  history,
		reporter: reporter,
		metrics:  m,
		pinger:   pinger,
	})

	log.Info("kcalify starting",
		"environment", cfg.Environment,
		"database", cfg.DatabaseDriver,
		"storage", cfg.StorageProvider,
		"storage_required", cfg.StorageRequired,
		"auth", cfg.AuthEnabled(),
		"model", cfg.AIModel,
	)
	return serveHTTP(ctx, cfg.Port, router, log)
}

type routerDeps struct {
	scanner  handlers.Scanner
	history  handlers.HistoryReader
	reporter *telemetry.Reporter
	metrics  *metrics.Metrics
	pinger   handlers.Pinger
}

func newRouter(cfg *config.Config, deps routerDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger.Module("http")))
	router.Use(middleware.Metrics(deps.metrics))

	scanHandler := handlers.NewScanHandler(deps.scanner, deps.reporter, cfg.DefaultUserID, cfg.MaxUploadBytes)
	mealsHandler := handlers.NewMealsHandler(deps.history)
	wsHandler := handlers.NewWebSocketHandler(deps.scanner, deps.history, deps.reporter, cfg.DefaultUserID, cfg.MaxUploadBytes)
	scanLimit := middleware.RateLimit(cfg.ScanRateLimit, cfg.ScanRateBurst)

	// Health and metrics (no auth)
	router.GET("/health", handlers.HealthHandler)
	router.GET("/ready", handlers.ReadinessHandler(deps.pinger))
	router.GET("/metrics", gin.WrapH(deps.metrics.Handler()))

	var required, optional []gin.HandlerFunc
	if cfg.AuthEnabled() {
		required = []gin.HandlerFunc{middleware.AuthMiddleware(cfg), middleware.RequireMatchingUser()}
		optional = []gin.HandlerFunc{middleware.OptionalAuth(cfg), middleware.RequireMatchingUser()}
	}

	// Legacy prediction endpoint; guests may call it without a token
	router.POST("/predict/calories", chain(optional, scanLimit, scanHandler.ScanMeal)...)

	api := router.Group("/api/v1", required...)
	api.POST("/scan-meal/:user_id", scanLimit, scanHandler.ScanMeal)
	api.GET("/meals/:user_id", mealsHandler.ListMeals)
	api.GET("/meals/:user_id/:meal_id", mealsHandler.GetMeal)

	router.GET("/ws", chain(required, wsHandler.Serve)...)

	return router
}

func chain(base []gin.HandlerFunc, hs ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(base)+len(hs))
	out = append(out, base...)
	return append(out, hs...)
}

func openMealStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (mealStore, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		migrator, err := database.NewMigrator(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn("failed to initialize migrator", "error", err)
		} else {
			if err := migrator.Run(ctx); err != nil {
				log.Warn("migration failed", "error", err)
			}
			migrator.Close()
		}

		store, err := database.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return store, nil

	case config.DriverSQLite:
		store, err := database.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return store, nil

	case config.DriverSupabase:
		client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabasePublishableKey)
		if err != nil {
			return nil, err
		}
		return supabase.NewMealRestStore(client, cfg.MealTable), nil

	default:
		log.Info("meal history disabled; scans will not be saved")
		return nil, nil
	}
}

func openImageStore(ctx context.Context, cfg *config.Config) (storage.ImageStore, func() error, error) {
	switch cfg.StorageProvider {
	case config.ProviderSupabase:
		client, err := supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabasePublishableKey, cfg.SupabaseStorageBucket)
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil

	case config.ProviderGCS:
		store, err := storage.NewGCSStore(ctx, storage.GCSConfig{
			Bucket:          cfg.GCSBucketName,
			CredentialsFile: cfg.GoogleCredentialsFile,
			PublicACL:       cfg.GCSPublicACL,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		return nil, nil, nil
	}
}

// serveHTTP runs the server until ctx is cancelled, then drains in-flight
// requests for up to shutdownGrace.
func serveHTTP(ctx context.Context, port string, handler http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
