package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	supa "github.com/supabase-community/supabase-go"

	"phrasehunt/internal/config"
	"phrasehunt/internal/database"
	"phrasehunt/internal/handlers"
	"phrasehunt/internal/identity"
	"phrasehunt/internal/imagegen"
	"phrasehunt/internal/logger"
	appmetrics "phrasehunt/internal/metrics"
	"phrasehunt/internal/middleware/ratelimit"
	"phrasehunt/internal/services"
	"phrasehunt/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	log := logger.New("phrasehunt-api", cfg.LogLevel)

	// Initialize database
	db, err := database.NewConnection(cfg.DSN)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(migrateCtx, db); err != nil {
		log.WithError(err).Fatal("Failed to migrate database")
	}
	cancelMigrate()

	// Initialize Redis
	redisClient, err := database.NewRedisConnection(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Image pipeline and identity lookup
	var renderer imagegen.Generator = imagegen.Disabled{}
	if cfg.Images.FalKey != "" {
		renderer = imagegen.NewFalClient(cfg.Images.FalBaseURL, cfg.Images.FalModel, cfg.Images.FalKey,
			&http.Client{Timeout: cfg.Images.Timeout})
	} else {
		log.Warn("FAL_KEY not set, image generation disabled")
	}

	var rewriter imagegen.PromptRewriter
	if cfg.Images.GeminiAPIKey != "" {
		gemini, err := imagegen.NewGeminiRewriter(context.Background(), cfg.Images.GeminiAPIKey, cfg.Images.GeminiModel)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize Gemini")
		}
		defer gemini.Close()
		rewriter = gemini
	}

	var (
		mirror    imagegen.Mirror
		directory identity.Directory = identity.Fallback{}
	)
	if cfg.Supabase.Enabled() {
		client, err := supa.NewClient(cfg.Supabase.URL, cfg.Supabase.Key, nil)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize Supabase client")
		}
		mirror = imagegen.NewSupabaseMirror(client, cfg.Supabase.Bucket, &http.Client{Timeout: cfg.Images.Timeout})
		directory = identity.NewSupabaseDirectory(client, cfg.Supabase.ProfileTable)
	}
	directory = identity.NewCachedDirectory(directory, redisClient, cfg.Supabase.ProfileCacheTTL, log)

	// Initialize services
	limiter := ratelimit.NewRedisLimiter(redisClient, log)
	challengeStore := store.NewRedisStore(redisClient)
	credits := services.NewCreditService(db, log, cfg.Credits.DefaultCredits, services.RefillPolicy{
		Threshold: cfg.Credits.RefillThreshold,
		Amount:    cfg.Credits.RefillAmount,
		Interval:  cfg.Credits.RefillInterval,
	})
	purchases := services.NewPurchaseService(db)

	game := services.NewGameService(services.GameDeps{
		Store:     challengeStore,
		Ledger:    credits,
		Purchases: purchases,
		Limiter:   ratelimit.NewCreationPolicy(limiter, cfg.Limits.CreationPerMinute, cfg.Limits.CreationPerDay),
		Images:    imagegen.NewPipeline(renderer, rewriter, mirror, log),
		Directory: directory,
	}, services.GameConfig{
		MaxSentenceWords: cfg.Limits.MaxSentenceWords,
		ImageTimeout:     cfg.Images.Timeout,
	}, log)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appmetrics.MustRegister(reg)

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewRequestValidator()
	e.HTTPErrorHandler = handlers.ErrorHandler(log)

	// Middleware
	e.Use(logger.RequestLogger(log))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(appmetrics.Middleware())

	h := handlers.NewHandler(game, credits, purchases, db.PingContext, challengeStore.Ping)
	throttle := ratelimit.Middleware(limiter, "player-action", time.Minute, cfg.Limits.ActionRatePerMinute)
	h.Register(e, throttle)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Start server
	go func() {
		log.WithField("port", cfg.Port).Info("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	if err := game.Wait(ctx); err != nil {
		log.WithError(err).Warn("Background image jobs still running at exit")
	}

	log.Info("Server exited")
}
