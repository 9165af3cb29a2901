package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"classroom-backend/internal/config"
	"classroom-backend/internal/database"
	"classroom-backend/internal/handlers"
	"classroom-backend/internal/logger"
	"classroom-backend/internal/middleware"
	"classroom-backend/internal/repository"
	"classroom-backend/internal/router"
	"classroom-backend/internal/services"
	"classroom-backend/internal/websocket"
	"classroom-backend/internal/worker"
	"classroom-backend/migrations"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.LogLevel)
	log.Info().Str("env", cfg.Env).Msg("starting classroom backend")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer pool.Close()
	log.Info().Msg("postgres connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisClients.Close()
	log.Info().Msg("redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	// ──── Initialize Repositories ────
	scheduleRepo := repository.NewScheduleRepo(pool, cfg.LiveSessionDuration)
	lessonRepo := repository.NewLessonRepo(pool)
	submissionRepo := repository.NewSubmissionRepo(pool)
	progressRepo := repository.NewPlaybackProgressRepo(pool)

	// ──── Initialize Services ────
	feedbackService, err := services.NewFeedbackService(ctx, cfg.GeminiAPIKey, cfg.GeminiConcurrentReqs, log)
	if err != nil {
		log.Fatal().Err(err).Msg("gemini client initialization failed")
	}
	defer feedbackService.Close()

	mediaService := services.NewMediaService(cfg.CaptionPrimaryLanguage, cfg.CaptionSecondaryLanguage, log)
	playbackRegistry := services.NewPlaybackRegistry(lessonRepo, mediaService, progressRepo, cfg.LessonFetchTimeout, log)
	orchestrator := services.NewSessionOrchestrator(
		services.OrchestratorOptions{
			LessonFetchTimeout:  cfg.LessonFetchTimeout,
			DefaultExamMaxScore: cfg.DefaultExamMaxScore,
		},
		scheduleRepo,
		lessonRepo,
		submissionRepo,
		services.NewRedisEffectSink(redisClients.Queue),
		feedbackService,
		playbackRegistry,
		log,
	)
	ticker := services.NewStatusTicker(scheduleRepo, orchestrator.Resolver(), redisClients.Queue, cfg.StatusTickInterval, time.Now, log)
	workerPool := worker.NewPool(redisClients.Queue, scheduleRepo, submissionRepo, redisClients.Queue, cfg.EffectWorkers, log)

	// ──── Initialize Handlers ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	submitLimiter := middleware.NewRateLimiter(10, time.Minute)
	defer submitLimiter.Stop()

	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, orchestrator, log)
	r := router.New(
		log,
		jwtAuth,
		submitLimiter,
		handlers.NewSessionHandler(orchestrator, time.Now),
		handlers.NewPlaybackHandler(orchestrator),
		handlers.NewHealthHandler(map[string]handlers.Pinger{
			"postgres": pool,
			"redis":    redisClients,
		}),
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ──── Run until a signal arrives ────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return workerPool.Run(gctx) })
	g.Go(func() error { return ticker.Run(gctx) })
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		playbackRegistry.CloseAll(shutdownCtx)
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}
