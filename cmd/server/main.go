package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/studycircle/studycircle-backend/internal/config"
	"github.com/studycircle/studycircle-backend/internal/database"
	"github.com/studycircle/studycircle-backend/internal/handler"
	"github.com/studycircle/studycircle-backend/internal/logger"
	"github.com/studycircle/studycircle-backend/internal/realtime"
	"github.com/studycircle/studycircle-backend/internal/repository"
	"github.com/studycircle/studycircle-backend/internal/router"
	"github.com/studycircle/studycircle-backend/internal/service"
	"github.com/studycircle/studycircle-backend/internal/validator"
	"github.com/studycircle/studycircle-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting StudyCircle Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	groupRepo := repository.NewGroupRepository(pool)
	chatRepo := repository.NewChatRepository(pool)
	notifRepo := repository.NewNotificationRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(userRepo, cfg, log)
	notifService := service.NewNotificationService(notifRepo, rdb, log)
	groupService := service.NewGroupService(groupRepo, chatRepo, userRepo, notifService, rdb, cfg, log)
	chatService := service.NewChatService(chatRepo, groupRepo, rdb, cfg, log)

	// ─── Realtime Coordinator ─────────────────────────────────────────
	registry := realtime.NewRegistry()
	coordinator := realtime.NewCoordinator(registry, groupRepo, rdb, log)
	defer coordinator.Close()

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Group:        handler.NewGroupHandler(groupService),
		Submission:   handler.NewSubmissionHandler(groupService),
		Chat:         handler.NewChatHandler(chatService),
		Notification: handler.NewNotificationHandler(notifService),
		WS:           handler.NewWSHandler(coordinator, chatService, groupService, authService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	notifyWorker := worker.NewNotifyWorker(notifRepo, rdb, log)
	challengeWorker := worker.NewChallengeWorker(groupService, cfg.ChallengeSweepInterval, log)

	go notifyWorker.Start(workerCtx)
	go challengeWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
