package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/config"
	"github.com/stemsi/nexus-backend/internal/daily"
	"github.com/stemsi/nexus-backend/internal/database"
	"github.com/stemsi/nexus-backend/internal/handler"
	"github.com/stemsi/nexus-backend/internal/kv"
	"github.com/stemsi/nexus-backend/internal/llm"
	"github.com/stemsi/nexus-backend/internal/logger"
	"github.com/stemsi/nexus-backend/internal/middleware"
	"github.com/stemsi/nexus-backend/internal/questionbank"
	"github.com/stemsi/nexus-backend/internal/questionsource"
	"github.com/stemsi/nexus-backend/internal/repository"
	"github.com/stemsi/nexus-backend/internal/router"
	"github.com/stemsi/nexus-backend/internal/service"
	"github.com/stemsi/nexus-backend/internal/validator"
	"github.com/stemsi/nexus-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL (optional) ──────────────────────────────
	var pool *pgxpool.Pool
	var settingService *service.SettingService
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()

		// Stored overrides sit beneath the environment.
		settingService = service.NewSettingService(repository.NewSettingRepository(pool), log)
		overrides, err := settingService.Overrides(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Load setting overrides failed, using environment only")
		} else if len(overrides) > 0 {
			cfg = config.Resolve(config.Layered{config.EnvProvider{}, overrides})
			log.Info().Int("count", len(overrides)).Msg("Setting overrides applied")
		}
	} else {
		log.Warn().Msg("DATABASE_URL not set, daily challenges use the local store")
	}

	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Int("llm_credentials", len(cfg.LLM.APIKeys)).
		Msg("Starting Nexus Backend")

	// ─── Connect to Redis (optional) ───────────────────────────────────
	var rdb *redis.Client
	var store kv.Store
	if cfg.RedisURL != "" {
		var err error
		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		store = kv.NewRedisStore(rdb)
	} else {
		log.Warn().Msg("REDIS_URL not set, sessions are kept in memory and workers are disabled")
		store = kv.NewMemoryStore()
	}

	// ─── Initialize Stores and Queues ──────────────────────────────────
	var dailyStore daily.Store = daily.NewLocalStore(store)
	var vault service.Vault
	var resultArchive handler.ResultArchive
	var resultRepo *repository.ResultRepository
	if pool != nil {
		dailyStore = repository.NewDailyRepository(pool)
		vault = repository.NewQuestionRepository(pool)
		resultRepo = repository.NewResultRepository(pool)
		resultArchive = resultRepo
	}

	var archiveQueue, retryQueue service.Queue
	var queueInspector handler.QueueInspector
	if rdb != nil {
		q := worker.NewRedisQueue(rdb)
		retryQueue = q
		queueInspector = q
		if pool != nil {
			archiveQueue = q
		}
	}

	schedule, err := daily.NewSchedule(cfg.Daily.Timezone, cfg.Daily.OpenHour, cfg.Daily.OpenMinute)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid daily schedule")
	}

	// ─── Initialize Question Source ────────────────────────────────────
	bank, err := questionbank.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load offline question bank")
	}
	throttle := llm.NewRateLimiter(cfg.LLM.MinInterval, cfg.LLM.APIKeys)
	var gen questionsource.Generator
	var assistant service.Assistant
	if throttle.PoolSize() > 0 {
		client := llm.New(cfg.LLM.BaseURL, cfg.LLM.Model).WithModels(cfg.LLM.AnalysisModel, cfg.LLM.VisionModel)
		gen = client
		assistant = client
	} else {
		log.Warn().Msg("No LLM credentials configured, papers come from the offline bank")
	}
	source := questionsource.New(gen, throttle, bank, questionsource.Options{
		BatchSize:   cfg.LLM.BatchSize,
		MaxRetries:  cfg.LLM.MaxRetries,
		BackoffBase: cfg.LLM.BackoffBase,
	}, log)

	// ─── Initialize Services ──────────────────────────────────────────
	sessionCtx, sessionCancel := context.WithCancel(context.Background())

	authService := service.NewAuthService(cfg)
	submitter := service.NewRetryingSubmitter(dailyStore, retryQueue, log)
	sessionService := service.NewExamSessionService(sessionCtx, store, submitter, archiveQueue, cfg, log)
	paperService := service.NewPaperService(source, vault, cfg.LLM.SubjectDelay, log)
	gate := daily.NewGate(dailyStore, schedule, cfg.MinutesPerQuestion, log)
	dailyService := service.NewDailyService(gate, dailyStore, sessionService, paperService, log)
	assistService := service.NewAssistService(assistant, throttle, llm.RetryPolicy{
		MaxRetries:  cfg.LLM.MaxRetries,
		BackoffBase: cfg.LLM.BackoffBase,
	}, sessionService, store, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	checks := map[string]handler.Pinger{}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	handlers := &router.Handlers{
		Paper:   handler.NewPaperHandler(paperService, log),
		Exam:    handler.NewExamHandler(sessionService, log),
		Result:  handler.NewResultHandler(sessionService, resultArchive, log),
		Daily:   handler.NewDailyHandler(dailyService, log),
		Setting: handler.NewSettingHandler(settingService, log),
		System:  handler.NewSystemHandler(queueInspector, sessionService, checks, log),
		WS:      handler.NewWSHandler(sessionService, dailyService, log, cfg.AllowedOrigins),
		Assist:  handler.NewAssistHandler(assistService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	startWorker := func(run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(workerCtx)
		}()
	}

	if rdb != nil {
		startWorker(worker.NewDailyAttemptWorker(dailyStore, rdb, log).Start)
		if resultRepo != nil {
			startWorker(worker.NewResultArchiveWorker(resultRepo, rdb, log).Start)
		}
	}

	if cfg.Daily.AutoPublishCron != "" {
		scheduler := service.NewDailyScheduler(dailyService, cfg.Daily.AutoPublishCron, schedule.Location(), log)
		startWorker(func(ctx context.Context) {
			if err := scheduler.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Daily scheduler failed to start")
			}
		})
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	generateLimiter := middleware.NewRateLimiter(cfg.GenerateRatePerMin, time.Minute, workerCtx.Done())
	r := router.SetupRouter(authService, handlers, generateLimiter, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
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

	// 2. Stop session timers. Slots stay persisted and resume on restart.
	sessionCancel()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
