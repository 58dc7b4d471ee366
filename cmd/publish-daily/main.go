package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/stemsi/nexus-backend/internal/config"
	"github.com/stemsi/nexus-backend/internal/daily"
	"github.com/stemsi/nexus-backend/internal/database"
	"github.com/stemsi/nexus-backend/internal/llm"
	"github.com/stemsi/nexus-backend/internal/logger"
	"github.com/stemsi/nexus-backend/internal/model"
	"github.com/stemsi/nexus-backend/internal/questionbank"
	"github.com/stemsi/nexus-backend/internal/questionsource"
	"github.com/stemsi/nexus-backend/internal/repository"
	"github.com/stemsi/nexus-backend/internal/service"
)

// publish-daily generates a three-subject paper and publishes it as the
// daily challenge. Meant to run from cron before the daily opening time.
func main() {
	var (
		date      string
		mcq       int
		numerical int
		ifMissing bool
	)
	flag.StringVar(&date, "date", "", "Challenge date YYYY-MM-DD (defaults to today in DAILY_TIMEZONE)")
	flag.IntVar(&mcq, "mcq", service.DefaultDailyDistribution.MCQ, "MCQ questions per subject")
	flag.IntVar(&numerical, "numerical", service.DefaultDailyDistribution.Numerical, "Numerical questions per subject")
	flag.BoolVar(&ifMissing, "if-missing", false, "Skip when a paper is already published for the date")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}
	if mcq < 0 || numerical < 0 || mcq+numerical == 0 {
		log.Fatal().Int("mcq", mcq).Int("numerical", numerical).Msg("Invalid distribution")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	overrides, err := service.NewSettingService(repository.NewSettingRepository(pool), log).Overrides(ctx)
	if err == nil && len(overrides) > 0 {
		cfg = config.Resolve(config.Layered{config.EnvProvider{}, overrides})
	}

	// ─── Build Pipeline ────────────────────────────────────────────────
	schedule, err := daily.NewSchedule(cfg.Daily.Timezone, cfg.Daily.OpenHour, cfg.Daily.OpenMinute)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid daily schedule")
	}
	bank, err := questionbank.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load offline question bank")
	}

	throttle := llm.NewRateLimiter(cfg.LLM.MinInterval, cfg.LLM.APIKeys)
	var gen questionsource.Generator
	if throttle.PoolSize() > 0 {
		gen = llm.New(cfg.LLM.BaseURL, cfg.LLM.Model)
	}
	source := questionsource.New(gen, throttle, bank, questionsource.Options{
		BatchSize:   cfg.LLM.BatchSize,
		MaxRetries:  cfg.LLM.MaxRetries,
		BackoffBase: cfg.LLM.BackoffBase,
	}, log)

	store := repository.NewDailyRepository(pool)
	gate := daily.NewGate(store, schedule, cfg.MinutesPerQuestion, log)
	papers := service.NewPaperService(source, repository.NewQuestionRepository(pool), cfg.LLM.SubjectDelay, log)
	dailyService := service.NewDailyService(gate, store, nil, papers, log)

	if date == "" {
		date = gate.Today()
	}
	if ifMissing {
		if _, err := store.GetDailyChallenge(ctx, date); err == nil {
			log.Info().Str("date", date).Msg("Paper already published, nothing to do")
			return
		}
	}

	// ─── Generate and Publish ──────────────────────────────────────────
	challenge, paper, err := dailyService.GenerateAndPublish(ctx, date, &model.Distribution{MCQ: mcq, Numerical: numerical})
	if err != nil {
		log.Fatal().Err(err).Str("date", date).Msg("Publish failed")
	}

	for _, s := range paper.Subjects {
		log.Info().
			Str("subject", string(s.Subject)).
			Int("generated", s.Generated).
			Int("fallback", s.FromFallback).
			Bool("degraded", s.Degraded).
			Msg("Subject ready")
	}
	fmt.Printf("Published %d questions for %s\n", len(challenge.Questions), challenge.Date)
}
