package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/config"
	"github.com/stemsi/nexus-backend/internal/model"
)

// AttemptStore receives daily attempts. Submissions are upserts, so a retry
// of an attempt that did land is harmless.
type AttemptStore interface {
	SubmitDailyAttempt(ctx context.Context, a *model.DailyAttempt) error
}

// DailyAttemptWorker retries daily attempt submissions that failed inline.
type DailyAttemptWorker struct {
	store      AttemptStore
	rdb        *redis.Client
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewDailyAttemptWorker creates a new DailyAttemptWorker.
func NewDailyAttemptWorker(store AttemptStore, rdb *redis.Client, log zerolog.Logger) *DailyAttemptWorker {
	return &DailyAttemptWorker{
		store:      store,
		rdb:        rdb,
		retryDelay: 5 * time.Second,
		log:        log.With().Str("component", "daily_attempt_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *DailyAttemptWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *DailyAttemptWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.RetryDailyAttemptsQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var attempt model.DailyAttempt
	if err := json.Unmarshal([]byte(result[1]), &attempt); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.store.SubmitDailyAttempt(ctx, &attempt); err != nil {
		w.log.Warn().Err(err).
			Str("user_id", attempt.UserID).
			Str("date", attempt.Date).
			Dur("retry_in", w.retryDelay).
			Msg("Submit failed, requeueing")
		w.rdb.RPush(ctx, config.WorkerKey.RetryDailyAttemptsQueue, result[1])

		select {
		case <-ctx.Done():
		case <-time.After(w.retryDelay):
		}
		return
	}

	w.log.Info().Str("user_id", attempt.UserID).Str("date", attempt.Date).Msg("Daily attempt submitted on retry")
}

// drain processes all remaining items in the queue before shutdown.
func (w *DailyAttemptWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.RetryDailyAttemptsQueue).Result()
		if err != nil {
			break
		}

		var attempt model.DailyAttempt
		if err := json.Unmarshal([]byte(raw), &attempt); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.store.SubmitDailyAttempt(ctx, &attempt); err != nil {
			w.log.Error().Err(err).Msg("Drain submit error")
			w.rdb.RPush(ctx, config.WorkerKey.RetryDailyAttemptsQueue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
