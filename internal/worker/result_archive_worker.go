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

const (
	ArchiveBatchSize    = 50
	ArchiveBatchTimeout = 2 * time.Second
	ArchivePollTimeout  = 1 * time.Second
)

// ResultStore is the durable destination of archived results.
type ResultStore interface {
	BulkInsert(ctx context.Context, batch []*model.ArchivedResult) error
	Insert(ctx context.Context, a *model.ArchivedResult) error
}

// ResultArchiveWorker drains persist_results_queue into the results table
// in batches.
type ResultArchiveWorker struct {
	store ResultStore
	rdb   *redis.Client
	log   zerolog.Logger
}

func NewResultArchiveWorker(store ResultStore, rdb *redis.Client, log zerolog.Logger) *ResultArchiveWorker {
	return &ResultArchiveWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "result_archive_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ResultArchiveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultArchiveWorker started")

	batch := make([]*model.ArchivedResult, 0, ArchiveBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ArchiveBatchSize || time.Since(lastFlush) >= ArchiveBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested, flushing remaining batch")
			w.flushSafe(context.Background(), batch)
			w.drain(context.Background())
			return

		default:
			item, err := w.rdb.BLPop(ctx, ArchivePollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p model.ArchivedResult
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil || p.Result == nil {
				w.log.Error().Err(err).Msg("Invalid result payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

// ----------------------------------------------------------------
// Batch insert with single-row fallback
// ----------------------------------------------------------------

func (w *ResultArchiveWorker) flushSafe(ctx context.Context, batch []*model.ArchivedResult) {
	if len(batch) == 0 {
		return
	}

	if err := w.store.BulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("size", len(batch)).Msg("Bulk insert failed, using fallback")

		for _, p := range batch {
			if err := w.store.Insert(ctx, p); err != nil {
				w.log.Error().Err(err).Str("result_id", p.Result.ID).Msg("Single insert failed, requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
			}
		}
		return
	}

	w.log.Debug().Int("size", len(batch)).Msg("Results archived")
}

// drain archives whatever is still queued at shutdown, one batch at a time.
func (w *ResultArchiveWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raws, err := w.rdb.LPopCount(ctx, config.WorkerKey.PersistResultsQueue, ArchiveBatchSize).Result()
		if err != nil || len(raws) == 0 {
			break
		}

		batch := make([]*model.ArchivedResult, 0, len(raws))
		for _, raw := range raws {
			var p model.ArchivedResult
			if err := json.Unmarshal([]byte(raw), &p); err != nil || p.Result == nil {
				w.log.Error().Err(err).Msg("Drain unmarshal error")
				continue
			}
			batch = append(batch, &p)
		}

		if err := w.store.BulkInsert(ctx, batch); err != nil {
			w.log.Error().Err(err).Msg("Drain insert error")
			for _, raw := range raws {
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
			}
			break
		}
		drained += len(batch)
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining results")
	}
}
