package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/nexus-backend/internal/model"
)

// ResultRepository persists finalized exam results.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// BulkInsert writes a batch in a single statement using UNNEST. Results
// already stored are skipped.
func (r *ResultRepository) BulkInsert(ctx context.Context, batch []*model.ArchivedResult) error {
	n := len(batch)
	if n == 0 {
		return nil
	}

	ids := make([]string, 0, n)
	users := make([]string, 0, n)
	types := make([]string, 0, n)
	scores := make([]int32, 0, n)
	totals := make([]int32, 0, n)
	accuracies := make([]int32, 0, n)
	completedAts := make([]time.Time, 0, n)
	payloads := make([]string, 0, n)

	for _, a := range batch {
		raw, err := json.Marshal(a.Result.Questions)
		if err != nil {
			return fmt.Errorf("encode result %s: %w", a.Result.ID, err)
		}
		ids = append(ids, a.Result.ID)
		users = append(users, a.UserID)
		types = append(types, a.Result.Type)
		scores = append(scores, int32(a.Result.Score))
		totals = append(totals, int32(a.Result.TotalPossible))
		accuracies = append(accuracies, int32(a.Result.Accuracy))
		completedAts = append(completedAts, time.UnixMilli(a.Result.CompletedAt))
		payloads = append(payloads, string(raw))
	}

	query := `
		INSERT INTO exam_results (id, user_id, type, score, total_possible, accuracy, completed_at, questions)
		SELECT u.id, u.user_id, u.type, u.score, u.total_possible, u.accuracy, u.completed_at, u.questions::jsonb
		FROM UNNEST(
			$1::text[],
			$2::text[],
			$3::text[],
			$4::int[],
			$5::int[],
			$6::int[],
			$7::timestamptz[],
			$8::text[]
		) AS u (id, user_id, type, score, total_possible, accuracy, completed_at, questions)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query, ids, users, types, scores, totals, accuracies, completedAts, payloads)
	return err
}

// Insert writes a single result.
func (r *ResultRepository) Insert(ctx context.Context, a *model.ArchivedResult) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_results (id, user_id, type, score, total_possible, accuracy, completed_at, questions)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		a.Result.ID, a.UserID, a.Result.Type, a.Result.Score, a.Result.TotalPossible,
		a.Result.Accuracy, time.UnixMilli(a.Result.CompletedAt), a.Result.Questions,
	)
	return err
}

// ListByUser returns the user's archived results, newest first.
func (r *ResultRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.ResultSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, type, score, total_possible, accuracy, completed_at, jsonb_array_length(questions)
		 FROM exam_results
		 WHERE user_id = $1
		 ORDER BY completed_at DESC
		 LIMIT $2`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ResultSummary{}
	for rows.Next() {
		var (
			s         model.ResultSummary
			completed time.Time
		)
		if err := rows.Scan(&s.ID, &s.Type, &s.Score, &s.TotalPossible, &s.Accuracy, &completed, &s.Questions); err != nil {
			return nil, err
		}
		s.CompletedAt = completed.UnixMilli()
		out = append(out, s)
	}
	return out, rows.Err()
}
