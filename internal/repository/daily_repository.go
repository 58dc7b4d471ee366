package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/nexus-backend/internal/daily"
	"github.com/stemsi/nexus-backend/internal/model"
)

// DailyRepository handles daily challenge and attempt data access.
// Dates are passed and returned as YYYY-MM-DD strings.
type DailyRepository struct {
	pool *pgxpool.Pool
}

// NewDailyRepository creates a new DailyRepository.
func NewDailyRepository(pool *pgxpool.Pool) *DailyRepository {
	return &DailyRepository{pool: pool}
}

// GetDailyChallenge returns the challenge for date or daily.ErrNotFound.
func (r *DailyRepository) GetDailyChallenge(ctx context.Context, date string) (*model.DailyChallenge, error) {
	c := &model.DailyChallenge{}
	err := r.pool.QueryRow(ctx,
		`SELECT date::text, questions, created_at
		 FROM daily_challenges WHERE date = $1::date`, date,
	).Scan(&c.Date, &c.Questions, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// CreateDailyChallenge publishes the questions for a date, replacing any
// previously published set.
func (r *DailyRepository) CreateDailyChallenge(ctx context.Context, c *model.DailyChallenge) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO daily_challenges (date, questions, created_at)
		 VALUES ($1::date, $2, NOW())
		 ON CONFLICT (date) DO UPDATE
		 SET questions = EXCLUDED.questions, created_at = NOW()
		 RETURNING created_at`,
		c.Date, c.Questions,
	).Scan(&c.CreatedAt)
}

// SubmitDailyAttempt stores an attempt. A second submission for the same
// (user, date) replaces the first.
func (r *DailyRepository) SubmitDailyAttempt(ctx context.Context, a *model.DailyAttempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO daily_attempts (user_id, date, score, total_marks, stats, attempt_data, submitted_at)
		 VALUES ($1, $2::date, $3, $4, $5, $6, COALESCE($7, NOW()))
		 ON CONFLICT (user_id, date) DO UPDATE
		 SET score = EXCLUDED.score,
		     total_marks = EXCLUDED.total_marks,
		     stats = EXCLUDED.stats,
		     attempt_data = EXCLUDED.attempt_data,
		     submitted_at = EXCLUDED.submitted_at
		 RETURNING submitted_at`,
		a.UserID, a.Date, a.Score, a.TotalMarks, a.Stats, a.AttemptData, nullTime(a.SubmittedAt),
	).Scan(&a.SubmittedAt)
}

// GetUserDailyAttempt returns the user's attempt for date or daily.ErrNotFound.
func (r *DailyRepository) GetUserDailyAttempt(ctx context.Context, userID, date string) (*model.DailyAttempt, error) {
	a := &model.DailyAttempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, date::text, score, total_marks, stats, attempt_data, submitted_at
		 FROM daily_attempts
		 WHERE user_id = $1 AND date = $2::date`, userID, date,
	).Scan(&a.UserID, &a.Date, &a.Score, &a.TotalMarks, &a.Stats, &a.AttemptData, &a.SubmittedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// ListDailyAttempts returns the leaderboard for date, best score first and
// earlier submissions breaking ties.
func (r *DailyRepository) ListDailyAttempts(ctx context.Context, date string) ([]model.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, score, total_marks, COALESCE((stats->>'accuracy')::int, 0), submitted_at
		 FROM daily_attempts
		 WHERE date = $1::date
		 ORDER BY score DESC, submitted_at ASC`, date,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.LeaderboardEntry{}
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Score, &e.TotalMarks, &e.Accuracy, &e.SubmittedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return daily.Rank(entries), nil
}

// ListDailyAttemptDetails returns full attempts for date in leaderboard order.
func (r *DailyRepository) ListDailyAttemptDetails(ctx context.Context, date string) ([]model.DailyAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, date::text, score, total_marks, stats, attempt_data, submitted_at
		 FROM daily_attempts
		 WHERE date = $1::date
		 ORDER BY score DESC, submitted_at ASC`, date,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := []model.DailyAttempt{}
	for rows.Next() {
		var a model.DailyAttempt
		if err := rows.Scan(&a.UserID, &a.Date, &a.Score, &a.TotalMarks, &a.Stats, &a.AttemptData, &a.SubmittedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attempts, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return daily.ErrNotFound
	}
	return err
}
