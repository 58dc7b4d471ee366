package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/nexus-backend/internal/model"
)

// QuestionRepository handles the question vault: every generated question
// is kept here so it can be reviewed and reused.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// SaveMany inserts questions in one batch, skipping statements the vault
// already holds for the same subject. It returns the number inserted.
func (r *QuestionRepository) SaveMany(ctx context.Context, qs []model.Question) (int, error) {
	if len(qs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, q := range qs {
		batch.Queue(
			`INSERT INTO questions (id, subject, chapter, type, difficulty, statement, options,
			                        correct_answer, solution, explanation, concept, marking_scheme)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT DO NOTHING`,
			q.ID, q.Subject, q.Chapter, q.Type, q.Difficulty, q.Statement, nonNil(q.Options),
			q.CorrectAnswer, q.Solution, q.Explanation, q.Concept, q.MarkingScheme,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range qs {
		tag, err := br.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// List returns the newest vault questions matching the query.
func (r *QuestionRepository) List(ctx context.Context, q model.VaultQuestionsQuery) ([]model.Question, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, subject, chapter, type, difficulty, statement, options,
		        correct_answer, solution, explanation, concept, marking_scheme
		 FROM questions
		 WHERE subject = $1 AND ($2 = '' OR chapter ILIKE '%' || $2 || '%')
		 ORDER BY created_at DESC
		 LIMIT $3`, q.Subject, q.Chapter, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		var m model.Question
		if err := rows.Scan(&m.ID, &m.Subject, &m.Chapter, &m.Type, &m.Difficulty, &m.Statement, &m.Options,
			&m.CorrectAnswer, &m.Solution, &m.Explanation, &m.Concept, &m.MarkingScheme); err != nil {
			return nil, err
		}
		questions = append(questions, m)
	}
	return questions, rows.Err()
}

func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
