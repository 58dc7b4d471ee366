package model

import "time"

// AnsweredQuestion is a question annotated with the user's answer.
type AnsweredQuestion struct {
	Question
	UserAnswer string `json:"user_answer,omitempty"`
	IsCorrect  bool   `json:"is_correct"`
}

// Result is the immutable record of a finalized session.
type Result struct {
	ID            string             `json:"id"`
	Score         int                `json:"score"`
	TotalPossible int                `json:"total_possible"`
	Accuracy      int                `json:"accuracy"`
	CompletedAt   int64              `json:"completed_at"` // epoch ms
	Questions     []AnsweredQuestion `json:"questions"`
	Type          string             `json:"type"`
}

// ResultSummary is the list view of a result, without questions.
type ResultSummary struct {
	ID            string `json:"id"`
	Score         int    `json:"score"`
	TotalPossible int    `json:"total_possible"`
	Accuracy      int    `json:"accuracy"`
	CompletedAt   int64  `json:"completed_at"`
	Type          string `json:"type"`
	Questions     int    `json:"questions"`
}

// Summary drops the per-question payload.
func (r *Result) Summary() ResultSummary {
	return ResultSummary{
		ID:            r.ID,
		Score:         r.Score,
		TotalPossible: r.TotalPossible,
		Accuracy:      r.Accuracy,
		CompletedAt:   r.CompletedAt,
		Type:          r.Type,
		Questions:     len(r.Questions),
	}
}

// ArchivedResult is the queue payload persisted by the archive worker.
type ArchivedResult struct {
	UserID string  `json:"user_id"`
	Result *Result `json:"result"`
}

// Insight is model-written coaching for one result. Available is false when
// the model could not be reached and Text holds a placeholder.
type Insight struct {
	ResultID  string    `json:"result_id"`
	Text      string    `json:"text"`
	Available bool      `json:"available"`
	CreatedAt time.Time `json:"created_at"`
}
