package model

import "time"

// DailyChallenge is the globally shared paper for one calendar date.
type DailyChallenge struct {
	Date      string     `json:"date"` // YYYY-MM-DD
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"created_at"`
}

// AttemptStats is the free-form summary stored with a daily attempt.
type AttemptStats struct {
	Accuracy    int   `json:"accuracy"`
	CompletedAt int64 `json:"completed_at"`
}

// DailyAttempt is a user's single scored attempt at a daily challenge.
type DailyAttempt struct {
	UserID      string             `json:"user_id"`
	Date        string             `json:"date"`
	Score       int                `json:"score"`
	TotalMarks  int                `json:"total_marks"`
	Stats       AttemptStats       `json:"stats"`
	AttemptData []AnsweredQuestion `json:"attempt_data"`
	SubmittedAt time.Time          `json:"submitted_at"`
}

// LeaderboardEntry is one row of a daily leaderboard.
type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	UserID      string    `json:"user_id"`
	Score       int       `json:"score"`
	TotalMarks  int       `json:"total_marks"`
	Accuracy    int       `json:"accuracy"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// SubjectStats counts one subject's answers in an attempt.
type SubjectStats struct {
	Correct     int `json:"correct"`
	Wrong       int `json:"wrong"`
	Unattempted int `json:"unattempted"`
	Score       int `json:"score"`
}

// Breakdown splits an attempt by subject. NegativeMarks is the total
// deducted for wrong answers.
type Breakdown struct {
	Subjects      map[Subject]SubjectStats `json:"subjects"`
	NegativeMarks int                      `json:"negative_marks"`
	Unattempted   int                      `json:"unattempted"`
}

// AttemptAnalysis is one row of the admin result analysis for a date.
type AttemptAnalysis struct {
	LeaderboardEntry
	Breakdown
}

// PublishDailyRequest publishes an explicit question set for a date.
type PublishDailyRequest struct {
	Date      string     `json:"date" binding:"omitempty,datetime=2006-01-02"`
	Questions []Question `json:"questions" binding:"required,min=1,max=300,dive"`
}

// GenerateDailyRequest generates and publishes a full paper for a date.
type GenerateDailyRequest struct {
	Date         string        `json:"date" binding:"omitempty,datetime=2006-01-02"`
	Distribution *Distribution `json:"distribution"`
}
