package model

// ExamSession is the persisted descriptor of the single active exam slot.
// It is rewritten after every mutation so a restart resumes from the last one.
type ExamSession struct {
	Type                 string         `json:"type"`
	Questions            []Question     `json:"questions"`
	StartTime            int64          `json:"start_time"` // epoch ms
	DurationMinutes      int            `json:"duration_minutes"`
	Responses            map[int]string `json:"responses"`
	CurrentQuestionIndex int            `json:"current_question_index"`
	MarkedForReview      []int          `json:"marked_for_review"`
	Visited              []int          `json:"visited"`
	IsDaily              bool           `json:"is_daily,omitempty"`
	DailyDate            string         `json:"daily_date,omitempty"`
}

// Exam type labels for practice papers.
const (
	ExamTypeJEEMain     = "JEE Main"
	ExamTypeJEEAdvanced = "JEE Advanced"
)

// StartExamRequest is the payload for starting a new exam session.
type StartExamRequest struct {
	Type            string     `json:"type" binding:"required,max=120"`
	DurationMinutes int        `json:"duration_minutes" binding:"min=0,max=600"`
	Questions       []Question `json:"questions" binding:"required,min=1,max=300,dive"`
}

// AnswerRequest sets the response for the current question.
type AnswerRequest struct {
	Answer string `json:"answer" binding:"max=200"`
}

// ToggleOptionRequest toggles one MCQ option on the current question.
type ToggleOptionRequest struct {
	Option *int `json:"option" binding:"required,min=0,max=25"`
}

// NavigateRequest moves the cursor. Direction is "next", "prev" or "jump".
type NavigateRequest struct {
	Direction string `json:"direction" binding:"required,oneof=next prev jump"`
	Index     int    `json:"index" binding:"min=0"`
}
