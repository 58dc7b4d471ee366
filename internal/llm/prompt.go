package llm

import (
	"fmt"
	"strings"

	"github.com/stemsi/nexus-backend/internal/model"
)

// PromptSpec describes one generation batch.
type PromptSpec struct {
	Subject    model.Subject
	ExamType   string
	MCQ        int
	Numerical  int
	Chapters   []string
	Difficulty string
	Topics     []string
}

// BuildPrompt renders the user prompt for a batch.
func BuildPrompt(s PromptSpec) string {
	var b strings.Builder

	examType := s.ExamType
	if examType == "" {
		examType = model.ExamTypeJEEMain
	}
	difficulty := s.Difficulty
	if difficulty == "" {
		difficulty = "Hard"
	}

	fmt.Fprintf(&b, "Generate %d original %s questions for %s.\n", s.MCQ+s.Numerical, s.Subject, examType)
	fmt.Fprintf(&b, "Exactly %d must be MCQ (4 options) and %d must be Numerical (no options, numeric answer).\n", s.MCQ, s.Numerical)
	fmt.Fprintf(&b, "Difficulty: %s.\n", difficulty)

	if len(s.Chapters) > 0 {
		fmt.Fprintf(&b, "Restrict to these chapters: %s.\n", strings.Join(s.Chapters, ", "))
	} else {
		b.WriteString("Cover the full JEE syllabus for the subject with a balanced chapter spread.\n")
	}
	if len(s.Topics) > 0 {
		fmt.Fprintf(&b, "Emphasize these topics: %s.\n", strings.Join(s.Topics, ", "))
	}

	b.WriteString("For MCQ, correctAnswer is the zero-based option index; join several indices with commas when more than one option is correct.\n")
	b.WriteString("For Numerical, correctAnswer is the bare number without units.\n")
	b.WriteString("Include a full solution, a one-line explanation and the core concept for each question.\n")
	b.WriteString(`Reply with {"questions": [...]} and nothing else.`)

	return b.String()
}
