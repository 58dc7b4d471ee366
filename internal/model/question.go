package model

import "fmt"

// Subject is one of the three JEE subjects.
type Subject string

const (
	SubjectPhysics     Subject = "Physics"
	SubjectChemistry   Subject = "Chemistry"
	SubjectMathematics Subject = "Mathematics"
)

// Subjects lists every subject in paper order.
var Subjects = []Subject{SubjectPhysics, SubjectChemistry, SubjectMathematics}

// Valid reports whether s is a known subject.
func (s Subject) Valid() bool {
	switch s {
	case SubjectPhysics, SubjectChemistry, SubjectMathematics:
		return true
	}
	return false
}

type QuestionType string

const (
	QuestionTypeMCQ       QuestionType = "MCQ"
	QuestionTypeNumerical QuestionType = "Numerical"
)

// MarkingScheme holds the marks awarded for a correct answer and deducted
// for a wrong one. Unattempted questions never score.
type MarkingScheme struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
}

// Question is a single exam question.
//
// MCQ questions carry at least two options and CorrectAnswer holds the
// zero-based option indices as a sorted comma-joined string ("0,2").
// Numerical questions carry no options and CorrectAnswer is a numeric string.
type Question struct {
	ID            string        `json:"id"`
	Subject       Subject       `json:"subject" binding:"required,subject"`
	Chapter       string        `json:"chapter"`
	Type          QuestionType  `json:"type" binding:"required,oneof=MCQ Numerical"`
	Difficulty    string        `json:"difficulty"`
	Statement     string        `json:"statement" binding:"required"`
	Options       []string      `json:"options,omitempty"`
	CorrectAnswer string        `json:"correct_answer" binding:"required"`
	Solution      string        `json:"solution"`
	Explanation   string        `json:"explanation"`
	Concept       string        `json:"concept"`
	MarkingScheme MarkingScheme `json:"marking_scheme"`
}

// EnsureUniqueIDs gives every question in qs an id distinct from the ones
// before it. Missing ids become "q-<stamp>-<index>"; a repeated id gets
// "-<stamp>-<index>" appended.
func EnsureUniqueIDs(qs []Question, stamp int64) {
	seen := make(map[string]struct{}, len(qs))
	for i := range qs {
		if qs[i].ID == "" {
			qs[i].ID = fmt.Sprintf("q-%d-%d", stamp, i)
		}
		if _, dup := seen[qs[i].ID]; dup {
			qs[i].ID = fmt.Sprintf("%s-%d-%d", qs[i].ID, stamp, i)
		}
		seen[qs[i].ID] = struct{}{}
	}
}

// DefaultMarkingScheme returns the JEE Main scheme for the given type.
func DefaultMarkingScheme(t QuestionType) MarkingScheme {
	if t == QuestionTypeMCQ {
		return MarkingScheme{Positive: 4, Negative: 1}
	}
	return MarkingScheme{Positive: 4, Negative: 0}
}

// Distribution splits a question count between MCQ and Numerical.
type Distribution struct {
	MCQ       int `json:"mcq" binding:"min=0,max=100"`
	Numerical int `json:"numerical" binding:"min=0,max=100"`
}

// Total returns the number of questions in the distribution.
func (d Distribution) Total() int {
	return d.MCQ + d.Numerical
}

// DefaultDistribution splits count roughly 80/20 with MCQ rounded up.
func DefaultDistribution(count int) Distribution {
	mcq := (4*count + 4) / 5
	if mcq > count {
		mcq = count
	}
	return Distribution{MCQ: mcq, Numerical: count - mcq}
}

// VaultQuestionsQuery filters saved questions.
type VaultQuestionsQuery struct {
	Subject Subject `form:"subject" binding:"required,subject"`
	Chapter string  `form:"chapter" binding:"max=200"`
	Limit   int     `form:"limit" binding:"min=0,max=200"`
}
