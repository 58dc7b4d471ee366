// Package scoring normalizes answers and scores questions. Everything here is
// pure and safe for concurrent use.
package scoring

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/stemsi/nexus-backend/internal/model"
)

// Normalize canonicalizes a raw answer for comparison.
//
// A value without a comma is trimmed. A comma list is split, each part
// trimmed, sorted lexicographically and rejoined with ",". Numeric values are
// compared as strings, so "5" and "5.0" differ.
func Normalize(raw string) string {
	if !strings.Contains(raw, ",") {
		return strings.TrimSpace(raw)
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// Outcome is the scoring result for a single question.
type Outcome struct {
	IsCorrect bool
	Delta     int
}

// Score grades one answer. An empty answer is unattempted and scores zero.
func Score(q model.Question, raw string) Outcome {
	user := Normalize(raw)
	if user == "" {
		return Outcome{}
	}
	if user == Normalize(q.CorrectAnswer) {
		return Outcome{IsCorrect: true, Delta: q.MarkingScheme.Positive}
	}
	return Outcome{Delta: -q.MarkingScheme.Negative}
}

// Evaluation aggregates the scoring of a whole paper.
type Evaluation struct {
	Score         int
	TotalPossible int
	Accuracy      int
	Answered      []model.AnsweredQuestion
}

// Evaluate scores every question against the response map keyed by
// question index.
func Evaluate(questions []model.Question, responses map[int]string) Evaluation {
	ev := Evaluation{Answered: make([]model.AnsweredQuestion, len(questions))}

	for i, q := range questions {
		raw := responses[i]
		out := Score(q, raw)
		ev.Score += out.Delta
		ev.TotalPossible += q.MarkingScheme.Positive
		ev.Answered[i] = model.AnsweredQuestion{
			Question:   q,
			UserAnswer: raw,
			IsCorrect:  out.IsCorrect,
		}
	}

	ev.Accuracy = Accuracy(ev.Score, ev.TotalPossible)
	return ev
}

// Accuracy returns round(score/total*100) clamped to [0, 100].
func Accuracy(score, total int) int {
	if total <= 0 {
		return 0
	}
	pct := int(math.Round(float64(score) / float64(total) * 100))
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// SubjectBreakdown tallies answered questions per subject. Every known
// subject is present in the result, even with no questions.
func SubjectBreakdown(answered []model.AnsweredQuestion) model.Breakdown {
	b := model.Breakdown{Subjects: make(map[model.Subject]model.SubjectStats, len(model.Subjects))}
	for _, s := range model.Subjects {
		b.Subjects[s] = model.SubjectStats{}
	}

	for _, aq := range answered {
		st, ok := b.Subjects[aq.Subject]
		if !ok {
			continue
		}
		switch {
		case aq.IsCorrect:
			st.Correct++
			st.Score += aq.MarkingScheme.Positive
		case Normalize(aq.UserAnswer) != "":
			st.Wrong++
			st.Score -= aq.MarkingScheme.Negative
			b.NegativeMarks += aq.MarkingScheme.Negative
		default:
			st.Unattempted++
			b.Unattempted++
		}
		b.Subjects[aq.Subject] = st
	}
	return b
}

// ToggleOption adds or removes option from a comma-joined MCQ selection and
// returns the selection sorted numerically. An empty result means nothing is
// selected.
func ToggleOption(current string, option int) string {
	selected := make(map[int]struct{})
	for _, p := range strings.Split(current, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		selected[n] = struct{}{}
	}

	if _, ok := selected[option]; ok {
		delete(selected, option)
	} else {
		selected[option] = struct{}{}
	}

	indices := make([]int, 0, len(selected))
	for n := range selected {
		indices = append(indices, n)
	}
	sort.Ints(indices)

	parts := make([]string, len(indices))
	for i, n := range indices {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
