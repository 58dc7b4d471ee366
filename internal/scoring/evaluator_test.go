package scoring

import (
	"testing"

	"github.com/stemsi/nexus-backend/internal/model"
)

func mcq(answer string) model.Question {
	return model.Question{
		Type:          model.QuestionTypeMCQ,
		Options:       []string{"a", "b", "c", "d"},
		CorrectAnswer: answer,
		MarkingScheme: model.MarkingScheme{Positive: 4, Negative: 1},
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"single trimmed", "  50 ", "50"},
		{"decimal untouched", "50.0", "50.0"},
		{"multi select reordered", "1, 0", "0,1"},
		{"multi select canonical", "0,1", "0,1"},
		{"lexicographic order", "2,10", "10,2"},
		{"empty parts kept", " , ", ","},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"", " ", "3", " 3 ", "1, 0", "2,1,0", " a , b ,", ",,", "10,2,1", "-13", "x,  y"}

	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestScore(t *testing.T) {
	q := mcq("2")

	tests := []struct {
		name        string
		answer      string
		wantCorrect bool
		wantDelta   int
	}{
		{"unattempted", "", false, 0},
		{"blank is unattempted", "  ", false, 0},
		{"correct", "2", true, 4},
		{"correct with spaces", " 2 ", true, 4},
		{"incorrect", "1", false, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Score(q, tt.answer)
			if out.IsCorrect != tt.wantCorrect || out.Delta != tt.wantDelta {
				t.Errorf("Score(%q) = %+v, want correct=%v delta=%d", tt.answer, out, tt.wantCorrect, tt.wantDelta)
			}
		})
	}
}

func TestScoreMultiSelect(t *testing.T) {
	q := mcq("0,2")

	if out := Score(q, "2, 0"); !out.IsCorrect {
		t.Errorf("expected reordered multi-select answer to be correct, got %+v", out)
	}
	if out := Score(q, "0"); out.IsCorrect || out.Delta != -1 {
		t.Errorf("expected partial selection to be wrong, got %+v", out)
	}
}

func TestScoreNumericalIsStringExact(t *testing.T) {
	q := model.Question{
		Type:          model.QuestionTypeNumerical,
		CorrectAnswer: "50",
		MarkingScheme: model.MarkingScheme{Positive: 4, Negative: 0},
	}

	if out := Score(q, "50"); !out.IsCorrect || out.Delta != 4 {
		t.Errorf("Score(50) = %+v, want correct", out)
	}
	if out := Score(q, "50.0"); out.IsCorrect || out.Delta != 0 {
		t.Errorf("Score(50.0) = %+v, want incorrect with no penalty", out)
	}
}

func TestEvaluate(t *testing.T) {
	questions := []model.Question{mcq("0"), mcq("1"), mcq("2")}
	responses := map[int]string{0: "0", 1: "3"}

	ev := Evaluate(questions, responses)

	if ev.Score != 3 {
		t.Errorf("Score = %d, want 3", ev.Score)
	}
	if ev.TotalPossible != 12 {
		t.Errorf("TotalPossible = %d, want 12", ev.TotalPossible)
	}
	if ev.Accuracy != 25 {
		t.Errorf("Accuracy = %d, want 25", ev.Accuracy)
	}
	if len(ev.Answered) != 3 {
		t.Fatalf("Answered has %d entries, want 3", len(ev.Answered))
	}
	if !ev.Answered[0].IsCorrect || ev.Answered[1].IsCorrect || ev.Answered[2].IsCorrect {
		t.Errorf("unexpected correctness flags: %+v", ev.Answered)
	}
	if ev.Answered[2].UserAnswer != "" {
		t.Errorf("unattempted question has user answer %q", ev.Answered[2].UserAnswer)
	}
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		score, total, want int
	}{
		{3, 12, 25},
		{0, 0, 0},
		{-5, 12, 0},
		{12, 12, 100},
		{1, 8, 13},
	}

	for _, tt := range tests {
		if got := Accuracy(tt.score, tt.total); got != tt.want {
			t.Errorf("Accuracy(%d, %d) = %d, want %d", tt.score, tt.total, got, tt.want)
		}
	}
}

func TestToggleOption(t *testing.T) {
	tests := []struct {
		name    string
		current string
		option  int
		want    string
	}{
		{"select first", "", 2, "2"},
		{"add keeps order", "2", 0, "0,2"},
		{"remove", "0,2", 2, "0"},
		{"remove last", "1", 1, ""},
		{"numeric order", "2,9", 10, "2,9,10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToggleOption(tt.current, tt.option); got != tt.want {
				t.Errorf("ToggleOption(%q, %d) = %q, want %q", tt.current, tt.option, got, tt.want)
			}
		})
	}
}

func TestSubjectBreakdown(t *testing.T) {
	phys := mcq("1")
	phys.Subject = model.SubjectPhysics
	chem := mcq("0")
	chem.Subject = model.SubjectChemistry
	num := model.Question{Subject: model.SubjectMathematics, Type: model.QuestionTypeNumerical,
		CorrectAnswer: "5", MarkingScheme: model.MarkingScheme{Positive: 4}}

	answered := []model.AnsweredQuestion{
		{Question: phys, UserAnswer: "1", IsCorrect: true},
		{Question: phys, UserAnswer: "2"},
		{Question: phys, UserAnswer: " "},
		{Question: chem, UserAnswer: "3"},
		{Question: num, UserAnswer: "6"},
		{Question: num},
	}

	b := SubjectBreakdown(answered)

	want := map[model.Subject]model.SubjectStats{
		model.SubjectPhysics:     {Correct: 1, Wrong: 1, Unattempted: 1, Score: 3},
		model.SubjectChemistry:   {Wrong: 1, Score: -1},
		model.SubjectMathematics: {Wrong: 1, Unattempted: 1},
	}
	for subject, w := range want {
		if got := b.Subjects[subject]; got != w {
			t.Errorf("%s = %+v, want %+v", subject, got, w)
		}
	}
	if b.NegativeMarks != 2 || b.Unattempted != 2 {
		t.Errorf("negative = %d unattempted = %d, want 2 and 2", b.NegativeMarks, b.Unattempted)
	}
}

func TestSubjectBreakdownEmpty(t *testing.T) {
	b := SubjectBreakdown(nil)
	if len(b.Subjects) != len(model.Subjects) {
		t.Fatalf("subjects = %v, want every subject listed", b.Subjects)
	}
}
