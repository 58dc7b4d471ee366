package validator

import (
	"testing"

	"github.com/stemsi/nexus-backend/internal/model"
)

func TestSubjectValidation(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		q       model.Question
		wantErr string
	}{
		{
			name: "valid",
			q: model.Question{Subject: model.SubjectPhysics, Type: model.QuestionTypeNumerical,
				Statement: "s", CorrectAnswer: "1"},
		},
		{
			name: "unknown subject",
			q: model.Question{Subject: "Biology", Type: model.QuestionTypeNumerical,
				Statement: "s", CorrectAnswer: "1"},
			wantErr: "subject",
		},
		{
			name: "bad type",
			q: model.Question{Subject: model.SubjectChemistry, Type: "Essay",
				Statement: "s", CorrectAnswer: "1"},
			wantErr: "type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.q)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			fields := TranslateErrors(err)
			if _, ok := fields[tt.wantErr]; !ok {
				t.Errorf("fields = %v, want key %q", fields, tt.wantErr)
			}
		})
	}
}

func TestNestedFieldNames(t *testing.T) {
	req := model.StartExamRequest{
		Type:      "Practice",
		Questions: []model.Question{{Subject: "Art", Type: model.QuestionTypeMCQ, Statement: "s", CorrectAnswer: "0"}},
	}
	err := New().Struct(req)
	if err == nil {
		t.Fatal("expected validation error")
	}
	fields := TranslateErrors(err)
	msg, ok := fields["questions[0].subject"]
	if !ok {
		t.Fatalf("fields = %v", fields)
	}
	if msg != "subject must be one of Physics, Chemistry or Mathematics" {
		t.Errorf("message = %q", msg)
	}
}

func TestQuestionShapeValidation(t *testing.T) {
	v := New()
	mcq := func(options []string, answer string) model.Question {
		return model.Question{Subject: model.SubjectPhysics, Type: model.QuestionTypeMCQ,
			Statement: "s", Options: options, CorrectAnswer: answer}
	}
	numerical := func(options []string, answer string) model.Question {
		return model.Question{Subject: model.SubjectMathematics, Type: model.QuestionTypeNumerical,
			Statement: "s", Options: options, CorrectAnswer: answer}
	}
	four := []string{"a", "b", "c", "d"}

	tests := []struct {
		name      string
		q         model.Question
		wantField string
		wantMsg   string
	}{
		{name: "mcq single", q: mcq(four, "2")},
		{name: "mcq multiple", q: mcq(four, "3, 0")},
		{name: "numerical", q: numerical(nil, "-2.5")},
		{name: "mcq without options", q: mcq(nil, "7"), wantField: "questions[0].options",
			wantMsg: "options must list at least two choices for a multiple choice question"},
		{name: "mcq one option", q: mcq([]string{"a"}, "0"), wantField: "questions[0].options"},
		{name: "mcq index out of range", q: mcq(four, "4"), wantField: "questions[0].correct_answer",
			wantMsg: "correct_answer must be distinct zero-based option indices such as 0 or 0,2"},
		{name: "mcq letter answer", q: mcq(four, "B"), wantField: "questions[0].correct_answer"},
		{name: "mcq repeated index", q: mcq(four, "1,1"), wantField: "questions[0].correct_answer"},
		{name: "numerical with options", q: numerical(four, "1"), wantField: "questions[0].options",
			wantMsg: "options must be empty for a numerical question"},
		{name: "numerical text answer", q: numerical(nil, "about 5"), wantField: "questions[0].correct_answer",
			wantMsg: "correct_answer must be a number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := model.StartExamRequest{Type: "Practice", Questions: []model.Question{tt.q}}
			err := v.Struct(req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			fields := TranslateErrors(err)
			msg, ok := fields[tt.wantField]
			if !ok {
				t.Fatalf("fields = %v, want key %q", fields, tt.wantField)
			}
			if tt.wantMsg != "" && msg != tt.wantMsg {
				t.Errorf("message = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}
