package questionsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/stemsi/nexus-backend/internal/llm"
	"github.com/stemsi/nexus-backend/internal/model"
	"github.com/stemsi/nexus-backend/internal/questionbank"
)

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	keys  []string
	fn    func(call int) (string, error)
}

func (f *fakeGenerator) Generate(_ context.Context, apiKey, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.keys = append(f.keys, apiKey)
	f.mu.Unlock()
	return f.fn(call)
}

func batchJSON(mcq, numerical int) string {
	items := make([]map[string]interface{}, 0, mcq+numerical)
	for i := 0; i < mcq; i++ {
		items = append(items, map[string]interface{}{
			"subject":       "Physics",
			"type":          "MCQ",
			"statement":     fmt.Sprintf("Generated MCQ %d", i),
			"options":       []string{"a", "b", "c", "d"},
			"correctAnswer": "1",
			"solution":      "because",
		})
	}
	for i := 0; i < numerical; i++ {
		items = append(items, map[string]interface{}{
			"subject":       "Physics",
			"type":          "Numerical",
			"statement":     fmt.Sprintf("Generated numerical %d", i),
			"correctAnswer": "12",
			"solution":      "because",
		})
	}
	raw, _ := json.Marshal(map[string]interface{}{"questions": items})
	return "```json\n" + string(raw) + "\n```"
}

func newSource(t *testing.T, gen Generator, keys ...string) *Source {
	t.Helper()
	bank, err := questionbank.Load()
	if err != nil {
		t.Fatalf("questionbank.Load: %v", err)
	}
	if len(keys) == 0 {
		keys = []string{"key-1"}
	}
	return New(gen, llm.NewRateLimiter(0, keys), bank, Options{BatchSize: 12, MaxRetries: 2}, zerolog.Nop())
}

func countTypes(qs []model.Question) (mcq, numerical int) {
	for _, q := range qs {
		if q.Type == model.QuestionTypeMCQ {
			mcq++
		} else {
			numerical++
		}
	}
	return mcq, numerical
}

func assertWellFormed(t *testing.T, qs []model.Question, subject model.Subject) {
	t.Helper()
	seen := make(map[string]bool)
	for i, q := range qs {
		if q.Statement == "" || q.CorrectAnswer == "" || q.MarkingScheme.Positive <= 0 {
			t.Errorf("question %d missing required fields: %+v", i, q)
		}
		if q.Subject != subject {
			t.Errorf("question %d subject = %s, want %s", i, q.Subject, subject)
		}
		if seen[q.ID] {
			t.Errorf("question %d duplicate id %s", i, q.ID)
		}
		seen[q.ID] = true
	}
}

func TestAcquireAlwaysReturnsCountUnderFullFailure(t *testing.T) {
	for _, count := range []int{5, 10, 30} {
		t.Run(fmt.Sprintf("count=%d", count), func(t *testing.T) {
			gen := &fakeGenerator{fn: func(int) (string, error) {
				return "", errors.New("upstream exploded")
			}}
			src := newSource(t, gen)

			out, err := src.Acquire(context.Background(), Request{Subject: model.SubjectPhysics, Count: count})
			if err != nil {
				t.Fatalf("Acquire: %v", err)
			}
			if len(out.Questions) != count {
				t.Fatalf("got %d questions, want %d", len(out.Questions), count)
			}
			if !out.Degraded || out.FromFallback != count || out.Generated != 0 {
				t.Errorf("outcome = %+v, want fully degraded", out)
			}
			assertWellFormed(t, out.Questions, model.SubjectPhysics)

			mcq, num := countTypes(out.Questions)
			want := model.DefaultDistribution(count)
			if mcq != want.MCQ || num != want.Numerical {
				t.Errorf("split = %d/%d, want %d/%d", mcq, num, want.MCQ, want.Numerical)
			}
		})
	}
}

func TestAcquireFallbackOnlyWithoutGenerator(t *testing.T) {
	src := newSource(t, nil)

	out, err := src.Acquire(context.Background(), Request{Subject: model.SubjectChemistry, Count: 8})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(out.Questions) != 8 {
		t.Fatalf("got %d questions, want 8", len(out.Questions))
	}
	if !errors.Is(out.Reason, llm.ErrNoCredentials) {
		t.Errorf("Reason = %v, want ErrNoCredentials", out.Reason)
	}
	assertWellFormed(t, out.Questions, model.SubjectChemistry)
}

func TestAcquireQuotaRotatesThenFallsBack(t *testing.T) {
	gen := &fakeGenerator{fn: func(int) (string, error) {
		return "", &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"}
	}}
	src := newSource(t, gen, "k1", "k2")

	out, err := src.Acquire(context.Background(), Request{Subject: model.SubjectMathematics, Count: 30})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(out.Questions) != 30 {
		t.Fatalf("got %d questions, want 30", len(out.Questions))
	}
	if gen.calls != 2 {
		t.Errorf("generator called %d times, want 2 (one per credential)", gen.calls)
	}
	if gen.keys[0] != "k1" || gen.keys[1] != "k2" {
		t.Errorf("credentials used = %v, want [k1 k2]", gen.keys)
	}
	if !errors.Is(out.Reason, llm.ErrQuotaExceeded) {
		t.Errorf("Reason = %v, want ErrQuotaExceeded", out.Reason)
	}
}

func TestAcquireNetworkFailureDoesNotRetry(t *testing.T) {
	gen := &fakeGenerator{fn: func(int) (string, error) {
		return "", fmt.Errorf("dial: %w", llm.ErrNetwork)
	}}
	src := newSource(t, gen)

	out, err := src.Acquire(context.Background(), Request{Subject: model.SubjectPhysics, Count: 10})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}
	if len(out.Questions) != 10 || out.FromFallback != 10 {
		t.Errorf("outcome = %+v, want 10 fallback questions", out)
	}
}

func TestAcquirePartialBatchIsToppedUp(t *testing.T) {
	gen := &fakeGenerator{fn: func(call int) (string, error) {
		if call == 1 {
			return batchJSON(5, 1), nil
		}
		return "not json at all", nil
	}}
	src := newSource(t, gen)

	out, err := src.Acquire(context.Background(), Request{Subject: model.SubjectPhysics, Count: 10})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(out.Questions) != 10 {
		t.Fatalf("got %d questions, want 10", len(out.Questions))
	}
	if out.Generated != 6 || out.FromFallback != 4 {
		t.Errorf("generated/fallback = %d/%d, want 6/4", out.Generated, out.FromFallback)
	}
	mcq, num := countTypes(out.Questions)
	if mcq != 8 || num != 2 {
		t.Errorf("split = %d/%d, want 8/2", mcq, num)
	}
	assertWellFormed(t, out.Questions, model.SubjectPhysics)
}

func TestAcquireTrimsExcessAndHonoursDistribution(t *testing.T) {
	gen := &fakeGenerator{fn: func(int) (string, error) {
		return batchJSON(15, 5), nil
	}}
	src := newSource(t, gen)

	dist := &model.Distribution{MCQ: 6, Numerical: 4}
	out, err := src.Acquire(context.Background(), Request{Subject: model.SubjectPhysics, Count: 10, Distribution: dist})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}
	if out.Degraded || out.FromFallback != 0 || out.Generated != 10 {
		t.Errorf("outcome = %+v, want 10 generated", out)
	}
	mcq, num := countTypes(out.Questions)
	if mcq != 6 || num != 4 {
		t.Errorf("split = %d/%d, want 6/4", mcq, num)
	}
	assertWellFormed(t, out.Questions, model.SubjectPhysics)
}

func TestAcquireRejectsInvalidRequests(t *testing.T) {
	src := newSource(t, nil)
	ctx := context.Background()

	if _, err := src.Acquire(ctx, Request{Subject: "Biology", Count: 5}); !errors.Is(err, ErrUnknownSubject) {
		t.Errorf("unknown subject err = %v", err)
	}
	if _, err := src.Acquire(ctx, Request{Subject: model.SubjectPhysics, Count: 0}); !errors.Is(err, ErrInvalidCount) {
		t.Errorf("zero count err = %v", err)
	}
	dist := &model.Distribution{MCQ: 3, Numerical: 3}
	if _, err := src.Acquire(ctx, Request{Subject: model.SubjectPhysics, Count: 5, Distribution: dist}); !errors.Is(err, ErrDistributionMismatch) {
		t.Errorf("mismatch err = %v", err)
	}
}

func TestSplitBatch(t *testing.T) {
	tests := []struct {
		needMCQ, needNum, size int
		wantMCQ, wantNum       int
	}{
		{8, 2, 12, 8, 2},
		{20, 5, 12, 10, 2},
		{24, 6, 12, 10, 2},
		{0, 30, 12, 0, 12},
		{30, 0, 12, 12, 0},
		{1, 20, 12, 1, 11},
	}

	for _, tt := range tests {
		mcq, num := splitBatch(tt.needMCQ, tt.needNum, tt.size)
		if mcq != tt.wantMCQ || num != tt.wantNum {
			t.Errorf("splitBatch(%d, %d, %d) = %d/%d, want %d/%d",
				tt.needMCQ, tt.needNum, tt.size, mcq, num, tt.wantMCQ, tt.wantNum)
		}
	}
}
