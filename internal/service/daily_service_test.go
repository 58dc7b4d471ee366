package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/config"
	"github.com/stemsi/nexus-backend/internal/daily"
	"github.com/stemsi/nexus-backend/internal/kv"
	"github.com/stemsi/nexus-backend/internal/model"
	"github.com/stemsi/nexus-backend/internal/session"
)

type failingDailyStore struct {
	*daily.LocalStore
	err error
}

func (f *failingDailyStore) SubmitDailyAttempt(context.Context, *model.DailyAttempt) error {
	return f.err
}

func newTestDailyService(t *testing.T) (*DailyService, *ExamSessionService) {
	t.Helper()
	// Opening at midnight UTC keeps the time lock open for the whole day.
	sched, err := daily.NewSchedule("UTC", 0, 0)
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}

	store := kv.NewMemoryStore()
	dailyStore := daily.NewLocalStore(store)
	submitter := NewRetryingSubmitter(dailyStore, nil, zerolog.Nop())

	sessions := newTestSessionService(t, store, nil)
	sessions.attempts = submitter

	gate := daily.NewGate(dailyStore, sched, 2.4, zerolog.Nop())
	return NewDailyService(gate, dailyStore, sessions, nil, zerolog.Nop()), sessions
}

func TestRetryingSubmitter(t *testing.T) {
	storeErr := errors.New("database unreachable")
	attempt := &model.DailyAttempt{UserID: "u1", Date: "2026-10-19", Score: 8}

	tests := []struct {
		name      string
		queue     *fakeQueue
		wantErr   bool
		wantQueue int
	}{
		{"no queue returns store error", nil, true, 0},
		{"queued failure is swallowed", &fakeQueue{}, false, 1},
		{"queue failure returns store error", &fakeQueue{err: errors.New("redis down")}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &failingDailyStore{LocalStore: daily.NewLocalStore(kv.NewMemoryStore()), err: storeErr}

			var q Queue
			if tt.queue != nil {
				q = tt.queue
			}
			err := NewRetryingSubmitter(store, q, zerolog.Nop()).SubmitDailyAttempt(context.Background(), attempt)

			if tt.wantErr && !errors.Is(err, storeErr) {
				t.Errorf("err = %v, want %v", err, storeErr)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected err: %v", err)
			}
			if tt.queue != nil && tt.queue.Len() != tt.wantQueue {
				t.Errorf("queued %d, want %d", tt.queue.Len(), tt.wantQueue)
			}
			if tt.wantQueue > 0 && tt.queue.items[0].queue != config.WorkerKey.RetryDailyAttemptsQueue {
				t.Errorf("queue = %q", tt.queue.items[0].queue)
			}
		})
	}
}

func TestRetryingSubmitterPassesThroughSuccess(t *testing.T) {
	store := daily.NewLocalStore(kv.NewMemoryStore())
	queue := &fakeQueue{}
	ctx := context.Background()

	a := &model.DailyAttempt{UserID: "u1", Date: "2026-10-19", Score: 8, TotalMarks: 20}
	if err := NewRetryingSubmitter(store, queue, zerolog.Nop()).SubmitDailyAttempt(ctx, a); err != nil {
		t.Fatalf("SubmitDailyAttempt: %v", err)
	}
	if queue.Len() != 0 {
		t.Errorf("queued %d, want 0", queue.Len())
	}
	if _, err := store.GetUserDailyAttempt(ctx, "u1", "2026-10-19"); err != nil {
		t.Errorf("attempt not stored: %v", err)
	}
}

func TestPublishFillsDefaults(t *testing.T) {
	svc, _ := newTestDailyService(t)
	ctx := context.Background()

	qs := practiceQuestions()
	qs[1].ID = ""
	qs[2].MarkingScheme = model.MarkingScheme{Positive: 3, Negative: 0}

	c, err := svc.Publish(ctx, "2026-10-19", qs)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if c.Date != "2026-10-19" || len(c.Questions) != len(qs) {
		t.Fatalf("challenge = %s with %d questions", c.Date, len(c.Questions))
	}
	if !strings.HasPrefix(c.Questions[1].ID, "daily-1-") {
		t.Errorf("generated id = %q, want daily-1- prefix", c.Questions[1].ID)
	}
	if got := c.Questions[0].MarkingScheme; got != model.DefaultMarkingScheme(model.QuestionTypeMCQ) {
		t.Errorf("default scheme = %+v", got)
	}
	if got := c.Questions[2].MarkingScheme.Positive; got != 3 {
		t.Errorf("explicit scheme overwritten: positive = %d", got)
	}
	if qs[1].ID != "" {
		t.Error("Publish mutated the caller's questions")
	}
}

func TestPublishRejectsBadDate(t *testing.T) {
	svc, _ := newTestDailyService(t)

	for _, date := range []string{"19-10-2026", "2026-13-01", "tomorrow"} {
		if _, err := svc.Publish(context.Background(), date, practiceQuestions()); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("Publish(%q) err = %v, want ErrInvalidDate", date, err)
		}
		if _, err := svc.Leaderboard(context.Background(), date); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("Leaderboard(%q) err = %v, want ErrInvalidDate", date, err)
		}
	}
}

func TestDailyStartSubmitOnce(t *testing.T) {
	svc, sessions := newTestDailyService(t)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "u1", false); !errors.Is(err, daily.ErrNotPublished) {
		t.Fatalf("Start before publish err = %v, want ErrNotPublished", err)
	}

	if _, err := svc.Publish(ctx, "", practiceQuestions()); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	snap, err := svc.Start(ctx, "u1", false)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !snap.Session.IsDaily || snap.Session.DurationMinutes != 12 {
		t.Errorf("daily session = %+v", snap.Session)
	}

	m, err := sessions.Active(ctx, "u1")
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if err := m.Answer(ctx, "2"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	res, err := sessions.Submit(ctx, "u1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st, err := svc.Status(ctx, "u1", false)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.HasAttempted || st.CanStart || !st.CanViewResult {
		t.Errorf("status after submit = %+v", st)
	}

	if _, err := svc.Start(ctx, "u1", true); !errors.Is(err, daily.ErrAlreadyAttempted) {
		t.Errorf("second Start err = %v, want ErrAlreadyAttempted", err)
	}

	stored, err := svc.Result(ctx, "u1")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if stored.Score != res.Score || stored.TotalPossible != res.TotalPossible {
		t.Errorf("stored result %d/%d, want %d/%d", stored.Score, stored.TotalPossible, res.Score, res.TotalPossible)
	}

	board, err := svc.Leaderboard(ctx, "")
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(board) != 1 || board[0].UserID != "u1" || board[0].Rank != 1 {
		t.Errorf("leaderboard = %+v", board)
	}
}

func TestDailyStartReplacesPractice(t *testing.T) {
	svc, sessions := newTestDailyService(t)
	ctx := context.Background()

	if _, err := sessions.StartPractice(ctx, "u1", model.StartExamRequest{Type: "practice", Questions: practiceQuestions()}); err != nil {
		t.Fatalf("StartPractice: %v", err)
	}
	practice, _ := sessions.Active(ctx, "u1")

	if _, err := svc.Publish(ctx, "", practiceQuestions()[:2]); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := svc.Start(ctx, "u1", false); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if practice.State() != session.StateTerminal {
		t.Errorf("practice state = %s, want terminal", practice.State())
	}
	snap, err := sessions.Snapshot(ctx, "u1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Session.Type != daily.SessionType(snap.Session.DailyDate) {
		t.Errorf("active type = %q", snap.Session.Type)
	}
}

func TestGenerateAndPublishWithoutPapers(t *testing.T) {
	svc, _ := newTestDailyService(t)

	if _, _, err := svc.GenerateAndPublish(context.Background(), "", nil); err == nil {
		t.Fatal("expected error without a paper service")
	}
}

func TestDailyStartResumesRunningAttempt(t *testing.T) {
	svc, sessions := newTestDailyService(t)
	ctx := context.Background()

	if _, err := svc.Publish(ctx, "", practiceQuestions()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	first, err := svc.Start(ctx, "u1", false)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	m, err := sessions.Active(ctx, "u1")
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if err := m.Answer(ctx, "2"); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	again, err := svc.Start(ctx, "u1", false)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if again.Session.StartTime != first.Session.StartTime {
		t.Errorf("start time moved from %d to %d", first.Session.StartTime, again.Session.StartTime)
	}
	if again.Session.Responses[0] != "2" {
		t.Errorf("responses = %v, want answer kept", again.Session.Responses)
	}
	if m.State() != session.StateActive {
		t.Errorf("running machine state = %s, want active", m.State())
	}
	if same, _ := sessions.Active(ctx, "u1"); same != m {
		t.Error("resume replaced the live machine")
	}
}

func TestPublishMakesIDsUnique(t *testing.T) {
	svc, _ := newTestDailyService(t)

	qs := practiceQuestions()[:3]
	qs[1].ID = qs[0].ID
	qs[2].ID = qs[0].ID

	c, err := svc.Publish(context.Background(), "2024-03-01", qs)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	seen := make(map[string]bool)
	for _, q := range c.Questions {
		if seen[q.ID] {
			t.Errorf("id %q repeated", q.ID)
		}
		seen[q.ID] = true
	}
}

func TestDailyAnalysisSplitsBySubject(t *testing.T) {
	svc, sessions := newTestDailyService(t)
	ctx := context.Background()

	if _, err := svc.Publish(ctx, "", practiceQuestions()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := svc.Start(ctx, "u1", false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m, err := sessions.Active(ctx, "u1")
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if err := m.Answer(ctx, "2"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if err := m.Jump(ctx, 1); err != nil {
		t.Fatalf("Jump: %v", err)
	}
	if err := m.Answer(ctx, "3"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if _, err := sessions.Submit(ctx, "u1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	rows, err := svc.Analysis(ctx, "")
	if err != nil {
		t.Fatalf("Analysis: %v", err)
	}
	if len(rows) != 1 || rows[0].UserID != "u1" || rows[0].Rank != 1 {
		t.Fatalf("rows = %+v", rows)
	}

	want := map[model.Subject]model.SubjectStats{
		model.SubjectPhysics:     {Correct: 1, Unattempted: 1, Score: 4},
		model.SubjectChemistry:   {Wrong: 1, Score: -1},
		model.SubjectMathematics: {Unattempted: 2},
	}
	for subject, w := range want {
		if got := rows[0].Subjects[subject]; got != w {
			t.Errorf("%s = %+v, want %+v", subject, got, w)
		}
	}
	if rows[0].Score != 3 || rows[0].NegativeMarks != 1 || rows[0].Unattempted != 3 {
		t.Errorf("row = %+v", rows[0])
	}

	if _, err := svc.Analysis(ctx, "19-10-2026"); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("bad date err = %v, want ErrInvalidDate", err)
	}
}
