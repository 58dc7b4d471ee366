package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/config"
	"github.com/stemsi/nexus-backend/internal/kv"
	"github.com/stemsi/nexus-backend/internal/model"
	"github.com/stemsi/nexus-backend/internal/session"
)

type pushed struct {
	queue   string
	payload interface{}
}

type fakeQueue struct {
	mu    sync.Mutex
	items []pushed
	err   error
}

func (q *fakeQueue) Push(_ context.Context, queue string, v interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.items = append(q.items, pushed{queue: queue, payload: v})
	return nil
}

func (q *fakeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func practiceQuestions() []model.Question {
	return []model.Question{
		{ID: "p1", Subject: model.SubjectPhysics, Type: model.QuestionTypeMCQ, Statement: "one",
			Options: []string{"a", "b", "c", "d"}, CorrectAnswer: "2", Solution: "because"},
		{ID: "p2", Subject: model.SubjectChemistry, Type: model.QuestionTypeMCQ, Statement: "two",
			Options: []string{"a", "b", "c", "d"}, CorrectAnswer: "0,1"},
		{ID: "p3", Subject: model.SubjectMathematics, Type: model.QuestionTypeNumerical, Statement: "three",
			CorrectAnswer: "42"},
		{ID: "p4", Subject: model.SubjectMathematics, Type: model.QuestionTypeNumerical, Statement: "four",
			CorrectAnswer: "7"},
		{ID: "p5", Subject: model.SubjectPhysics, Type: model.QuestionTypeMCQ, Statement: "five",
			Options: []string{"a", "b"}, CorrectAnswer: "1"},
	}
}

func newTestSessionService(t *testing.T, store kv.Store, queue Queue) *ExamSessionService {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.Config{HistoryLimit: 5, MinutesPerQuestion: 2.4}
	s := NewExamSessionService(ctx, store, nil, queue, cfg, zerolog.Nop())
	s.interval = time.Hour
	return s
}

func TestStartPracticeDefaults(t *testing.T) {
	s := newTestSessionService(t, kv.NewMemoryStore(), nil)

	snap, err := s.StartPractice(context.Background(), "u1", model.StartExamRequest{
		Type:      model.ExamTypeJEEMain,
		Questions: practiceQuestions(),
	})
	if err != nil {
		t.Fatalf("StartPractice: %v", err)
	}

	if snap.State != session.StateActive {
		t.Fatalf("state = %s, want active", snap.State)
	}
	if snap.Session.DurationMinutes != 12 {
		t.Errorf("duration = %d, want 12", snap.Session.DurationMinutes)
	}
	if snap.Remaining != 12*60 {
		t.Errorf("remaining = %d, want %d", snap.Remaining, 12*60)
	}

	for _, q := range snap.Session.Questions {
		if q.CorrectAnswer != "" || q.Solution != "" {
			t.Errorf("question %s leaks its answer key", q.ID)
		}
		want := model.DefaultMarkingScheme(q.Type)
		if q.MarkingScheme != want {
			t.Errorf("question %s scheme = %+v, want %+v", q.ID, q.MarkingScheme, want)
		}
	}
}

func TestBeginReplacesPreviousWithoutScoring(t *testing.T) {
	store := kv.NewMemoryStore()
	s := newTestSessionService(t, store, nil)
	ctx := context.Background()

	if _, err := s.StartPractice(ctx, "u1", model.StartExamRequest{Type: "first", Questions: practiceQuestions()}); err != nil {
		t.Fatalf("first start: %v", err)
	}
	first, err := s.Active(ctx, "u1")
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if err := first.Answer(ctx, "2"); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	snap, err := s.StartPractice(ctx, "u1", model.StartExamRequest{Type: "second", Questions: practiceQuestions()[:2]})
	if err != nil {
		t.Fatalf("second start: %v", err)
	}

	if first.State() != session.StateTerminal {
		t.Errorf("replaced machine state = %s, want terminal", first.State())
	}
	if first.Snapshot().Result != nil {
		t.Error("replaced session was scored")
	}
	if snap.Session.Type != "second" || len(snap.Session.Responses) != 0 {
		t.Errorf("new session = %q with %d responses", snap.Session.Type, len(snap.Session.Responses))
	}

	history, err := s.History(ctx, "u1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history has %d results, want 0", len(history))
	}
}

func TestSubmitArchivesAndQueues(t *testing.T) {
	queue := &fakeQueue{}
	s := newTestSessionService(t, kv.NewMemoryStore(), queue)
	ctx := context.Background()

	if _, err := s.StartPractice(ctx, "u1", model.StartExamRequest{Type: "mock", Questions: practiceQuestions()}); err != nil {
		t.Fatalf("StartPractice: %v", err)
	}
	m, _ := s.Active(ctx, "u1")
	if err := m.Answer(ctx, "2"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if err := m.Jump(ctx, 2); err != nil {
		t.Fatalf("Jump: %v", err)
	}
	if err := m.Answer(ctx, "41"); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	res, err := s.Submit(ctx, "u1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Score != 4 || res.TotalPossible != 20 {
		t.Errorf("score = %d/%d, want 4/20", res.Score, res.TotalPossible)
	}
	if res.Accuracy != 20 {
		t.Errorf("accuracy = %d, want 20", res.Accuracy)
	}

	last, err := s.LastResult(ctx, "u1")
	if err != nil || last.ID != res.ID {
		t.Fatalf("LastResult = %v, %v", last, err)
	}
	byID, err := s.ResultByID(ctx, "u1", res.ID)
	if err != nil || byID.Score != res.Score {
		t.Fatalf("ResultByID = %v, %v", byID, err)
	}
	if _, err := s.ResultByID(ctx, "u1", "missing"); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("ResultByID(missing) err = %v, want kv.ErrNotFound", err)
	}

	if queue.Len() != 1 {
		t.Fatalf("queued %d items, want 1", queue.Len())
	}
	item := queue.items[0]
	if item.queue != config.WorkerKey.PersistResultsQueue {
		t.Errorf("queue = %q", item.queue)
	}
	if p, ok := item.payload.(*model.ArchivedResult); !ok || p.UserID != "u1" || p.Result.ID != res.ID {
		t.Errorf("payload = %#v", item.payload)
	}
}

func TestSubmitSurvivesQueueFailure(t *testing.T) {
	queue := &fakeQueue{err: errors.New("redis down")}
	s := newTestSessionService(t, kv.NewMemoryStore(), queue)
	ctx := context.Background()

	if _, err := s.StartPractice(ctx, "u1", model.StartExamRequest{Type: "mock", Questions: practiceQuestions()}); err != nil {
		t.Fatalf("StartPractice: %v", err)
	}
	if _, err := s.Submit(ctx, "u1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	history, _ := s.History(ctx, "u1")
	if len(history) != 1 {
		t.Errorf("history has %d results, want 1", len(history))
	}
}

func TestConcurrentSubmitScoresOnce(t *testing.T) {
	s := newTestSessionService(t, kv.NewMemoryStore(), nil)
	ctx := context.Background()

	if _, err := s.StartPractice(ctx, "u1", model.StartExamRequest{Type: "mock", Questions: practiceQuestions()}); err != nil {
		t.Fatalf("StartPractice: %v", err)
	}

	const callers = 8
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.Submit(ctx, "u1")
			if err == nil && res != nil {
				ids[i] = res.ID
			}
		}(i)
	}
	wg.Wait()

	history, _ := s.History(ctx, "u1")
	if len(history) != 1 {
		t.Fatalf("history has %d results, want 1", len(history))
	}
	for i, id := range ids {
		if id != "" && id != history[0].ID {
			t.Errorf("caller %d got result %s, want %s", i, id, history[0].ID)
		}
	}
}

func TestRestoreResumesFromSlot(t *testing.T) {
	store := kv.NewMemoryStore()
	ctx := context.Background()

	first := newTestSessionService(t, store, nil)
	if _, err := first.StartPractice(ctx, "u1", model.StartExamRequest{Type: "mock", Questions: practiceQuestions()}); err != nil {
		t.Fatalf("StartPractice: %v", err)
	}
	m, _ := first.Active(ctx, "u1")
	if err := m.Answer(ctx, "3"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if _, err := m.Next(ctx); err != nil {
		t.Fatalf("Next: %v", err)
	}

	restarted := newTestSessionService(t, store, nil)
	snap, err := restarted.Snapshot(ctx, "u1")
	if err != nil {
		t.Fatalf("Snapshot after restart: %v", err)
	}
	if snap.State != session.StateActive {
		t.Fatalf("state = %s, want active", snap.State)
	}
	if snap.Session.CurrentQuestionIndex != 1 || snap.Session.Responses[0] != "3" {
		t.Errorf("restored cursor %d responses %v", snap.Session.CurrentQuestionIndex, snap.Session.Responses)
	}
}

func TestRestoreExpiredSessionFinalizes(t *testing.T) {
	store := kv.NewMemoryStore()
	ctx := context.Background()

	qs := practiceQuestions()
	for i := range qs {
		qs[i].MarkingScheme = model.DefaultMarkingScheme(qs[i].Type)
	}
	sess := &model.ExamSession{
		Type:            "stale",
		Questions:       qs,
		StartTime:       time.Now().Add(-2 * time.Hour).UnixMilli(),
		DurationMinutes: 30,
		Responses:       map[int]string{0: "2"},
		Visited:         []int{0},
	}
	if err := session.NewKVSlot(store, "u1").Save(ctx, sess); err != nil {
		t.Fatalf("seed slot: %v", err)
	}

	s := newTestSessionService(t, store, nil)
	snap, err := s.Snapshot(ctx, "u1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.State != session.StateTerminal || snap.Result == nil {
		t.Fatalf("state = %s result = %v, want terminal with result", snap.State, snap.Result)
	}
	if snap.Result.Score != 4 {
		t.Errorf("score = %d, want 4", snap.Result.Score)
	}

	if _, err := s.Snapshot(ctx, "u1"); !errors.Is(err, session.ErrNoActiveSession) {
		t.Errorf("second Snapshot err = %v, want ErrNoActiveSession", err)
	}
}

func TestActiveWithoutSession(t *testing.T) {
	s := newTestSessionService(t, kv.NewMemoryStore(), nil)

	if _, err := s.Active(context.Background(), "nobody"); !errors.Is(err, session.ErrNoActiveSession) {
		t.Fatalf("err = %v, want ErrNoActiveSession", err)
	}
	if n := s.LiveCount(); n != 0 {
		t.Errorf("LiveCount = %d, want 0", n)
	}
}

type hookedStore struct {
	*kv.MemoryStore
	onSet func(key string)
}

func (h *hookedStore) Set(ctx context.Context, key string, v interface{}) error {
	if h.onSet != nil {
		h.onSet(key)
	}
	return h.MemoryStore.Set(ctx, key, v)
}

func TestBeginIsNotUndoneByConcurrentRestore(t *testing.T) {
	store := &hookedStore{MemoryStore: kv.NewMemoryStore()}
	s := newTestSessionService(t, store, nil)
	ctx := context.Background()

	if _, err := s.StartPractice(ctx, "u1", model.StartExamRequest{Type: "old", Questions: practiceQuestions()}); err != nil {
		t.Fatalf("first start: %v", err)
	}

	var (
		once       sync.Once
		wg         sync.WaitGroup
		concurrent session.Snapshot
		concErr    error
	)
	slotKey := config.CacheKey.ActiveSessionKey("u1")
	store.onSet = func(key string) {
		if key != slotKey {
			return
		}
		once.Do(func() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				concurrent, concErr = s.Snapshot(ctx, "u1")
			}()
			// Give the reader a chance to run while the slot is being replaced.
			time.Sleep(20 * time.Millisecond)
		})
	}

	snap, err := s.StartPractice(ctx, "u1", model.StartExamRequest{Type: "new", Questions: practiceQuestions()[:2]})
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	wg.Wait()

	if snap.Session.Type != "new" || len(snap.Session.Questions) != 2 {
		t.Fatalf("started %q with %d questions, want new with 2", snap.Session.Type, len(snap.Session.Questions))
	}
	if concErr != nil {
		t.Fatalf("concurrent Snapshot: %v", concErr)
	}
	if concurrent.Session == nil || concurrent.Session.Type != "new" {
		t.Errorf("concurrent reader saw %+v, want the new session", concurrent.Session)
	}

	m, err := s.Active(ctx, "u1")
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if err := m.Answer(ctx, "1"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	stored, err := session.NewKVSlot(store, "u1").Load(ctx)
	if err != nil {
		t.Fatalf("Load slot: %v", err)
	}
	if stored.Type != "new" || len(stored.Questions) != 2 {
		t.Errorf("slot holds %q with %d questions, want new with 2", stored.Type, len(stored.Questions))
	}
}

func TestStartPracticeMakesIDsUnique(t *testing.T) {
	s := newTestSessionService(t, kv.NewMemoryStore(), nil)

	qs := practiceQuestions()[:3]
	qs[1].ID = qs[0].ID
	qs[2].ID = ""

	snap, err := s.StartPractice(context.Background(), "u1", model.StartExamRequest{Type: "dup", Questions: qs})
	if err != nil {
		t.Fatalf("StartPractice: %v", err)
	}

	seen := make(map[string]bool)
	for _, q := range snap.Session.Questions {
		if q.ID == "" || seen[q.ID] {
			t.Errorf("id %q is empty or repeated", q.ID)
		}
		seen[q.ID] = true
	}
	if snap.Session.Questions[0].ID != "p1" {
		t.Errorf("first id = %q, want p1 kept", snap.Session.Questions[0].ID)
	}
	if qs[1].ID != "p1" {
		t.Error("request questions were modified")
	}
}
