package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/config"
	"github.com/stemsi/nexus-backend/internal/kv"
	"github.com/stemsi/nexus-backend/internal/model"
	"github.com/stemsi/nexus-backend/internal/session"
)

// Queue pushes JSON payloads onto a named worker queue.
type Queue interface {
	Push(ctx context.Context, queue string, v interface{}) error
}

// ExamSessionService owns the live session machine of every user. Each user
// has a single active slot; a machine is restored from it on first use and
// dropped once it reaches the terminal state.
type ExamSessionService struct {
	store    kv.Store
	history  *session.History
	attempts session.AttemptSubmitter
	queue    Queue
	cfg      *config.Config
	clock    func() time.Time
	interval time.Duration
	log      zerolog.Logger

	baseCtx context.Context

	mu       sync.Mutex
	machines map[string]*liveMachine
	locks    map[string]*userLock
}

// userLock serializes slot replacement and restore for one user.
type userLock struct {
	mu   sync.Mutex
	refs int
}

type liveMachine struct {
	once    sync.Once
	m       *session.Machine
	initErr error
	cancel  context.CancelFunc
}

// NewExamSessionService creates the service. Machine timers stop when
// baseCtx is done; the persisted slots survive for the next start. queue and
// attempts may be nil.
func NewExamSessionService(
	baseCtx context.Context,
	store kv.Store,
	attempts session.AttemptSubmitter,
	queue Queue,
	cfg *config.Config,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		store:    store,
		history:  session.NewHistory(store, cfg.HistoryLimit),
		attempts: attempts,
		queue:    queue,
		cfg:      cfg,
		clock:    time.Now,
		interval: time.Second,
		log:      log.With().Str("component", "exam_session_service").Logger(),
		baseCtx:  baseCtx,
		machines: make(map[string]*liveMachine),
		locks:    make(map[string]*userLock),
	}
}

// StartPractice starts a session over the given questions, replacing any
// session the user already has.
func (s *ExamSessionService) StartPractice(ctx context.Context, userID string, req model.StartExamRequest) (session.Snapshot, error) {
	questions := make([]model.Question, len(req.Questions))
	copy(questions, req.Questions)
	for i := range questions {
		if questions[i].MarkingScheme.Positive == 0 {
			questions[i].MarkingScheme = model.DefaultMarkingScheme(questions[i].Type)
		}
	}
	model.EnsureUniqueIDs(questions, s.clock().UnixMilli())

	duration := req.DurationMinutes
	if duration <= 0 {
		duration = int(math.Ceil(float64(len(questions)) * s.cfg.MinutesPerQuestion))
	}

	return s.Begin(ctx, userID, &model.ExamSession{
		Type:            req.Type,
		Questions:       questions,
		DurationMinutes: duration,
	})
}

// Begin writes sess into the user's slot and starts its timer. The previous
// session, if any, is stopped without scoring.
func (s *ExamSessionService) Begin(ctx context.Context, userID string, sess *model.ExamSession) (session.Snapshot, error) {
	return s.BeginOrResume(ctx, userID, nil, func(context.Context) (*model.ExamSession, error) {
		return sess, nil
	})
}

// BeginOrResume returns the user's live session when keep accepts it.
// Otherwise it builds a new session and replaces the slot as Begin does.
// Restoring, building and replacing happen under the user's lock, so a
// concurrent restore never sees the slot mid-replacement.
func (s *ExamSessionService) BeginOrResume(
	ctx context.Context,
	userID string,
	keep func(*model.ExamSession) bool,
	build func(context.Context) (*model.ExamSession, error),
) (session.Snapshot, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	if keep != nil {
		m, err := s.activate(ctx, userID)
		switch {
		case err == nil:
			if snap := m.Snapshot(); snap.State == session.StateActive && keep(snap.Session) {
				s.log.Info().Str("user_id", userID).Str("type", snap.Session.Type).Msg("Session resumed")
				return snap, nil
			}
		case errors.Is(err, session.ErrNoActiveSession), errors.Is(err, session.ErrInvalidSession):
		default:
			return session.Snapshot{}, err
		}
	}

	sess, err := build(ctx)
	if err != nil {
		return session.Snapshot{}, err
	}

	sess.StartTime = s.clock().UnixMilli()
	sess.CurrentQuestionIndex = 0
	sess.Responses = map[int]string{}
	sess.Visited = []int{0}
	sess.MarkedForReview = nil

	s.mu.Lock()
	prev := s.machines[userID]
	delete(s.machines, userID)
	s.mu.Unlock()

	if prev != nil {
		if prev.m != nil {
			if err := prev.m.Abandon(ctx); err != nil {
				return session.Snapshot{}, err
			}
		}
		if prev.cancel != nil {
			prev.cancel()
		}
		s.log.Info().Str("user_id", userID).Msg("Previous session replaced")
	}

	if err := session.NewKVSlot(s.store, userID).Save(ctx, sess); err != nil {
		return session.Snapshot{}, fmt.Errorf("save session: %w", err)
	}

	m, err := s.activate(ctx, userID)
	if err != nil {
		return session.Snapshot{}, err
	}

	s.log.Info().
		Str("user_id", userID).
		Str("type", sess.Type).
		Int("questions", len(sess.Questions)).
		Int("duration_minutes", sess.DurationMinutes).
		Bool("daily", sess.IsDaily).
		Msg("Session started")

	return m.Snapshot(), nil
}

// Active returns the user's machine, restoring it from the slot when needed.
// A session whose time ran out while no machine was live is finalized during
// restore; the returned machine is then terminal and carries the result.
func (s *ExamSessionService) Active(ctx context.Context, userID string) (*session.Machine, error) {
	unlock := s.lockUser(userID)
	defer unlock()
	return s.activate(ctx, userID)
}

// activate must be called with the user's lock held.
func (s *ExamSessionService) activate(ctx context.Context, userID string) (*session.Machine, error) {
	s.mu.Lock()
	lm, ok := s.machines[userID]
	if !ok {
		lm = &liveMachine{}
		s.machines[userID] = lm
	}
	s.mu.Unlock()

	lm.once.Do(func() {
		m := session.NewMachine(session.Deps{
			UserID:   userID,
			Slot:     session.NewKVSlot(s.store, userID),
			Archive:  s.archiver(userID),
			Attempts: s.attempts,
			Clock:    s.clock,
			Log:      s.log,
		})

		if _, err := m.Initialize(ctx); err != nil {
			lm.initErr = err
			return
		}
		lm.m = m

		if m.State() == session.StateActive {
			runCtx, cancel := context.WithCancel(s.baseCtx)
			lm.cancel = cancel
			go func() {
				m.Run(runCtx, s.interval)
				s.forget(userID, lm)
			}()
		}
	})

	if lm.initErr != nil {
		s.forget(userID, lm)
		return nil, lm.initErr
	}
	if lm.m.State() == session.StateTerminal {
		s.forget(userID, lm)
	}
	return lm.m, nil
}

// Snapshot returns the user's current session view.
func (s *ExamSessionService) Snapshot(ctx context.Context, userID string) (session.Snapshot, error) {
	m, err := s.Active(ctx, userID)
	if err != nil {
		return session.Snapshot{}, err
	}
	return m.Snapshot(), nil
}

// Submit finalizes the user's session. Submitting a session that another
// caller is already finalizing returns the same result.
func (s *ExamSessionService) Submit(ctx context.Context, userID string) (*model.Result, error) {
	m, err := s.Active(ctx, userID)
	if err != nil {
		return nil, err
	}
	res, err := m.Finalize(ctx)
	if errors.Is(err, session.ErrAlreadyFinalized) && res != nil {
		return res, nil
	}
	return res, err
}

// History returns the user's recent results, newest first.
func (s *ExamSessionService) History(ctx context.Context, userID string) ([]model.ResultSummary, error) {
	list, err := s.history.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]model.ResultSummary, len(list))
	for i := range list {
		out[i] = list[i].Summary()
	}
	return out, nil
}

// LastResult returns the user's most recent result or kv.ErrNotFound.
func (s *ExamSessionService) LastResult(ctx context.Context, userID string) (*model.Result, error) {
	return s.history.Last(ctx, userID)
}

// ResultByID looks a result up in the user's history.
func (s *ExamSessionService) ResultByID(ctx context.Context, userID, id string) (*model.Result, error) {
	list, err := s.history.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], nil
		}
	}
	return nil, kv.ErrNotFound
}

// LiveCount returns the number of machines currently held in memory.
func (s *ExamSessionService) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.machines)
}

func (s *ExamSessionService) archiver(userID string) session.Archiver {
	local := s.history.Archiver(userID)
	return session.ArchiverFunc(func(ctx context.Context, r *model.Result) error {
		if err := local.Archive(ctx, r); err != nil {
			return err
		}
		if s.queue != nil {
			payload := &model.ArchivedResult{UserID: userID, Result: r}
			if err := s.queue.Push(ctx, config.WorkerKey.PersistResultsQueue, payload); err != nil {
				s.log.Warn().Err(err).Str("result_id", r.ID).Msg("Enqueue result for archive failed")
			}
		}
		return nil
	})
}

func (s *ExamSessionService) lockUser(userID string) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(s.locks, userID)
		}
		s.mu.Unlock()
	}
}

func (s *ExamSessionService) forget(userID string, lm *liveMachine) {
	s.mu.Lock()
	if s.machines[userID] == lm {
		delete(s.machines, userID)
	}
	s.mu.Unlock()
}
