// Package session implements the timed exam lifecycle for a single user:
// resume from the persisted slot, per-question navigation and answers with
// write-through persistence, and exactly-once finalization.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/model"
	"github.com/stemsi/nexus-backend/internal/scoring"
)

var (
	ErrNoActiveSession    = errors.New("no active session")
	ErrInvalidSession     = errors.New("session has no questions")
	ErrNotInitialized     = errors.New("session not initialized")
	ErrAlreadyInitialized = errors.New("session already initialized")
	ErrNotActive          = errors.New("session is not active")
	ErrAlreadyFinalized   = errors.New("session already finalized")
	ErrTimeUp             = errors.New("time is up")
	ErrOutOfRange         = errors.New("question index out of range")
	ErrNotMCQ             = errors.New("current question is not multiple choice")
)

// State is the lifecycle state of a Machine.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateFinalizing
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateFinalizing:
		return "finalizing"
	case StateTerminal:
		return "terminal"
	default:
		return "uninitialized"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Nav is the outcome of a navigation request.
type Nav int

const (
	NavMoved Nav = iota
	// NavConfirmSubmit means the user tried to move past the last question.
	NavConfirmSubmit
)

// SlotStore persists the active session descriptor.
type SlotStore interface {
	Load(ctx context.Context) (*model.ExamSession, error)
	Save(ctx context.Context, s *model.ExamSession) error
	Clear(ctx context.Context) error
}

// Archiver records a finalized result.
type Archiver interface {
	Archive(ctx context.Context, r *model.Result) error
}

// ArchiverFunc adapts a function to Archiver.
type ArchiverFunc func(ctx context.Context, r *model.Result) error

func (f ArchiverFunc) Archive(ctx context.Context, r *model.Result) error {
	return f(ctx, r)
}

// AttemptSubmitter receives daily challenge attempts.
type AttemptSubmitter interface {
	SubmitDailyAttempt(ctx context.Context, a *model.DailyAttempt) error
}

// Deps wires a Machine to its collaborators. Attempts and Clock are optional.
type Deps struct {
	UserID   string
	Slot     SlotStore
	Archive  Archiver
	Attempts AttemptSubmitter
	Clock    func() time.Time
	Log      zerolog.Logger
}

// Machine is the exam session state machine. All methods are safe for
// concurrent use; mutations are serialized and persisted before returning.
type Machine struct {
	userID   string
	slot     SlotStore
	archive  Archiver
	attempts AttemptSubmitter
	now      func() time.Time
	log      zerolog.Logger

	mu        sync.Mutex
	state     State
	sess      *model.ExamSession
	visited   map[int]struct{}
	marked    map[int]struct{}
	remaining int
	result    *model.Result
	done      chan struct{}
}

// NewMachine returns an uninitialized Machine.
func NewMachine(d Deps) *Machine {
	now := d.Clock
	if now == nil {
		now = time.Now
	}
	return &Machine{
		userID:   d.UserID,
		slot:     d.Slot,
		archive:  d.Archive,
		attempts: d.Attempts,
		now:      now,
		log:      d.Log.With().Str("component", "session").Str("user_id", d.UserID).Logger(),
		done:     make(chan struct{}),
	}
}

// Initialize loads the persisted session. If its time already ran out the
// session is finalized immediately and the result is returned.
func (m *Machine) Initialize(ctx context.Context) (*model.Result, error) {
	m.mu.Lock()
	if m.state != StateUninitialized {
		m.mu.Unlock()
		return nil, ErrAlreadyInitialized
	}

	sess, err := m.slot.Load(ctx)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if len(sess.Questions) == 0 {
		m.mu.Unlock()
		return nil, ErrInvalidSession
	}

	if sess.Responses == nil {
		sess.Responses = make(map[int]string)
	}
	if sess.CurrentQuestionIndex < 0 || sess.CurrentQuestionIndex >= len(sess.Questions) {
		sess.CurrentQuestionIndex = 0
	}
	m.sess = sess
	m.visited = toSet(sess.Visited)
	m.marked = toSet(sess.MarkedForReview)
	m.visited[sess.CurrentQuestionIndex] = struct{}{}

	m.state = StateActive
	m.remaining = m.computeRemaining()
	expired := m.remaining <= 0
	m.mu.Unlock()

	if expired {
		m.log.Info().Msg("Session expired while away, finalizing")
		return m.Finalize(ctx)
	}
	return nil, nil
}

// Tick refreshes the remaining time and finalizes when it reaches zero.
// It returns the result only from the call that finalized.
func (m *Machine) Tick(ctx context.Context) (*model.Result, error) {
	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return nil, nil
	}
	m.remaining = m.computeRemaining()
	expired := m.remaining <= 0
	m.mu.Unlock()

	if !expired {
		return nil, nil
	}
	m.log.Info().Msg("Time is up, finalizing")
	return m.Finalize(ctx)
}

// Run ticks every interval until the session is terminal or ctx is done.
func (m *Machine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			if _, err := m.Tick(ctx); err != nil && !errors.Is(err, ErrAlreadyFinalized) {
				m.log.Error().Err(err).Msg("Tick failed")
			}
		}
	}
}

// Answer sets the response of the current question. A blank value clears it.
func (m *Machine) Answer(ctx context.Context, value string) error {
	return m.mutate(ctx, func() error {
		if strings.TrimSpace(value) == "" {
			delete(m.sess.Responses, m.sess.CurrentQuestionIndex)
			return nil
		}
		m.sess.Responses[m.sess.CurrentQuestionIndex] = value
		return nil
	})
}

// ToggleOption adds or removes an option from the current MCQ selection.
func (m *Machine) ToggleOption(ctx context.Context, option int) error {
	return m.mutate(ctx, func() error {
		idx := m.sess.CurrentQuestionIndex
		q := m.sess.Questions[idx]
		if q.Type != model.QuestionTypeMCQ {
			return ErrNotMCQ
		}
		if option < 0 || option >= len(q.Options) {
			return ErrOutOfRange
		}
		next := scoring.ToggleOption(m.sess.Responses[idx], option)
		if next == "" {
			delete(m.sess.Responses, idx)
		} else {
			m.sess.Responses[idx] = next
		}
		return nil
	})
}

// Clear removes the response of the current question.
func (m *Machine) Clear(ctx context.Context) error {
	return m.mutate(ctx, func() error {
		delete(m.sess.Responses, m.sess.CurrentQuestionIndex)
		return nil
	})
}

// Next moves forward. On the last question it returns NavConfirmSubmit and
// leaves the session untouched.
func (m *Machine) Next(ctx context.Context) (Nav, error) {
	nav := NavMoved
	err := m.mutate(ctx, func() error {
		if m.sess.CurrentQuestionIndex >= len(m.sess.Questions)-1 {
			nav = NavConfirmSubmit
			return errSkipPersist
		}
		m.sess.CurrentQuestionIndex++
		m.visited[m.sess.CurrentQuestionIndex] = struct{}{}
		return nil
	})
	return nav, err
}

// Prev moves back one question.
func (m *Machine) Prev(ctx context.Context) error {
	return m.mutate(ctx, func() error {
		if m.sess.CurrentQuestionIndex == 0 {
			return ErrOutOfRange
		}
		m.sess.CurrentQuestionIndex--
		m.visited[m.sess.CurrentQuestionIndex] = struct{}{}
		return nil
	})
}

// Jump moves to index from the question palette.
func (m *Machine) Jump(ctx context.Context, index int) error {
	return m.mutate(ctx, func() error {
		if index < 0 || index >= len(m.sess.Questions) {
			return ErrOutOfRange
		}
		m.sess.CurrentQuestionIndex = index
		m.visited[index] = struct{}{}
		return nil
	})
}

// ToggleMark flips the review mark of the current question.
func (m *Machine) ToggleMark(ctx context.Context) error {
	return m.mutate(ctx, func() error {
		idx := m.sess.CurrentQuestionIndex
		if _, ok := m.marked[idx]; ok {
			delete(m.marked, idx)
		} else {
			m.marked[idx] = struct{}{}
		}
		return nil
	})
}

// Finalize scores and archives the session exactly once. Later callers wait
// for the first to finish and receive the same result with
// ErrAlreadyFinalized.
func (m *Machine) Finalize(ctx context.Context) (*model.Result, error) {
	m.mu.Lock()
	switch m.state {
	case StateUninitialized:
		m.mu.Unlock()
		return nil, ErrNotInitialized
	case StateFinalizing, StateTerminal:
		m.mu.Unlock()
		select {
		case <-m.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		m.mu.Lock()
		res := m.result
		m.mu.Unlock()
		return res, ErrAlreadyFinalized
	}

	m.state = StateFinalizing
	m.remaining = m.computeRemaining()
	sess := m.sess
	m.mu.Unlock()

	// Persistence below must not be cut short by a cancelled caller.
	ctx = context.WithoutCancel(ctx)

	ev := scoring.Evaluate(sess.Questions, sess.Responses)
	completed := m.now()
	res := &model.Result{
		ID:            resultID(completed),
		Score:         ev.Score,
		TotalPossible: ev.TotalPossible,
		Accuracy:      ev.Accuracy,
		CompletedAt:   completed.UnixMilli(),
		Questions:     ev.Answered,
		Type:          sess.Type,
	}

	if m.archive != nil {
		if err := m.archive.Archive(ctx, res); err != nil {
			m.log.Error().Err(err).Str("result_id", res.ID).Msg("Archive result failed")
		}
	}

	if sess.IsDaily && m.attempts != nil {
		attempt := &model.DailyAttempt{
			UserID:      m.userID,
			Date:        sess.DailyDate,
			Score:       res.Score,
			TotalMarks:  res.TotalPossible,
			Stats:       model.AttemptStats{Accuracy: res.Accuracy, CompletedAt: res.CompletedAt},
			AttemptData: res.Questions,
			SubmittedAt: completed,
		}
		if err := m.attempts.SubmitDailyAttempt(ctx, attempt); err != nil {
			m.log.Warn().Err(err).Str("date", sess.DailyDate).Msg("Daily attempt submission failed")
		}
	}

	if err := m.slot.Clear(ctx); err != nil {
		m.log.Error().Err(err).Msg("Clear active session failed")
	}

	m.mu.Lock()
	m.result = res
	m.state = StateTerminal
	close(m.done)
	m.mu.Unlock()

	m.log.Info().
		Int("score", res.Score).
		Int("total", res.TotalPossible).
		Int("accuracy", res.Accuracy).
		Msg("Session finalized")

	return res, nil
}

// Abandon stops an active session without scoring it, used when a new exam
// replaces it. The slot is left to the caller. If finalization is already
// underway Abandon waits for it to finish.
func (m *Machine) Abandon(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateUninitialized, StateActive:
		m.state = StateTerminal
		close(m.done)
		m.mu.Unlock()
		return nil
	case StateFinalizing:
		m.mu.Unlock()
		select {
		case <-m.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		m.mu.Unlock()
		return nil
	}
}

// Snapshot is a point-in-time view of the machine.
type Snapshot struct {
	State     State              `json:"state"`
	Remaining int                `json:"remaining_seconds"`
	Session   *model.ExamSession `json:"session,omitempty"`
	Result    *model.Result      `json:"result,omitempty"`
}

// Snapshot returns a copy of the current state. While the session is live
// the answer key and solutions are redacted.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{State: m.state, Result: m.result}
	if m.state == StateActive {
		m.remaining = m.computeRemaining()
	}
	snap.Remaining = m.remaining

	if m.sess != nil && m.state != StateTerminal {
		cp := *m.sess
		cp.Responses = make(map[int]string, len(m.sess.Responses))
		for k, v := range m.sess.Responses {
			cp.Responses[k] = v
		}
		cp.Visited = fromSet(m.visited)
		cp.MarkedForReview = fromSet(m.marked)
		cp.Questions = redact(m.sess.Questions)
		snap.Session = &cp
	}
	return snap
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Done is closed once the session is terminal.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// errSkipPersist aborts a mutation without error and without persisting.
var errSkipPersist = errors.New("skip persist")

func (m *Machine) mutate(ctx context.Context, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateUninitialized:
		return ErrNotInitialized
	case StateActive:
	default:
		return ErrNotActive
	}
	if m.computeRemaining() <= 0 {
		return ErrTimeUp
	}

	if err := fn(); err != nil {
		if errors.Is(err, errSkipPersist) {
			return nil
		}
		return err
	}

	m.sess.Visited = fromSet(m.visited)
	m.sess.MarkedForReview = fromSet(m.marked)
	if err := m.slot.Save(ctx, m.sess); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// computeRemaining must be called with mu held.
func (m *Machine) computeRemaining() int {
	total := m.sess.DurationMinutes * 60
	elapsed := int((m.now().UnixMilli() - m.sess.StartTime) / 1000)
	if elapsed < 0 {
		elapsed = 0
	}
	if rem := total - elapsed; rem > 0 {
		return rem
	}
	return 0
}

func redact(qs []model.Question) []model.Question {
	out := make([]model.Question, len(qs))
	for i, q := range qs {
		q.CorrectAnswer = ""
		q.Solution = ""
		q.Explanation = ""
		out[i] = q
	}
	return out
}

func resultID(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 36) + "-" + uuid.NewString()[:6]
}

func toSet(xs []int) map[int]struct{} {
	set := make(map[int]struct{}, len(xs))
	for _, x := range xs {
		set[x] = struct{}{}
	}
	return set
}

func fromSet(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for x := range set {
		out = append(out, x)
	}
	sort.Ints(out)
	return out
}
