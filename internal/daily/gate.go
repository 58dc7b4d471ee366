// Package daily gates the shared daily challenge: a time-of-day lock in a
// fixed civil timezone and one scored attempt per user per date.
package daily

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/model"
	"github.com/stemsi/nexus-backend/internal/scoring"
)

var (
	ErrNotFound         = errors.New("daily: not found")
	ErrLocked           = errors.New("daily challenge is locked until opening time")
	ErrAlreadyAttempted = errors.New("daily challenge already attempted")
	ErrNotPublished     = errors.New("daily challenge not published")
	ErrNotAttempted     = errors.New("daily challenge not attempted")
)

// Store is the persistent daily challenge and attempt store. Both writes are
// upserts: one challenge per date and one attempt per (user, date).
// Getters return ErrNotFound when nothing is stored.
type Store interface {
	GetDailyChallenge(ctx context.Context, date string) (*model.DailyChallenge, error)
	CreateDailyChallenge(ctx context.Context, c *model.DailyChallenge) error
	SubmitDailyAttempt(ctx context.Context, a *model.DailyAttempt) error
	GetUserDailyAttempt(ctx context.Context, userID, date string) (*model.DailyAttempt, error)
	ListDailyAttempts(ctx context.Context, date string) ([]model.LeaderboardEntry, error)
	ListDailyAttemptDetails(ctx context.Context, date string) ([]model.DailyAttempt, error)
}

// Schedule computes the challenge date and opening time in one timezone.
type Schedule struct {
	loc        *time.Location
	openHour   int
	openMinute int
}

func NewSchedule(timezone string, openHour, openMinute int) (Schedule, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Schedule{}, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return Schedule{loc: loc, openHour: openHour, openMinute: openMinute}, nil
}

// Location returns the challenge timezone.
func (s Schedule) Location() *time.Location {
	return s.loc
}

// Date returns the challenge date for t as YYYY-MM-DD.
func (s Schedule) Date(t time.Time) string {
	return t.In(s.loc).Format(time.DateOnly)
}

// OpensAt returns the opening instant of the challenge day containing t.
func (s Schedule) OpensAt(t time.Time) time.Time {
	local := t.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), s.openHour, s.openMinute, 0, 0, s.loc)
}

// Locked reports whether t falls before the day's opening time.
func (s Schedule) Locked(t time.Time) bool {
	return t.Before(s.OpensAt(t))
}

// Status is what a user may do with today's challenge.
type Status struct {
	Date          string    `json:"date"`
	Locked        bool      `json:"locked"`
	OpensAt       time.Time `json:"opens_at"`
	Published     bool      `json:"published"`
	QuestionCount int       `json:"question_count"`
	HasAttempted  bool      `json:"has_attempted"`
	CanStart      bool      `json:"can_start"`
	CanViewResult bool      `json:"can_view_result"`
}

// Gate applies the time and attempt locks.
type Gate struct {
	store              Store
	schedule           Schedule
	minutesPerQuestion float64
	now                func() time.Time
	log                zerolog.Logger
}

func NewGate(store Store, schedule Schedule, minutesPerQuestion float64, log zerolog.Logger) *Gate {
	if minutesPerQuestion <= 0 {
		minutesPerQuestion = 2.4
	}
	return &Gate{
		store:              store,
		schedule:           schedule,
		minutesPerQuestion: minutesPerQuestion,
		now:                time.Now,
		log:                log.With().Str("component", "daily_gate").Logger(),
	}
}

// Today returns the current challenge date.
func (g *Gate) Today() string {
	return g.schedule.Date(g.now())
}

// Status evaluates both locks for userID. Admins bypass the time lock only.
func (g *Gate) Status(ctx context.Context, userID string, isAdmin bool) (*Status, error) {
	st, _, err := g.evaluate(ctx, userID, isAdmin)
	return st, err
}

func (g *Gate) evaluate(ctx context.Context, userID string, isAdmin bool) (*Status, *model.DailyChallenge, error) {
	now := g.now()
	st := &Status{
		Date:    g.schedule.Date(now),
		OpensAt: g.schedule.OpensAt(now),
		Locked:  !isAdmin && g.schedule.Locked(now),
	}

	challenge, err := g.store.GetDailyChallenge(ctx, st.Date)
	switch {
	case err == nil:
		st.Published = len(challenge.Questions) > 0
		st.QuestionCount = len(challenge.Questions)
	case errors.Is(err, ErrNotFound):
	default:
		return nil, nil, fmt.Errorf("get daily challenge: %w", err)
	}

	_, err = g.store.GetUserDailyAttempt(ctx, userID, st.Date)
	switch {
	case err == nil:
		st.HasAttempted = true
	case errors.Is(err, ErrNotFound):
	default:
		return nil, nil, fmt.Errorf("get daily attempt: %w", err)
	}

	st.CanStart = !st.Locked && !st.HasAttempted && st.Published
	st.CanViewResult = st.HasAttempted
	return st, challenge, nil
}

// Start returns a fresh session descriptor for today's challenge.
func (g *Gate) Start(ctx context.Context, userID string, isAdmin bool) (*model.ExamSession, error) {
	st, challenge, err := g.evaluate(ctx, userID, isAdmin)
	if err != nil {
		return nil, err
	}
	switch {
	case st.Locked:
		return nil, ErrLocked
	case st.HasAttempted:
		return nil, ErrAlreadyAttempted
	case !st.Published:
		return nil, ErrNotPublished
	}

	questions := make([]model.Question, len(challenge.Questions))
	copy(questions, challenge.Questions)

	return &model.ExamSession{
		Type:            SessionType(st.Date),
		Questions:       questions,
		StartTime:       g.now().UnixMilli(),
		DurationMinutes: g.Duration(len(questions)),
		Responses:       map[int]string{},
		Visited:         []int{0},
		IsDaily:         true,
		DailyDate:       st.Date,
	}, nil
}

// Duration returns the time allowed for n questions in whole minutes.
func (g *Gate) Duration(n int) int {
	return int(math.Ceil(float64(n) * g.minutesPerQuestion))
}

// Result rebuilds today's result for userID from the stored attempt.
func (g *Gate) Result(ctx context.Context, userID string) (*model.Result, error) {
	date := g.Today()
	a, err := g.store.GetUserDailyAttempt(ctx, userID, date)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotAttempted
		}
		return nil, fmt.Errorf("get daily attempt: %w", err)
	}
	return &model.Result{
		ID:            "daily-" + date,
		Score:         a.Score,
		TotalPossible: a.TotalMarks,
		Accuracy:      a.Stats.Accuracy,
		CompletedAt:   a.Stats.CompletedAt,
		Questions:     a.AttemptData,
		Type:          SessionType(date),
	}, nil
}

// Leaderboard lists attempts for date ranked by score.
func (g *Gate) Leaderboard(ctx context.Context, date string) ([]model.LeaderboardEntry, error) {
	return g.store.ListDailyAttempts(ctx, date)
}

// Analysis ranks attempts for date like Leaderboard and splits each one by
// subject.
func (g *Gate) Analysis(ctx context.Context, date string) ([]model.AttemptAnalysis, error) {
	attempts, err := g.store.ListDailyAttemptDetails(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list daily attempts: %w", err)
	}

	rows := make([]model.AttemptAnalysis, len(attempts))
	for i, a := range attempts {
		rows[i] = model.AttemptAnalysis{
			LeaderboardEntry: Entry(a),
			Breakdown:        scoring.SubjectBreakdown(a.AttemptData),
		}
		rows[i].Rank = i + 1
	}
	return rows, nil
}

// Watch re-evaluates the status every interval and sends it whenever it
// changes, starting with the current one. The channel closes with ctx.
func (g *Gate) Watch(ctx context.Context, userID string, isAdmin bool, interval time.Duration) <-chan Status {
	out := make(chan Status, 1)

	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last *Status
		for {
			st, err := g.Status(ctx, userID, isAdmin)
			if err != nil {
				g.log.Warn().Err(err).Str("user_id", userID).Msg("Daily status refresh failed")
			} else if last == nil || !sameStatus(*last, *st) {
				select {
				case out <- *st:
				case <-ctx.Done():
					return
				}
				last = st
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}

// SessionType labels a daily challenge session.
func SessionType(date string) string {
	return "Daily Mock • " + date
}

func sameStatus(a, b Status) bool {
	return a.Date == b.Date &&
		a.Locked == b.Locked &&
		a.Published == b.Published &&
		a.QuestionCount == b.QuestionCount &&
		a.HasAttempted == b.HasAttempted
}
