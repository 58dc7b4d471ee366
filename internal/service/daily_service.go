package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/config"
	"github.com/stemsi/nexus-backend/internal/daily"
	"github.com/stemsi/nexus-backend/internal/model"
	"github.com/stemsi/nexus-backend/internal/session"
)

var ErrInvalidDate = errors.New("date must be YYYY-MM-DD")

// DefaultDailyDistribution is the per-subject split of a generated daily paper.
var DefaultDailyDistribution = model.Distribution{MCQ: 25, Numerical: 5}

// DailyService drives the daily challenge: status, start, results and
// publishing.
type DailyService struct {
	gate     *daily.Gate
	store    daily.Store
	sessions *ExamSessionService
	papers   *PaperService
	log      zerolog.Logger
}

// NewDailyService creates the service. papers may be nil when only
// explicit publishing is needed.
func NewDailyService(gate *daily.Gate, store daily.Store, sessions *ExamSessionService, papers *PaperService, log zerolog.Logger) *DailyService {
	return &DailyService{
		gate:     gate,
		store:    store,
		sessions: sessions,
		papers:   papers,
		log:      log.With().Str("component", "daily_service").Logger(),
	}
}

func (s *DailyService) Status(ctx context.Context, userID string, isAdmin bool) (*daily.Status, error) {
	return s.gate.Status(ctx, userID, isAdmin)
}

// Watch streams status changes for userID until ctx is done.
func (s *DailyService) Watch(ctx context.Context, userID string, isAdmin bool, interval time.Duration) <-chan daily.Status {
	return s.gate.Watch(ctx, userID, isAdmin, interval)
}

// Start passes both locks and begins today's challenge as the user's
// active session. A daily session for today that is still running is
// resumed with its clock intact instead of being restarted.
func (s *DailyService) Start(ctx context.Context, userID string, isAdmin bool) (session.Snapshot, error) {
	today := s.gate.Today()
	resume := func(sess *model.ExamSession) bool {
		return sess != nil && sess.IsDaily && sess.DailyDate == today
	}
	return s.sessions.BeginOrResume(ctx, userID, resume, func(ctx context.Context) (*model.ExamSession, error) {
		return s.gate.Start(ctx, userID, isAdmin)
	})
}

func (s *DailyService) Result(ctx context.Context, userID string) (*model.Result, error) {
	return s.gate.Result(ctx, userID)
}

// Leaderboard ranks attempts for date; an empty date means today.
func (s *DailyService) Leaderboard(ctx context.Context, date string) ([]model.LeaderboardEntry, error) {
	if date == "" {
		date = s.gate.Today()
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, ErrInvalidDate
	}
	return s.gate.Leaderboard(ctx, date)
}

// Analysis returns the per-subject result analysis for date; an empty date
// means today.
func (s *DailyService) Analysis(ctx context.Context, date string) ([]model.AttemptAnalysis, error) {
	if date == "" {
		date = s.gate.Today()
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, ErrInvalidDate
	}
	return s.gate.Analysis(ctx, date)
}

// Publish stores questions as the challenge for date, replacing any paper
// already published for it. An empty date means today.
func (s *DailyService) Publish(ctx context.Context, date string, questions []model.Question) (*model.DailyChallenge, error) {
	if date == "" {
		date = s.gate.Today()
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, ErrInvalidDate
	}

	qs := make([]model.Question, len(questions))
	copy(qs, questions)
	stamp := time.Now().UnixMilli()
	for i := range qs {
		if qs[i].MarkingScheme.Positive == 0 {
			qs[i].MarkingScheme = model.DefaultMarkingScheme(qs[i].Type)
		}
		if qs[i].ID == "" {
			qs[i].ID = fmt.Sprintf("daily-%d-%d", i, stamp)
		}
	}
	model.EnsureUniqueIDs(qs, stamp)

	c := &model.DailyChallenge{Date: date, Questions: qs, CreatedAt: time.Now()}
	if err := s.store.CreateDailyChallenge(ctx, c); err != nil {
		return nil, fmt.Errorf("publish daily challenge: %w", err)
	}

	s.log.Info().Str("date", date).Int("questions", len(qs)).Msg("Daily challenge published")
	return c, nil
}

// GenerateAndPublish builds a full three-subject paper and publishes it.
func (s *DailyService) GenerateAndPublish(ctx context.Context, date string, dist *model.Distribution) (*model.DailyChallenge, *Paper, error) {
	if s.papers == nil {
		return nil, nil, errors.New("paper generation is not configured")
	}
	if dist == nil {
		d := DefaultDailyDistribution
		dist = &d
	}

	paper, err := s.papers.Generate(ctx, GeneratePaperRequest{
		Subjects:     model.Subjects,
		Count:        dist.Total(),
		ExamType:     model.ExamTypeJEEMain,
		Distribution: dist,
	})
	if err != nil {
		return nil, nil, err
	}

	c, err := s.Publish(ctx, date, paper.Questions)
	if err != nil {
		return nil, nil, err
	}
	return c, paper, nil
}

// EnsurePublished generates today's paper unless one already exists.
func (s *DailyService) EnsurePublished(ctx context.Context) error {
	date := s.gate.Today()
	_, err := s.store.GetDailyChallenge(ctx, date)
	if err == nil {
		s.log.Debug().Str("date", date).Msg("Daily challenge already published")
		return nil
	}
	if !errors.Is(err, daily.ErrNotFound) {
		return err
	}
	_, _, err = s.GenerateAndPublish(ctx, date, nil)
	return err
}

// ─── Scheduler ──────────────────────────────────────────────────────────────

// DailyScheduler publishes the day's paper on a cron schedule evaluated in
// the challenge timezone.
type DailyScheduler struct {
	daily *DailyService
	spec  string
	loc   *time.Location
	log   zerolog.Logger
}

func NewDailyScheduler(daily *DailyService, spec string, loc *time.Location, log zerolog.Logger) *DailyScheduler {
	return &DailyScheduler{
		daily: daily,
		spec:  spec,
		loc:   loc,
		log:   log.With().Str("component", "daily_scheduler").Logger(),
	}
}

// Start blocks until ctx is done. Call in a goroutine.
func (s *DailyScheduler) Start(ctx context.Context) error {
	c := cron.New(cron.WithLocation(s.loc))

	_, err := c.AddFunc(s.spec, func() {
		s.log.Info().Msg("Cron triggered: ensuring daily challenge")
		if err := s.daily.EnsurePublished(ctx); err != nil {
			s.log.Error().Err(err).Msg("Scheduled daily publish failed")
		}
	})
	if err != nil {
		return fmt.Errorf("add cron job %q: %w", s.spec, err)
	}

	c.Start()
	s.log.Info().Str("spec", s.spec).Str("timezone", s.loc.String()).Msg("Scheduler started")

	<-ctx.Done()

	<-c.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
	return nil
}

// ─── Attempt submission ─────────────────────────────────────────────────────

// RetryingSubmitter submits daily attempts and hands failures to the retry
// queue.
type RetryingSubmitter struct {
	store daily.Store
	queue Queue
	log   zerolog.Logger
}

// NewRetryingSubmitter creates a submitter. queue may be nil, in which case
// failures are returned to the caller.
func NewRetryingSubmitter(store daily.Store, queue Queue, log zerolog.Logger) *RetryingSubmitter {
	return &RetryingSubmitter{
		store: store,
		queue: queue,
		log:   log.With().Str("component", "daily_attempt_submitter").Logger(),
	}
}

func (r *RetryingSubmitter) SubmitDailyAttempt(ctx context.Context, a *model.DailyAttempt) error {
	err := r.store.SubmitDailyAttempt(ctx, a)
	if err == nil || r.queue == nil {
		return err
	}

	if qerr := r.queue.Push(ctx, config.WorkerKey.RetryDailyAttemptsQueue, a); qerr != nil {
		r.log.Error().Err(qerr).Str("user_id", a.UserID).Msg("Enqueue daily attempt retry failed")
		return err
	}

	r.log.Warn().Err(err).Str("user_id", a.UserID).Str("date", a.Date).Msg("Daily attempt queued for retry")
	return nil
}
