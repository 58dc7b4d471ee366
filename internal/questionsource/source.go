// Package questionsource acquires question sets for a subject. Acquire always
// yields the requested number of questions: it generates what it can through
// the remote model in batches and fills the rest from the offline bank.
package questionsource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/llm"
	"github.com/stemsi/nexus-backend/internal/model"
)

var (
	ErrUnknownSubject       = errors.New("unknown subject")
	ErrInvalidCount         = errors.New("count must be positive")
	ErrDistributionMismatch = errors.New("distribution does not add up to count")
)

// Generator produces raw model output for a prompt using one credential.
type Generator interface {
	Generate(ctx context.Context, apiKey, prompt string) (string, error)
}

// Throttle is the shared request limiter and credential pool.
type Throttle = llm.Pool

// Fallback serves offline questions.
type Fallback interface {
	Draw(subject model.Subject, qtype model.QuestionType, n int) []model.Question
}

// Options tunes batching and retries.
type Options struct {
	BatchSize   int
	MaxRetries  int
	BackoffBase time.Duration
}

// Request describes the questions wanted for one subject.
type Request struct {
	Subject      model.Subject
	Count        int
	ExamType     string
	Chapters     []string
	Difficulty   string
	Topics       []string
	Distribution *model.Distribution
}

// Outcome is the result of Acquire. Questions always has the requested
// length; Degraded reports that remote generation stopped early.
type Outcome struct {
	Questions    []model.Question
	Generated    int
	FromFallback int
	Dropped      int
	Degraded     bool
	Reason       error
}

// Source composes remote generation with the offline fallback.
type Source struct {
	gen      Generator
	throttle Throttle
	fallback Fallback
	opts     Options
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	log      zerolog.Logger
}

// New creates a Source. A nil gen runs fallback-only.
func New(gen Generator, throttle Throttle, fallback Fallback, opts Options, log zerolog.Logger) *Source {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 12
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Source{
		gen:      gen,
		throttle: throttle,
		fallback: fallback,
		opts:     opts,
		now:      time.Now,
		log:      log.With().Str("component", "question_source").Logger(),
	}
}

// Acquire returns exactly req.Count questions. Errors are only returned for
// invalid requests; generation failures degrade to the offline bank.
func (s *Source) Acquire(ctx context.Context, req Request) (*Outcome, error) {
	if !req.Subject.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubject, req.Subject)
	}

	quota := model.DefaultDistribution(req.Count)
	if req.Distribution != nil {
		quota = *req.Distribution
		if req.Count == 0 {
			req.Count = quota.Total()
		}
		if quota.Total() != req.Count {
			return nil, fmt.Errorf("%w: %d+%d != %d", ErrDistributionMismatch, quota.MCQ, quota.Numerical, req.Count)
		}
	}
	if req.Count <= 0 {
		return nil, ErrInvalidCount
	}

	log := s.log.With().Str("subject", string(req.Subject)).Int("count", req.Count).Logger()
	out := &Outcome{}

	var mcqs, numericals []model.Question
	if s.gen == nil {
		out.Degraded = true
		out.Reason = llm.ErrNoCredentials
	} else {
		mcqs, numericals = s.generate(ctx, req, quota, out, log)
	}

	if missing := quota.MCQ - len(mcqs); missing > 0 {
		mcqs = append(mcqs, s.fallback.Draw(req.Subject, model.QuestionTypeMCQ, missing)...)
		out.FromFallback += missing
	}
	if missing := quota.Numerical - len(numericals); missing > 0 {
		numericals = append(numericals, s.fallback.Draw(req.Subject, model.QuestionTypeNumerical, missing)...)
		out.FromFallback += missing
	}

	out.Questions = append(mcqs, numericals...)
	ensureUniqueIDs(out.Questions, s.now())

	if out.FromFallback > 0 {
		ev := log.Warn().Int("generated", out.Generated).Int("fallback", out.FromFallback)
		if out.Reason != nil {
			ev = ev.Err(out.Reason)
		}
		ev.Msg("Served offline questions")
	} else {
		log.Info().Int("generated", out.Generated).Msg("Questions generated")
	}

	return out, nil
}

// generate runs the batch loop until both quotas are met, a terminal failure
// occurs or the failsafe attempt budget is spent.
func (s *Source) generate(ctx context.Context, req Request, quota model.Distribution, out *Outcome, log zerolog.Logger) ([]model.Question, []model.Question) {
	var mcqs, numericals []model.Question

	batches := (req.Count + s.opts.BatchSize - 1) / s.opts.BatchSize
	maxAttempts := batches*2 + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		needMCQ := quota.MCQ - len(mcqs)
		needNum := quota.Numerical - len(numericals)
		if needMCQ+needNum <= 0 {
			break
		}

		bMCQ, bNum := splitBatch(needMCQ, needNum, s.opts.BatchSize)
		spec := llm.PromptSpec{
			Subject:    req.Subject,
			ExamType:   req.ExamType,
			MCQ:        bMCQ,
			Numerical:  bNum,
			Chapters:   req.Chapters,
			Difficulty: req.Difficulty,
			Topics:     req.Topics,
		}

		parsed, err := s.fetchBatch(ctx, spec, req, log)
		if err != nil {
			kind := llm.Classify(err)
			if kind.Terminal() {
				out.Degraded = true
				out.Reason = err
				log.Warn().Err(err).Str("kind", kind.String()).Msg("Remote generation unavailable, switching to offline bank")
				break
			}
			log.Warn().Err(err).Int("attempt", attempt).Msg("Batch failed after retries")
			continue
		}

		for _, pq := range parsed {
			if !pq.Valid() {
				out.Dropped++
				log.Debug().Int("index", pq.Index).Str("reason", pq.Reason).Msg("Dropped malformed item")
				continue
			}
			q := pq.Question
			switch {
			case q.Type == model.QuestionTypeMCQ && len(mcqs) < quota.MCQ:
				mcqs = append(mcqs, q)
			case q.Type == model.QuestionTypeNumerical && len(numericals) < quota.Numerical:
				numericals = append(numericals, q)
			default:
				out.Dropped++
				continue
			}
			out.Generated++
		}
	}

	stamp := s.now().UnixMilli()
	for i := range mcqs {
		mcqs[i].ID = generatedID(stamp, i)
	}
	for i := range numericals {
		numericals[i].ID = generatedID(stamp, len(mcqs)+i)
	}

	if !out.Degraded && (len(mcqs) < quota.MCQ || len(numericals) < quota.Numerical) {
		out.Degraded = true
		out.Reason = errors.New("generation attempts exhausted")
	}
	return mcqs, numericals
}

// fetchBatch performs one batch, retrying and rotating credentials through
// llm.Call. A response that parses to no items counts as a failed attempt.
func (s *Source) fetchBatch(ctx context.Context, spec llm.PromptSpec, req Request, log zerolog.Logger) ([]llm.ParsedQuestion, error) {
	prompt := llm.BuildPrompt(spec)
	defaults := llm.Defaults{Subject: req.Subject, Difficulty: req.Difficulty}
	if len(req.Chapters) == 1 {
		defaults.Chapter = req.Chapters[0]
	}

	policy := llm.RetryPolicy{
		MaxRetries:  s.opts.MaxRetries,
		BackoffBase: s.opts.BackoffBase,
		Sleep:       s.sleep,
	}

	var parsed []llm.ParsedQuestion
	err := llm.Call(ctx, s.throttle, policy, log, func(ctx context.Context, key string) error {
		text, err := s.gen.Generate(ctx, key, prompt)
		if err != nil {
			return err
		}
		items, err := llm.ParseQuestions(text, defaults)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("%w: no items", llm.ErrMalformedResponse)
		}
		parsed = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

// splitBatch sizes the next batch with MCQ and Numerical proportional to what
// is still needed.
func splitBatch(needMCQ, needNum, size int) (int, int) {
	total := needMCQ + needNum
	if total <= size {
		return needMCQ, needNum
	}
	mcq := (needMCQ*size + total/2) / total
	if mcq > needMCQ {
		mcq = needMCQ
	}
	num := size - mcq
	if num > needNum {
		num = needNum
		mcq = size - num
	}
	return mcq, num
}

func generatedID(stamp int64, i int) string {
	return fmt.Sprintf("ai-%d-%d-%s", stamp, i, uuid.NewString()[:8])
}

// ensureUniqueIDs fills missing ids with generated ones and suffixes any
// id already seen in the set.
func ensureUniqueIDs(qs []model.Question, now time.Time) {
	for i := range qs {
		if qs[i].ID == "" {
			qs[i].ID = generatedID(now.UnixMilli(), i)
		}
	}
	model.EnsureUniqueIDs(qs, now.UnixMilli())
}
