package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/config"
	"github.com/stemsi/nexus-backend/internal/kv"
	"github.com/stemsi/nexus-backend/internal/llm"
	"github.com/stemsi/nexus-backend/internal/model"
	"github.com/stemsi/nexus-backend/internal/scoring"
)

var (
	ErrModelUnavailable = errors.New("question model is not configured")
	ErrNothingExtracted = errors.New("no questions extracted from document")
)

// insightFallback is served when the model cannot be reached.
const insightFallback = "Analysis insight unavailable."

// maxSummaryLen caps the attempt summary sent for coaching.
const maxSummaryLen = 4000

// Assistant is the model surface used outside paper generation.
type Assistant interface {
	Analyze(ctx context.Context, apiKey, summary string) (string, error)
	Extract(ctx context.Context, apiKey string, docs []llm.Document) (string, error)
}

// ResultLookup finds one of a user's results.
type ResultLookup interface {
	ResultByID(ctx context.Context, userID, id string) (*model.Result, error)
}

// DocumentParse is the outcome of reading a question paper.
type DocumentParse struct {
	Questions []model.Question `json:"questions"`
	Dropped   int              `json:"dropped"`
	Problems  []string         `json:"problems,omitempty"`
}

// AssistService writes coaching for results and reads question papers with
// the model. Both share the generation credential pool and throttle.
type AssistService struct {
	model   Assistant
	pool    llm.Pool
	policy  llm.RetryPolicy
	results ResultLookup
	cache   kv.Store
	clock   func() time.Time
	log     zerolog.Logger
}

// NewAssistService creates the service. A nil model disables both features:
// insights fall back to a placeholder and parsing fails.
func NewAssistService(m Assistant, pool llm.Pool, policy llm.RetryPolicy, results ResultLookup, cache kv.Store, log zerolog.Logger) *AssistService {
	return &AssistService{
		model:   m,
		pool:    pool,
		policy:  policy,
		results: results,
		cache:   cache,
		clock:   time.Now,
		log:     log.With().Str("component", "assist_service").Logger(),
	}
}

// Insight returns coaching for one of the user's results. Successful
// insights are cached per result; failures yield the placeholder and are
// retried on the next call.
func (s *AssistService) Insight(ctx context.Context, userID, resultID string) (*model.Insight, error) {
	res, err := s.results.ResultByID(ctx, userID, resultID)
	if err != nil {
		return nil, err
	}

	key := config.CacheKey.InsightKey(userID, resultID)
	var cached model.Insight
	switch err := s.cache.Get(ctx, key, &cached); {
	case err == nil:
		return &cached, nil
	case !errors.Is(err, kv.ErrNotFound):
		s.log.Warn().Err(err).Str("result_id", resultID).Msg("Read cached insight failed")
	}

	insight := &model.Insight{ResultID: resultID, Text: insightFallback, CreatedAt: s.clock()}
	if s.model == nil {
		return insight, nil
	}

	summary := Summarize(res)
	var text string
	err = llm.Call(ctx, s.pool, s.policy, s.log, func(ctx context.Context, apiKey string) error {
		out, err := s.model.Analyze(ctx, apiKey, summary)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(out)
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("result_id", resultID).Str("kind", llm.Classify(err).String()).Msg("Insight unavailable")
		return insight, nil
	}

	insight.Text = text
	insight.Available = true
	if err := s.cache.Set(ctx, key, insight); err != nil {
		s.log.Warn().Err(err).Str("result_id", resultID).Msg("Cache insight failed")
	}
	return insight, nil
}

// ParseDocument extracts questions from a paper, using key as the solution
// key when given. Items the model got wrong are dropped and reported.
func (s *AssistService) ParseDocument(ctx context.Context, paper llm.Document, key *llm.Document) (*DocumentParse, error) {
	if s.model == nil {
		return nil, ErrModelUnavailable
	}

	docs := []llm.Document{paper}
	if key != nil {
		docs = append(docs, *key)
	}

	var parsed []llm.ParsedQuestion
	err := llm.Call(ctx, s.pool, s.policy, s.log, func(ctx context.Context, apiKey string) error {
		text, err := s.model.Extract(ctx, apiKey, docs)
		if err != nil {
			return err
		}
		items, err := llm.ParseQuestions(text, llm.Defaults{})
		if err != nil {
			return err
		}
		parsed = items
		return nil
	})
	if err != nil {
		if llm.Classify(err).Terminal() {
			return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		return nil, err
	}

	out := &DocumentParse{Questions: []model.Question{}}
	for _, pq := range parsed {
		if !pq.Valid() {
			out.Dropped++
			out.Problems = append(out.Problems, fmt.Sprintf("item %d: %s", pq.Index+1, pq.Reason))
			continue
		}
		out.Questions = append(out.Questions, pq.Question)
	}
	if len(out.Questions) == 0 {
		return nil, ErrNothingExtracted
	}

	stamp := s.clock().UnixMilli()
	for i := range out.Questions {
		out.Questions[i].ID = fmt.Sprintf("parsed-%d-%d", stamp, i)
	}
	model.EnsureUniqueIDs(out.Questions, stamp)

	s.log.Info().
		Int("questions", len(out.Questions)).
		Int("dropped", out.Dropped).
		Bool("with_key", key != nil).
		Msg("Document parsed")
	return out, nil
}

// Summarize renders a result as the compact text sent for coaching: totals,
// a per-subject split and the chapters that cost the most marks.
func Summarize(r *model.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Paper: %s\n", r.Type)
	fmt.Fprintf(&b, "Score: %d / %d, accuracy %d%%\n", r.Score, r.TotalPossible, r.Accuracy)

	breakdown := scoring.SubjectBreakdown(r.Questions)
	for _, subject := range model.Subjects {
		st := breakdown.Subjects[subject]
		fmt.Fprintf(&b, "%s: %d correct, %d wrong, %d unattempted, %d marks\n",
			subject, st.Correct, st.Wrong, st.Unattempted, st.Score)
	}
	fmt.Fprintf(&b, "Negative marks: %d\n", breakdown.NegativeMarks)

	if weak := weakChapters(r.Questions, 5); len(weak) > 0 {
		b.WriteString("Chapters with lost marks:\n")
		for _, w := range weak {
			fmt.Fprintf(&b, "- %s (%s): %d missed\n", w.chapter, w.subject, w.missed)
		}
	}

	text := b.String()
	if len(text) > maxSummaryLen {
		text = text[:maxSummaryLen]
	}
	return text
}

type chapterMiss struct {
	subject model.Subject
	chapter string
	missed  int
}

func weakChapters(answered []model.AnsweredQuestion, limit int) []chapterMiss {
	index := make(map[string]int)
	var misses []chapterMiss
	for _, aq := range answered {
		if aq.IsCorrect || aq.Chapter == "" {
			continue
		}
		k := string(aq.Subject) + "|" + aq.Chapter
		i, ok := index[k]
		if !ok {
			i = len(misses)
			index[k] = i
			misses = append(misses, chapterMiss{subject: aq.Subject, chapter: aq.Chapter})
		}
		misses[i].missed++
	}

	sort.SliceStable(misses, func(i, j int) bool { return misses[i].missed > misses[j].missed })
	if len(misses) > limit {
		misses = misses[:limit]
	}
	return misses
}
