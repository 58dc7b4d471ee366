package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/model"
	"github.com/stemsi/nexus-backend/internal/questionsource"
)

var ErrVaultUnavailable = errors.New("question vault requires a database")

// Acquirer yields question sets for one subject.
type Acquirer interface {
	Acquire(ctx context.Context, req questionsource.Request) (*questionsource.Outcome, error)
}

// Vault stores generated questions for later reuse.
type Vault interface {
	SaveMany(ctx context.Context, qs []model.Question) (int, error)
	List(ctx context.Context, q model.VaultQuestionsQuery) ([]model.Question, error)
}

// GeneratePaperRequest asks for a paper over one or more subjects.
type GeneratePaperRequest struct {
	Subjects     []model.Subject     `json:"subjects" binding:"required,min=1,max=3,dive,subject"`
	Count        int                 `json:"count" binding:"min=0,max=100"`
	ExamType     string              `json:"exam_type" binding:"omitempty,oneof='JEE Main' 'JEE Advanced'"`
	Chapters     []string            `json:"chapters" binding:"max=20,dive,max=120"`
	Topics       []string            `json:"topics" binding:"max=20,dive,max=120"`
	Difficulty   string              `json:"difficulty" binding:"omitempty,oneof=Easy Medium Hard Mixed"`
	Distribution *model.Distribution `json:"distribution"`
}

// SubjectReport describes how one subject's questions were produced.
type SubjectReport struct {
	Subject      model.Subject `json:"subject"`
	Generated    int           `json:"generated"`
	FromFallback int           `json:"from_fallback"`
	Dropped      int           `json:"dropped"`
	Degraded     bool          `json:"degraded"`
	Reason       string        `json:"reason,omitempty"`
}

// Paper is a generated question set ready to start.
type Paper struct {
	Type      string           `json:"type"`
	Questions []model.Question `json:"questions"`
	Subjects  []SubjectReport  `json:"subjects"`
	Saved     int              `json:"saved"`
}

// PaperService assembles multi-subject papers. Subjects are acquired one
// after another with a pause in between to spread load on the model.
type PaperService struct {
	source       Acquirer
	vault        Vault
	subjectDelay time.Duration
	log          zerolog.Logger
}

// NewPaperService creates the service. vault may be nil.
func NewPaperService(source Acquirer, vault Vault, subjectDelay time.Duration, log zerolog.Logger) *PaperService {
	return &PaperService{
		source:       source,
		vault:        vault,
		subjectDelay: subjectDelay,
		log:          log.With().Str("component", "paper_service").Logger(),
	}
}

// Generate acquires every requested subject. It fails only on invalid input
// or cancellation; generation failures are reported per subject.
func (s *PaperService) Generate(ctx context.Context, req GeneratePaperRequest) (*Paper, error) {
	examType := req.ExamType
	if examType == "" {
		examType = model.ExamTypeJEEMain
	}
	count := req.Count
	if count == 0 && req.Distribution == nil {
		count = 10
	}

	paper := &Paper{Type: examType}
	for i, subject := range req.Subjects {
		if i > 0 && s.subjectDelay > 0 {
			if err := sleepCtx(ctx, s.subjectDelay); err != nil {
				return nil, err
			}
		}

		out, err := s.source.Acquire(ctx, questionsource.Request{
			Subject:      subject,
			Count:        count,
			ExamType:     examType,
			Chapters:     req.Chapters,
			Difficulty:   req.Difficulty,
			Topics:       req.Topics,
			Distribution: req.Distribution,
		})
		if err != nil {
			return nil, err
		}

		paper.Questions = append(paper.Questions, out.Questions...)
		report := SubjectReport{
			Subject:      subject,
			Generated:    out.Generated,
			FromFallback: out.FromFallback,
			Dropped:      out.Dropped,
			Degraded:     out.Degraded,
		}
		if out.Reason != nil {
			report.Reason = out.Reason.Error()
		}
		paper.Subjects = append(paper.Subjects, report)

		if s.vault != nil && out.Generated > 0 {
			saved, err := s.vault.SaveMany(ctx, generatedOnly(out.Questions))
			if err != nil {
				s.log.Warn().Err(err).Str("subject", string(subject)).Msg("Save generated questions failed")
			}
			paper.Saved += saved
		}
	}

	s.log.Info().
		Str("type", examType).
		Int("questions", len(paper.Questions)).
		Int("saved", paper.Saved).
		Msg("Paper generated")

	return paper, nil
}

// VaultQuestions lists saved questions. It returns ErrVaultUnavailable when
// no database is configured.
func (s *PaperService) VaultQuestions(ctx context.Context, q model.VaultQuestionsQuery) ([]model.Question, error) {
	if s.vault == nil {
		return nil, ErrVaultUnavailable
	}
	if q.Limit == 0 {
		q.Limit = 50
	}
	return s.vault.List(ctx, q)
}

// generatedOnly keeps the questions produced by the model; bank questions
// are already bundled and never saved.
func generatedOnly(qs []model.Question) []model.Question {
	out := make([]model.Question, 0, len(qs))
	for _, q := range qs {
		if strings.HasPrefix(q.ID, "ai-") {
			out = append(out, q)
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
