package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/middleware"
	"github.com/stemsi/nexus-backend/internal/model"
	"github.com/stemsi/nexus-backend/internal/response"
	"github.com/stemsi/nexus-backend/internal/service"
	"github.com/stemsi/nexus-backend/internal/session"
	"github.com/stemsi/nexus-backend/internal/validator"
)

// ExamHandler drives the caller's active exam session over HTTP.
type ExamHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(sessionService *service.ExamSessionService, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "exam_handler").Logger(),
	}
}

// StartExam godoc
// POST /api/v1/exams
// Starts a new session from the given questions, replacing any session in
// progress.
func (h *ExamHandler) StartExam(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.StartExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	snap, err := h.sessionService.StartPractice(c.Request.Context(), claims.UserID, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, snap)
}

// GetActive godoc
// GET /api/v1/exams/active
func (h *ExamHandler) GetActive(c *gin.Context) {
	claims := middleware.GetClaims(c)

	snap, err := h.sessionService.Snapshot(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, snap)
}

// Answer godoc
// PUT /api/v1/exams/active/answer
func (h *ExamHandler) Answer(c *gin.Context) {
	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	h.mutate(c, func(ctx context.Context, m *session.Machine) error {
		return m.Answer(ctx, req.Answer)
	})
}

// ToggleOption godoc
// POST /api/v1/exams/active/toggle
func (h *ExamHandler) ToggleOption(c *gin.Context) {
	var req model.ToggleOptionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	h.mutate(c, func(ctx context.Context, m *session.Machine) error {
		return m.ToggleOption(ctx, *req.Option)
	})
}

// ClearAnswer godoc
// DELETE /api/v1/exams/active/answer
func (h *ExamHandler) ClearAnswer(c *gin.Context) {
	h.mutate(c, func(ctx context.Context, m *session.Machine) error {
		return m.Clear(ctx)
	})
}

// Navigate godoc
// POST /api/v1/exams/active/navigate
// Moving past the last question leaves the cursor in place and reports
// confirm_submit instead.
func (h *ExamHandler) Navigate(c *gin.Context) {
	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	claims := middleware.GetClaims(c)
	ctx := c.Request.Context()

	m, err := h.sessionService.Active(ctx, claims.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	nav, err := navigate(ctx, m, req.Direction, req.Index)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"confirm_submit": nav == session.NavConfirmSubmit,
		"snapshot":       m.Snapshot(),
	})
}

// ToggleMark godoc
// POST /api/v1/exams/active/mark
func (h *ExamHandler) ToggleMark(c *gin.Context) {
	h.mutate(c, func(ctx context.Context, m *session.Machine) error {
		return m.ToggleMark(ctx)
	})
}

// Submit godoc
// POST /api/v1/exams/active/submit
func (h *ExamHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)

	res, err := h.sessionService.Submit(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// mutate applies fn to the caller's machine and replies with the new snapshot.
func (h *ExamHandler) mutate(c *gin.Context, fn func(ctx context.Context, m *session.Machine) error) {
	claims := middleware.GetClaims(c)
	ctx := c.Request.Context()

	m, err := h.sessionService.Active(ctx, claims.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if err := fn(ctx, m); err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, m.Snapshot())
}

func navigate(ctx context.Context, m *session.Machine, direction string, index int) (session.Nav, error) {
	switch direction {
	case "next":
		return m.Next(ctx)
	case "prev":
		return session.NavMoved, m.Prev(ctx)
	case "jump":
		return session.NavMoved, m.Jump(ctx, index)
	}
	return session.NavMoved, session.ErrOutOfRange
}
