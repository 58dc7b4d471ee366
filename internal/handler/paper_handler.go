package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/model"
	"github.com/stemsi/nexus-backend/internal/response"
	"github.com/stemsi/nexus-backend/internal/service"
	"github.com/stemsi/nexus-backend/internal/validator"
)

// PaperHandler serves question generation and the saved question vault.
type PaperHandler struct {
	paperService *service.PaperService
	log          zerolog.Logger
}

func NewPaperHandler(paperService *service.PaperService, log zerolog.Logger) *PaperHandler {
	return &PaperHandler{
		paperService: paperService,
		log:          log.With().Str("component", "paper_handler").Logger(),
	}
}

// GeneratePaper godoc
// POST /api/v1/papers/generate
// Always returns the requested number of questions per subject; the report
// tells how many came from the offline bank.
func (h *PaperHandler) GeneratePaper(c *gin.Context) {
	var req service.GeneratePaperRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	paper, err := h.paperService.Generate(c.Request.Context(), req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, paper)
}

// ListVault godoc
// GET /api/v1/papers/vault?subject=Physics&chapter=&limit=
func (h *PaperHandler) ListVault(c *gin.Context) {
	var q model.VaultQuestionsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions, err := h.paperService.VaultQuestions(c.Request.Context(), q)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}
