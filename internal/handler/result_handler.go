package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/middleware"
	"github.com/stemsi/nexus-backend/internal/model"
	"github.com/stemsi/nexus-backend/internal/response"
	"github.com/stemsi/nexus-backend/internal/service"
)

// ResultArchive lists results persisted by the archive worker.
type ResultArchive interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]model.ResultSummary, error)
}

// ResultHandler serves finalized results.
type ResultHandler struct {
	sessionService *service.ExamSessionService
	archive        ResultArchive
	log            zerolog.Logger
}

// NewResultHandler creates the handler. archive may be nil.
func NewResultHandler(sessionService *service.ExamSessionService, archive ResultArchive, log zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		sessionService: sessionService,
		archive:        archive,
		log:            log.With().Str("component", "result_handler").Logger(),
	}
}

// GetLast godoc
// GET /api/v1/results/last
func (h *ResultHandler) GetLast(c *gin.Context) {
	claims := middleware.GetClaims(c)

	res, err := h.sessionService.LastResult(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// GetByID godoc
// GET /api/v1/results/:id
func (h *ResultHandler) GetByID(c *gin.Context) {
	claims := middleware.GetClaims(c)

	res, err := h.sessionService.ResultByID(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// ListHistory godoc
// GET /api/v1/results/history?page=1&per_page=10
func (h *ResultHandler) ListHistory(c *gin.Context) {
	claims := middleware.GetClaims(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 50 {
		perPage = 10
	}

	list, err := h.sessionService.History(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	start := (page - 1) * perPage
	if start > len(list) {
		start = len(list)
	}
	end := start + perPage
	if end > len(list) {
		end = len(list)
	}

	response.SuccessWithPagination(c, http.StatusOK,
		gin.H{"results": list[start:end]},
		response.NewPagination(page, perPage, len(list)),
	)
}

// ListArchived godoc
// GET /api/v1/results/archive?limit=100
// Lists every result stored in the database, beyond the history cap.
func (h *ResultHandler) ListArchived(c *gin.Context) {
	if h.archive == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrStorageUnavailable)
		return
	}
	claims := middleware.GetClaims(c)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 500 {
		limit = 100
	}

	list, err := h.archive.ListByUser(c.Request.Context(), claims.UserID, limit)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"results": list})
}
