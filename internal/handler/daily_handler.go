package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/middleware"
	"github.com/stemsi/nexus-backend/internal/model"
	"github.com/stemsi/nexus-backend/internal/response"
	"github.com/stemsi/nexus-backend/internal/service"
	"github.com/stemsi/nexus-backend/internal/validator"
)

// DailyHandler serves the daily challenge for users and admins.
type DailyHandler struct {
	dailyService *service.DailyService
	log          zerolog.Logger
}

func NewDailyHandler(dailyService *service.DailyService, log zerolog.Logger) *DailyHandler {
	return &DailyHandler{
		dailyService: dailyService,
		log:          log.With().Str("component", "daily_handler").Logger(),
	}
}

// GetStatus godoc
// GET /api/v1/daily
func (h *DailyHandler) GetStatus(c *gin.Context) {
	claims := middleware.GetClaims(c)

	st, err := h.dailyService.Status(c.Request.Context(), claims.UserID, claims.IsAdmin())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, st)
}

// Start godoc
// POST /api/v1/daily/start
func (h *DailyHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)

	snap, err := h.dailyService.Start(c.Request.Context(), claims.UserID, claims.IsAdmin())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, snap)
}

// GetResult godoc
// GET /api/v1/daily/result
func (h *DailyHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)

	res, err := h.dailyService.Result(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// GetLeaderboard godoc
// GET /api/v1/daily/leaderboard
func (h *DailyHandler) GetLeaderboard(c *gin.Context) {
	entries, err := h.dailyService.Leaderboard(c.Request.Context(), c.Param("date"))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempts": entries})
}

// GetAnalysis godoc
// GET /api/v1/admin/daily/:date/attempts
func (h *DailyHandler) GetAnalysis(c *gin.Context) {
	rows, err := h.dailyService.Analysis(c.Request.Context(), c.Param("date"))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"date": c.Param("date"), "attempts": rows})
}

// Publish godoc
// POST /api/v1/admin/daily/publish
func (h *DailyHandler) Publish(c *gin.Context) {
	var req model.PublishDailyRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	challenge, err := h.dailyService.Publish(c.Request.Context(), req.Date, req.Questions)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{
		"date":      challenge.Date,
		"questions": len(challenge.Questions),
	})
}

// Generate godoc
// POST /api/v1/admin/daily/generate
// Generates a three-subject paper and publishes it for the date.
func (h *DailyHandler) Generate(c *gin.Context) {
	var req model.GenerateDailyRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	challenge, paper, err := h.dailyService.GenerateAndPublish(c.Request.Context(), req.Date, req.Distribution)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{
		"date":      challenge.Date,
		"questions": len(challenge.Questions),
		"subjects":  paper.Subjects,
	})
}
