package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/daily"
	"github.com/stemsi/nexus-backend/internal/kv"
	"github.com/stemsi/nexus-backend/internal/questionsource"
	"github.com/stemsi/nexus-backend/internal/response"
	"github.com/stemsi/nexus-backend/internal/service"
	"github.com/stemsi/nexus-backend/internal/session"
)

// classify maps a domain error to its HTTP status and error code.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, session.ErrNoActiveSession), errors.Is(err, session.ErrInvalidSession):
		return http.StatusNotFound, response.ErrNoActiveSession
	case errors.Is(err, session.ErrNotActive), errors.Is(err, session.ErrAlreadyFinalized):
		return http.StatusConflict, response.ErrSessionNotActive
	case errors.Is(err, session.ErrTimeUp):
		return http.StatusConflict, response.ErrTimeUp
	case errors.Is(err, session.ErrOutOfRange):
		return http.StatusBadRequest, response.ErrOutOfRange
	case errors.Is(err, session.ErrNotMCQ):
		return http.StatusBadRequest, response.ErrNotMCQ

	case errors.Is(err, daily.ErrLocked):
		return http.StatusForbidden, response.ErrDailyLocked
	case errors.Is(err, daily.ErrAlreadyAttempted):
		return http.StatusConflict, response.ErrDailyAttempted
	case errors.Is(err, daily.ErrNotPublished):
		return http.StatusNotFound, response.ErrDailyNotPublished
	case errors.Is(err, daily.ErrNotAttempted):
		return http.StatusNotFound, response.ErrDailyNotAttempted
	case errors.Is(err, daily.ErrNotFound), errors.Is(err, kv.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound

	case errors.Is(err, service.ErrInvalidDate):
		return http.StatusBadRequest, response.ErrInvalidDate
	case errors.Is(err, service.ErrVaultUnavailable):
		return http.StatusServiceUnavailable, response.ErrStorageUnavailable
	case errors.Is(err, service.ErrModelUnavailable):
		return http.StatusServiceUnavailable, response.ErrModelUnavailable
	case errors.Is(err, service.ErrNothingExtracted):
		return http.StatusUnprocessableEntity, response.ErrNothingExtracted
	case errors.Is(err, questionsource.ErrUnknownSubject),
		errors.Is(err, questionsource.ErrInvalidCount),
		errors.Is(err, questionsource.ErrDistributionMismatch):
		return http.StatusBadRequest, response.ErrInvalidPayload
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// fail writes the envelope for err, logging anything unexpected.
func fail(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", response.RequestID(c)).Str("path", c.FullPath()).Msg("Request failed")
	}
	response.Fail(c, status, code)
}
