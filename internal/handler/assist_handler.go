package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/llm"
	"github.com/stemsi/nexus-backend/internal/middleware"
	"github.com/stemsi/nexus-backend/internal/response"
	"github.com/stemsi/nexus-backend/internal/service"
)

// maxDocumentBytes caps each uploaded paper or key.
const maxDocumentBytes = 20 << 20

var documentTypes = []string{"application/pdf", "image/png", "image/jpeg", "image/webp"}

var errUnsupportedFile = errors.New("unsupported document type")

// AssistHandler serves model-written result coaching and question paper
// parsing.
type AssistHandler struct {
	assistService *service.AssistService
	log           zerolog.Logger
}

func NewAssistHandler(assistService *service.AssistService, log zerolog.Logger) *AssistHandler {
	return &AssistHandler{
		assistService: assistService,
		log:           log.With().Str("component", "assist_handler").Logger(),
	}
}

// Insight godoc
// POST /api/v1/results/:id/insight
func (h *AssistHandler) Insight(c *gin.Context) {
	claims := middleware.GetClaims(c)

	insight, err := h.assistService.Insight(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, insight)
}

// ParseDocument godoc
// POST /api/v1/admin/daily/parse (multipart: paper, optional key)
// Returns the extracted questions for review; publishing is a separate call.
func (h *AssistHandler) ParseDocument(c *gin.Context) {
	paperFile, err := c.FormFile("paper")
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"paper": "paper is a required file"})
		return
	}
	paper, err := readDocument(paperFile)
	if err != nil {
		h.failDocument(c, "paper", err)
		return
	}

	var key *llm.Document
	if keyFile, err := c.FormFile("key"); err == nil {
		doc, err := readDocument(keyFile)
		if err != nil {
			h.failDocument(c, "key", err)
			return
		}
		key = &doc
	}

	parsed, err := h.assistService.ParseDocument(c.Request.Context(), paper, key)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, parsed)
}

func (h *AssistHandler) failDocument(c *gin.Context, field string, err error) {
	if errors.Is(err, errUnsupportedFile) {
		response.FailWithFields(c, http.StatusUnsupportedMediaType, response.ErrUnsupportedFile,
			map[string]string{field: err.Error()})
		return
	}
	response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidPayload,
		map[string]string{field: err.Error()})
}

// readDocument loads an upload and identifies it by content, not by the
// client's declared type.
func readDocument(fh *multipart.FileHeader) (llm.Document, error) {
	if fh.Size > maxDocumentBytes {
		return llm.Document{}, fmt.Errorf("file is larger than %d MB", maxDocumentBytes>>20)
	}
	f, err := fh.Open()
	if err != nil {
		return llm.Document{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxDocumentBytes+1))
	if err != nil {
		return llm.Document{}, err
	}
	if len(data) > maxDocumentBytes {
		return llm.Document{}, fmt.Errorf("file is larger than %d MB", maxDocumentBytes>>20)
	}

	mt := mimetype.Detect(data)
	for _, allowed := range documentTypes {
		if mt.Is(allowed) {
			return llm.Document{MIMEType: allowed, Data: data}, nil
		}
	}
	return llm.Document{}, fmt.Errorf("%w: %s", errUnsupportedFile, mt.String())
}
