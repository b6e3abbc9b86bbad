package post

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"Postgen/internal/core/generation"
)

// maxPostContextLength matches the limit enforced on stored posts
const maxPostContextLength = 20000

// GenerateHandler triggers content generation for a post
type GenerateHandler struct {
	service generation.Service
	logger  *zap.Logger
}

// NewGenerateHandler creates a new generate handler
func NewGenerateHandler(service generation.Service, logger *zap.Logger) *GenerateHandler {
	return &GenerateHandler{
		service: service,
		logger:  logger,
	}
}

// HandleGenerate handles POST /api/posts/generate
//
// Request body: { "postContext": "...", "options": {...}, "currentPostId": "..." | null }
// Response: { "generatedContent": {...}, "previewImage": "...", "generationStyle": ..., "actionButton": ... }
// Failures respond with { "errorCode": "...", "message": "..." }.
func (h *GenerateHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generation.GenerationRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	if strings.TrimSpace(req.PostContext) == "" {
		writeError(w, h.logger, http.StatusBadRequest, "InvalidRequest", "postContext is required")
		return
	}
	if len(req.PostContext) > maxPostContextLength {
		writeError(w, h.logger, http.StatusBadRequest, "InvalidRequest", "postContext too long (max 20000 characters)")
		return
	}

	resp, err := h.service.Generate(r.Context(), req)
	if err != nil {
		handleGenerationError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}
