package post

import (
	"net/http"

	"go.uber.org/zap"

	"Postgen/internal/core/posts"
)

// CreateHandler handles post creation requests
type CreateHandler struct {
	service posts.Service
	logger  *zap.Logger
}

// NewCreateHandler creates a new create handler
func NewCreateHandler(service posts.Service, logger *zap.Logger) *CreateHandler {
	return &CreateHandler{
		service: service,
		logger:  logger,
	}
}

// HandleCreate handles POST /api/posts
// Responds 201 with the stored post
func (h *CreateHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req posts.CreatePostRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	post, err := h.service.CreatePost(r.Context(), req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, post)
}
