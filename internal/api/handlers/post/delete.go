package post

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"Postgen/internal/core/posts"
)

// DeleteHandler handles post deletion requests
type DeleteHandler struct {
	service posts.Service
	logger  *zap.Logger
}

// NewDeleteHandler creates a new handler for deleting posts
func NewDeleteHandler(service posts.Service, logger *zap.Logger) *DeleteHandler {
	return &DeleteHandler{
		service: service,
		logger:  logger,
	}
}

// HandleDelete handles DELETE /api/posts/{id}
// Responds 204 with no body
func (h *DeleteHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePost(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
