package post

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"Postgen/internal/core/posts"
)

// GetHandler serves post reads
type GetHandler struct {
	service posts.Service
	logger  *zap.Logger
}

// NewGetHandler creates a new get handler
func NewGetHandler(service posts.Service, logger *zap.Logger) *GetHandler {
	return &GetHandler{
		service: service,
		logger:  logger,
	}
}

// HandleList handles GET /api/posts
// Returns every post newest first, without variants
func (h *GetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListPosts(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, list)
}

// HandleGet handles GET /api/posts/{id}
// Returns the post with its variants ordered by variant number
func (h *GetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	post, err := h.service.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, post)
}
