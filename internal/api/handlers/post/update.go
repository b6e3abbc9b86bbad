package post

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"Postgen/internal/core/posts"
)

// UpdateHandler handles partial post updates
type UpdateHandler struct {
	service posts.Service
	logger  *zap.Logger
}

// NewUpdateHandler creates a new update handler
func NewUpdateHandler(service posts.Service, logger *zap.Logger) *UpdateHandler {
	return &UpdateHandler{
		service: service,
		logger:  logger,
	}
}

// HandleUpdate handles PUT /api/posts/{id}
//
// Only fields present in the body are changed. An explicit null clears
// generatedContent or previewImage; postContext and options cannot be null.
func (h *UpdateHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var fields map[string]json.RawMessage
	if !decodeBody(w, r, h.logger, &fields) {
		return
	}

	update, err := parseUpdate(fields)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	post, err := h.service.UpdatePost(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, post)
}

// parseUpdate converts the raw body into a PostUpdate, keeping absent and null apart.
// Unknown fields, including id, are ignored.
func parseUpdate(fields map[string]json.RawMessage) (posts.PostUpdate, error) {
	var update posts.PostUpdate

	if raw, ok := fields["postContext"]; ok {
		var s string
		if isNull(raw) || json.Unmarshal(raw, &s) != nil {
			return update, posts.NewValidationError("postContext", "postContext must be a string")
		}
		update.PostContext = &s
	}

	if raw, ok := fields["generatedContent"]; ok {
		if isNull(raw) {
			update.ClearGeneratedContent = true
		} else {
			var s string
			if json.Unmarshal(raw, &s) != nil {
				return update, posts.NewValidationError("generatedContent", "generatedContent must be a string or null")
			}
			update.GeneratedContent = &s
		}
	}

	if raw, ok := fields["previewImage"]; ok {
		if isNull(raw) {
			update.ClearPreviewImage = true
		} else {
			var s string
			if json.Unmarshal(raw, &s) != nil {
				return update, posts.NewValidationError("previewImage", "previewImage must be a string or null")
			}
			update.PreviewImage = &s
		}
	}

	if raw, ok := fields["options"]; ok {
		var opts posts.Options
		if isNull(raw) || json.Unmarshal(raw, &opts) != nil {
			return update, posts.NewValidationError("options", "options must be an object")
		}
		update.Options = &opts
	}

	return update, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
