package post

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"Postgen/internal/core/generation"
	"Postgen/internal/core/posts"
)

// maxBodyBytes limits JSON request bodies. Post context is capped at 20k characters,
// so 1MB leaves room for options and multi-byte text.
const maxBodyBytes = 1 * 1024 * 1024

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// generationErrorResponse is the {errorCode, message} body of failed generate calls
type generationErrorResponse struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, logger *zap.Logger, statusCode int, errorType, message string) {
	writeJSON(w, logger, statusCode, errorResponse{
		Error:   errorType,
		Message: message,
	})
}

// writeJSON writes body with statusCode; encoding errors are only logged since headers are sent
func writeJSON(w http.ResponseWriter, logger *zap.Logger, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to encode response", zap.Error(err))
	}
}

// decodeBody decodes a size-limited JSON body into dst.
// It writes the error response itself and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, logger, http.StatusRequestEntityTooLarge, "RequestTooLarge",
				"Request body too large (max 1MB)")
			return false
		}
		writeError(w, logger, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return false
	}
	return true
}

// handleServiceError maps service errors to HTTP responses
func handleServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case posts.IsValidationError(err):
		writeError(w, logger, http.StatusBadRequest, "InvalidRequest", err.Error())

	case posts.IsNotFound(err):
		writeError(w, logger, http.StatusNotFound, "NotFound", "Post not found")

	default:
		// Don't leak internal error details to clients
		logger.Error("Unexpected error in post handler", zap.Error(err))
		writeError(w, logger, http.StatusInternalServerError, "InternalServerError",
			"An internal error occurred")
	}
}

// handleGenerationError writes the {errorCode, message} body for a failed generation
func handleGenerationError(w http.ResponseWriter, logger *zap.Logger, err error) {
	genErr, ok := generation.AsError(err)
	if !ok {
		logger.Error("Unexpected error in generate handler", zap.Error(err))
		writeJSON(w, logger, http.StatusInternalServerError, generationErrorResponse{
			ErrorCode: string(generation.CodeGenerationFailed),
			Message:   "Failed to generate post",
		})
		return
	}
	writeJSON(w, logger, genErr.Status, generationErrorResponse{
		ErrorCode: string(genErr.Code),
		Message:   genErr.Message,
	})
}
