package generation

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the machine-readable error code returned to API callers.
type Code string

const (
	CodeConfiguration    Code = "CONFIGURATION_ERROR"
	CodeUpstreamTimeout  Code = "N8N_TIMEOUT"
	CodeUpstreamError    Code = "N8N_WEBHOOK_ERROR"
	CodeInvalidResponse  Code = "INVALID_RESPONSE"
	CodeGenerationFailed Code = "GENERATION_FAILED"
)

var (
	// ErrNotConfigured is returned when no webhook endpoint is configured.
	ErrNotConfigured = errors.New("generation webhook is not configured")

	// ErrUpstreamTimeout is returned when no response was received (timeout or connection failure).
	ErrUpstreamTimeout = errors.New("no response from generation webhook")

	// ErrUpstreamStatus is returned when the webhook answers with a non-2xx status.
	ErrUpstreamStatus = errors.New("generation webhook returned an error status")

	// ErrInvalidResponse is returned when the webhook body is undecodable or lacks a preview image.
	ErrInvalidResponse = errors.New("invalid generation webhook response")
)

// Error is a generation failure surfaced to the caller as {errorCode, message} with Status.
// Message never contains upstream payloads.
type Error struct {
	Err     error
	Code    Code
	Message string
	Status  int
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr, true
	}
	return nil, false
}

// classify maps a failure before a valid result was obtained to its caller-facing error.
func classify(err error, actionButton *string) *Error {
	styleMsg := fmt.Sprintf("Failed to generate style with type: %s", styleName(actionButton))

	switch {
	case errors.Is(err, ErrNotConfigured):
		return &Error{
			Code:    CodeConfiguration,
			Status:  http.StatusInternalServerError,
			Message: "Failed to generate post: Generation service is not configured",
			Err:     err,
		}
	case errors.Is(err, ErrUpstreamTimeout):
		return &Error{
			Code:    CodeUpstreamTimeout,
			Status:  http.StatusGatewayTimeout,
			Message: "Failed to generate post: No response received from generation service",
			Err:     err,
		}
	case errors.Is(err, ErrUpstreamStatus):
		return &Error{Code: CodeUpstreamError, Status: http.StatusBadGateway, Message: styleMsg, Err: err}
	case errors.Is(err, ErrInvalidResponse):
		return &Error{Code: CodeInvalidResponse, Status: http.StatusBadGateway, Message: styleMsg, Err: err}
	default:
		return &Error{Code: CodeGenerationFailed, Status: http.StatusInternalServerError, Message: styleMsg, Err: err}
	}
}

func styleName(actionButton *string) string {
	if actionButton == nil || *actionButton == "" {
		return "unknown"
	}
	return *actionButton
}

// PartialFailure reports a post-generation step that failed after the upstream call succeeded.
// It is logged as a warning and never returned to API callers.
type PartialFailure struct {
	Err    error
	PostID string
	Step   string
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%s failed for post %s: %v", e.Step, e.PostID, e.Err)
}

func (e *PartialFailure) Unwrap() error {
	return e.Err
}
