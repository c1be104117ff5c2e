package api

// error_response.go maps workflow and token errors to the JSON error format
// returned to clients.

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/markmyw0rd/digital-declaration101/internal/envelope"
	"github.com/markmyw0rd/digital-declaration101/internal/logger"
	"github.com/markmyw0rd/digital-declaration101/internal/token"
)

// ErrorResponse is the error payload returned to clients.
type ErrorResponse struct {
	// The HTTP method used to make the request e.g. GET, POST, etc
	HTTPMethod string `json:"httpMethod"`

	// The URI that was requested
	RequestURI string `json:"requestUri"`

	// The HTTP status code returned
	StatusCode int `json:"statusCode"`

	// A standard short description corresponding to the HTTP status code
	StatusCodeText string `json:"statusCodeText"`

	// A stable machine-readable error code
	ErrorCode string `json:"errorCode"`

	// A human-readable description of the failure
	Message string `json:"message"`

	// A unique identifier for the HTTP request
	RequestID string `json:"requestId,omitempty"`

	// The DateTime corresponding to the error occurring
	ErrorDateTime string `json:"errorDateTime"`

	// Set only for already-completed conflicts: the existing artifact.
	ArtifactURL string `json:"artifactUrl,omitempty"`
	ContentHash string `json:"contentHash,omitempty"`
}

// MapErrorToResponse maps token.AuthError, envelope.AlreadyCompletedError,
// envelope.WorkflowError, or generic errors to an error response.
//
// The mapping establishes the HTTP status code based on the error type and
// sanitizes the message where the detail must not reach the client.
func MapErrorToResponse(err error, r *http.Request) *ErrorResponse {
	requestID := middleware.GetReqID(r.Context())

	// All auth failures look the same to the client: revealing whether a
	// link was malformed, forged or merely expired aids nobody but an
	// attacker probing tokens.
	var authErr *token.AuthError
	if errors.As(err, &authErr) {
		return newErrorResponse(r, requestID, http.StatusUnauthorized, "unauthorized",
			"This signing link is invalid or has expired. Please request a new link.")
	}

	var completedErr *envelope.AlreadyCompletedError
	if errors.As(err, &completedErr) {
		resp := newErrorResponse(r, requestID, http.StatusConflict,
			string(envelope.ErrCodeAlreadyCompleted),
			"This envelope has already been completed.")
		resp.ArtifactURL = completedErr.ArtifactRef
		resp.ContentHash = completedErr.ContentHash
		return resp
	}

	var workflowErr *envelope.WorkflowError
	if errors.As(err, &workflowErr) {
		return errorResponseFromWorkflow(workflowErr, r, requestID)
	}

	// fallback - this is not expected; return an internal error response and
	// log the unmapped error
	reqLogger := logger.ContextRequestLogger(r.Context())
	reqLogger.Error("BUG: Unmapped error type in MapErrorToResponse",
		slog.String("error_type", fmt.Sprintf("%T", err)),
		slog.String("error", err.Error()),
		slog.String("request_id", requestID),
	)
	return newErrorResponse(r, requestID, http.StatusInternalServerError,
		string(envelope.ErrCodeInternal), "An internal error occurred")
}

// errorResponseFromWorkflow maps envelope.WorkflowError codes to HTTP status
// codes. Internal details stay server-side.
func errorResponseFromWorkflow(err *envelope.WorkflowError, r *http.Request, requestID string) *ErrorResponse {
	var statusCode int
	message := err.Error()

	switch err.Code() {
	case envelope.ErrCodeValidation:
		statusCode = http.StatusBadRequest
	case envelope.ErrCodeNotFound:
		statusCode = http.StatusNotFound
	case envelope.ErrCodeOutOfOrder, envelope.ErrCodeConflict:
		statusCode = http.StatusConflict
	case envelope.ErrCodeForbidden:
		statusCode = http.StatusForbidden
	case envelope.ErrCodeIncomplete:
		statusCode = http.StatusUnprocessableEntity
	case envelope.ErrCodeRequestTooLarge:
		statusCode = http.StatusRequestEntityTooLarge
	case envelope.ErrCodeRateLimited:
		statusCode = http.StatusTooManyRequests
	default:
		statusCode = http.StatusInternalServerError
		message = "An internal error occurred"
	}

	return newErrorResponse(r, requestID, statusCode, string(err.Code()), message)
}

func newErrorResponse(r *http.Request, requestID string, statusCode int, errorCode, message string) *ErrorResponse {
	return &ErrorResponse{
		HTTPMethod:     r.Method,
		RequestURI:     r.RequestURI,
		StatusCode:     statusCode,
		StatusCodeText: http.StatusText(statusCode),
		ErrorCode:      errorCode,
		Message:        message,
		RequestID:      requestID,
		ErrorDateTime:  time.Now().UTC().Format(time.RFC3339),
	}
}
