package envelope

// errors.go defines the error codes used across the declaration workflow

import "fmt"

type ErrorCode string

const (
	// ErrCodeValidation is used when a request payload fails boundary
	// validation (missing required fields, unknown role, bad outcome, etc.).
	// Invalid shapes are rejected before any state is touched.
	ErrCodeValidation ErrorCode = "validation"

	// ErrCodeNotFound is used when the referenced envelope does not exist.
	ErrCodeNotFound ErrorCode = "not_found"

	// ErrCodeOutOfOrder is used when the acting role does not match the role
	// the current status expects. The envelope is left untouched.
	ErrCodeOutOfOrder ErrorCode = "out_of_order"

	// ErrCodeForbidden is used when a role attempts an operation reserved for
	// another role (e.g. a supervisor calling complete).
	ErrCodeForbidden ErrorCode = "forbidden"

	// ErrCodeIncomplete is used when completion preconditions are unmet
	// (one or more parties have not signed).
	ErrCodeIncomplete ErrorCode = "incomplete"

	// ErrCodeAlreadyCompleted is used when complete is called on an envelope
	// that already holds a final artifact. The error carries the stored
	// artifact reference and hash so retries observe the original result.
	ErrCodeAlreadyCompleted ErrorCode = "already_completed"

	// ErrCodeConflict is used when a party record would be written twice
	// (signature already recorded).
	ErrCodeConflict ErrorCode = "conflict"

	// ErrCodeInternal is used for storage or collaborator failures that
	// should not normally occur.
	ErrCodeInternal ErrorCode = "internal"

	// ErrCodeRequestTooLarge is used when a request body exceeds the
	// configured size limit.
	ErrCodeRequestTooLarge ErrorCode = "request_too_large"

	// ErrCodeRateLimited is used when a client exceeds the request rate limit.
	ErrCodeRateLimited ErrorCode = "rate_limited"
)

// WorkflowError represents a structured error from the declaration workflow
type WorkflowError struct {

	// code is the workflow error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *WorkflowError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *WorkflowError) Code() ErrorCode { return e.code }
func (e *WorkflowError) Unwrap() error   { return e.wrapped }

// NewValidationError creates a validation error for invalid input.
// Use this for errors related to missing required fields, unknown enum
// values, or malformed payloads detected at the boundary.
//
// The returned error will have code ErrCodeValidation.
func NewValidationError(msg string) error {
	return &WorkflowError{code: ErrCodeValidation, message: msg}
}

// WrapValidationError wraps an existing error as a validation error.
//
// The returned error will have code ErrCodeValidation.
func WrapValidationError(err error, msg string) error {
	return &WorkflowError{code: ErrCodeValidation, message: msg, wrapped: err}
}

// NewNotFoundError creates an error for a missing envelope.
//
// The returned error will have code ErrCodeNotFound.
func NewNotFoundError(msg string) error {
	return &WorkflowError{code: ErrCodeNotFound, message: msg}
}

// WrapNotFoundError wraps an existing error as a not-found error.
//
// The returned error will have code ErrCodeNotFound.
func WrapNotFoundError(err error, msg string) error {
	return &WorkflowError{code: ErrCodeNotFound, message: msg, wrapped: err}
}

// NewOutOfOrderError creates an error for an action attempted by a role the
// current status does not expect. The request is rejected and no state is
// changed.
//
// The returned error will have code ErrCodeOutOfOrder.
func NewOutOfOrderError(msg string) error {
	return &WorkflowError{code: ErrCodeOutOfOrder, message: msg}
}

// NewForbiddenError creates an error for an operation reserved for another role.
//
// The returned error will have code ErrCodeForbidden.
func NewForbiddenError(msg string) error {
	return &WorkflowError{code: ErrCodeForbidden, message: msg}
}

// NewIncompleteError creates an error for completion attempted before all
// three parties have signed.
//
// The returned error will have code ErrCodeIncomplete.
func NewIncompleteError(msg string) error {
	return &WorkflowError{code: ErrCodeIncomplete, message: msg}
}

// NewConflictError creates an error for a duplicate write to a party record.
//
// The returned error will have code ErrCodeConflict.
func NewConflictError(msg string) error {
	return &WorkflowError{code: ErrCodeConflict, message: msg}
}

// NewInternalError creates an internal error for unexpected failures.
// Use this for storage or collaborator errors that should not normally occur.
//
// The returned error will have code ErrCodeInternal.
func NewInternalError(msg string) error {
	return &WorkflowError{code: ErrCodeInternal, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
//
// The returned error will have code ErrCodeInternal.
func WrapInternalError(err error, msg string) error {
	return &WorkflowError{code: ErrCodeInternal, message: msg, wrapped: err}
}

// NewRequestTooLargeError creates an error for an oversized request body.
//
// The returned error will have code ErrCodeRequestTooLarge.
func NewRequestTooLargeError(msg string) error {
	return &WorkflowError{code: ErrCodeRequestTooLarge, message: msg}
}

// NewRateLimitError creates an error for a rate-limited request.
//
// The returned error will have code ErrCodeRateLimited.
func NewRateLimitError(msg string) error {
	return &WorkflowError{code: ErrCodeRateLimited, message: msg}
}

// AlreadyCompletedError reports a repeated completion attempt. It carries the
// original artifact reference and content hash so the caller can surface the
// first result rather than producing a second distinct artifact.
type AlreadyCompletedError struct {
	ArtifactRef string
	ContentHash string
}

func (e *AlreadyCompletedError) Error() string {
	return "envelope is already completed"
}

func (e *AlreadyCompletedError) Code() ErrorCode { return ErrCodeAlreadyCompleted }
