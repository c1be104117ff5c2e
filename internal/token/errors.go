package token

import "fmt"

type ErrorCode string

// Authorization failure codes. The HTTP layer collapses all three to a single
// "invalid or expired link" response so callers cannot distinguish the
// sub-cases; the codes exist for logs and tests.
const (
	ErrCodeMalformed    ErrorCode = "malformed"
	ErrCodeBadSignature ErrorCode = "bad_signature"
	ErrCodeExpired      ErrorCode = "expired"
)

// AuthError represents a structured error from token verification
type AuthError struct {

	// code is the authorization error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *AuthError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *AuthError) Code() ErrorCode { return e.code }
func (e *AuthError) Unwrap() error   { return e.wrapped }

// NewMalformedError creates an error for a token whose encoding cannot be parsed.
//
// The returned error will have code ErrCodeMalformed.
func NewMalformedError(msg string) error {
	return &AuthError{code: ErrCodeMalformed, message: msg}
}

// WrapMalformedError wraps an existing error as a malformed-token error.
//
// The returned error will have code ErrCodeMalformed.
func WrapMalformedError(err error, msg string) error {
	return &AuthError{code: ErrCodeMalformed, message: msg, wrapped: err}
}

// WrapBadSignatureError wraps an existing error as a signature failure.
//
// The returned error will have code ErrCodeBadSignature.
func WrapBadSignatureError(err error, msg string) error {
	return &AuthError{code: ErrCodeBadSignature, message: msg, wrapped: err}
}

// WrapExpiredError wraps an existing error as an expired-token failure.
//
// The returned error will have code ErrCodeExpired.
func WrapExpiredError(err error, msg string) error {
	return &AuthError{code: ErrCodeExpired, message: msg, wrapped: err}
}
