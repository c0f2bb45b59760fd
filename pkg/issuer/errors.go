package issuer

import (
	"errors"
	"fmt"
)

// Error codes for issuer verification failures. These are spec-level
// outcomes, not HTTP status codes.
const (
	// CodeInvalidURL indicates the domain could not form a valid well-known URL.
	CodeInvalidURL = "INVALID_URL"

	// CodeFetchFailure indicates the well-known fetch returned a non-2xx status
	// or a transport error.
	CodeFetchFailure = "FETCH_FAILURE"

	// CodeFetchTimeout indicates the well-known fetch timed out.
	CodeFetchTimeout = "FETCH_TIMEOUT"

	// CodeNonJSONResponse indicates the response Content-Type was not JSON.
	CodeNonJSONResponse = "NON_JSON_RESPONSE"

	// CodeInvalidJSON indicates the response body failed to parse.
	CodeInvalidJSON = "INVALID_JSON"

	// CodeMissingFields indicates required fields (id, type, name) were absent.
	CodeMissingFields = "SCHEMA_VALIDATION_FAILURE"

	// CodeInvalidType indicates the document type was not Issuer or Profile.
	CodeInvalidType = "INVALID_TYPE"

	// CodeIdentityBinding indicates the document id does not bind to the domain.
	CodeIdentityBinding = "IDENTITY_BINDING_MISMATCH"
)

// Error is a tagged issuer verification failure.
type Error struct {
	// Code is one of the Code* constants.
	Code string

	// Message is a human-readable description.
	Message string

	// MissingFields lists absent required fields for CodeMissingFields.
	MissingFields []string

	// Expected and Actual carry both identifiers for CodeIdentityBinding.
	Expected string
	Actual   string

	// Status is the HTTP status for CodeFetchFailure, when one was received.
	Status int

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// NewError creates an Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates an Error wrapping an underlying cause.
func WrapError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinel errors for use with errors.Is.
var (
	ErrInvalidURL      = NewError(CodeInvalidURL, "invalid issuer domain or URL")
	ErrFetchFailure    = NewError(CodeFetchFailure, "failed to fetch well-known document")
	ErrFetchTimeout    = NewError(CodeFetchTimeout, "well-known fetch timed out")
	ErrNonJSONResponse = NewError(CodeNonJSONResponse, "well-known response is not JSON")
	ErrInvalidJSON     = NewError(CodeInvalidJSON, "well-known document is not valid JSON")
	ErrMissingFields   = NewError(CodeMissingFields, "well-known document is missing required fields")
	ErrInvalidType     = NewError(CodeInvalidType, "well-known document type must be Issuer or Profile")
	ErrIdentityBinding = NewError(CodeIdentityBinding, "well-known document id does not match its domain")
)

// AsError checks if err is an *Error and returns it if so.
func AsError(err error) (*Error, bool) {
	var verr *Error
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
