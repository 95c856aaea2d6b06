// Package errors provides unified error handling for the orchestrator.
// It implements structured error types with error codes, HTTP status mapping,
// and retryable detection following RFC 7807 and Google AIP-193.
package errors

import (
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Common Error Constructors ---

// NotFound creates a new AppError for a session or segment that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("The requested %s was not found.", resource),
		HTTPStatus: http.StatusNotFound, Retryable: false, Details: details,
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false, Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// MissingField creates a new AppError for a missing required field.
func MissingField(field string) *AppError {
	return &AppError{
		Code: ErrCodeMissingField, Message: fmt.Sprintf("Missing required field: %s", field),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"field": field},
	}
}

// ConversionFailed creates a new AppError for a failed audio conversion.
// The converter diagnostic is attached so callers can surface it.
func ConversionFailed(diagnostic string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeConversionFailed, Message: "Audio conversion failed.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"diagnostic": diagnostic}, Cause: cause,
	}
}

// TranscriptionInvalid creates a new AppError for a transcription that failed
// validation (empty or malformed), as opposed to a transport failure.
func TranscriptionInvalid(reason string) *AppError {
	return &AppError{
		Code: ErrCodeTranscriptionInvalid, Message: fmt.Sprintf("Transcription invalid: %s", reason),
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
	}
}

// TranscriptionBackend creates a new AppError for a transcription service failure.
func TranscriptionBackend(backend string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeTranscriptionBackend, Message: fmt.Sprintf("The %s transcription service encountered an error. Please try again.", backend),
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"backend": backend}, Cause: cause,
	}
}

// EnhancementBackend creates a new AppError for an enhancement service failure.
func EnhancementBackend(backend string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeEnhancementBackend, Message: fmt.Sprintf("The %s enhancement service encountered an error. Please try again.", backend),
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"backend": backend}, Cause: cause,
	}
}

// NoValidSegments creates a new AppError for a session with no usable transcriptions.
func NoValidSegments(sessionID string) *AppError {
	return &AppError{
		Code: ErrCodeNoValidSegments, Message: "No valid transcriptions found in any segment.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"session_id": sessionID},
	}
}

// EmptyCombinedText creates a new AppError for a blank joined transcript.
func EmptyCombinedText(sessionID string) *AppError {
	return &AppError{
		Code: ErrCodeEmptyCombinedText, Message: "Combined transcription text is empty.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"session_id": sessionID},
	}
}

// Internal creates a new AppError for an internal server error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred. Please try again or contact support.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}
