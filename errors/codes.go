package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Resource and input errors (client errors, not retryable)
const (
	// ErrCodeNotFound indicates the requested session or segment was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInvalidInput indicates the input is invalid (empty upload, malformed config).
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing from the request.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
)

// Segment processing errors
const (
	// ErrCodeConversionFailed indicates the external audio converter failed.
	ErrCodeConversionFailed ErrorCode = "CONVERSION_FAILED"
	// ErrCodeTranscriptionInvalid indicates the transcription backend returned
	// empty or malformed text. Distinct from a transport failure.
	ErrCodeTranscriptionInvalid ErrorCode = "TRANSCRIPTION_INVALID"
	// ErrCodeTranscriptionBackend indicates the transcription service was
	// unreachable or returned an error.
	ErrCodeTranscriptionBackend ErrorCode = "TRANSCRIPTION_BACKEND_ERROR"
	// ErrCodeEnhancementBackend indicates the enhancement service was
	// unreachable or returned an error.
	ErrCodeEnhancementBackend ErrorCode = "ENHANCEMENT_BACKEND_ERROR"
)

// Aggregate precondition errors
const (
	// ErrCodeNoValidSegments indicates no segment has a validated transcription.
	ErrCodeNoValidSegments ErrorCode = "NO_VALID_SEGMENTS"
	// ErrCodeEmptyCombinedText indicates the joined transcript text is blank.
	ErrCodeEmptyCombinedText ErrorCode = "EMPTY_COMBINED_TEXT"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeTranscriptionBackend: true,
	ErrCodeEnhancementBackend:   true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
