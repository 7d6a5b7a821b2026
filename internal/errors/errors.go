// Package errors provides structured error types for the offer profiling pipeline.
// All errors include a category, code, message, and retryable flag so that
// callers can decide whether to abort a batch, quarantine a customer, or retry.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by pipeline stage.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryTimeline   ErrorCategory = "TIMELINE"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategorySink       ErrorCategory = "SINK"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeMalformedRecord  = "MALFORMED_RECORD"
	CodeMissingField     = "MISSING_FIELD"
	CodeUnknownEventKind = "UNKNOWN_EVENT_KIND"
	CodeUnknownOffer     = "UNKNOWN_OFFER"
	CodeDuplicateOffer   = "DUPLICATE_OFFER"

	// Timeline codes
	CodeUnsortedTimeline = "UNSORTED_TIMELINE"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Sink codes
	CodeWriteFailed = "WRITE_FAILED"
	CodeReadFailed  = "READ_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// ProfileError is the structured error type used throughout the pipeline.
type ProfileError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *ProfileError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *ProfileError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *ProfileError) Is(target error) bool {
	var t *ProfileError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new ProfileError.
func New(category ErrorCategory, code, message string) *ProfileError {
	return &ProfileError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new ProfileError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *ProfileError {
	return &ProfileError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *ProfileError) WithDetails(details map[string]interface{}) *ProfileError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var pe *ProfileError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a ProfileError.
func GetCategory(err error) ErrorCategory {
	var pe *ProfileError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a ProfileError.
func GetCode(err error) string {
	var pe *ProfileError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Only transient storage failures are worth retrying; malformed input stays malformed.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *ProfileError {
	return New(ErrCategoryValidation, code, message)
}

func NewTimelineError(code, message string, cause error) *ProfileError {
	return Wrap(ErrCategoryTimeline, code, message, cause)
}

func NewStorageError(code, message string, cause error) *ProfileError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewSinkError(code, message string, cause error) *ProfileError {
	return Wrap(ErrCategorySink, code, message, cause)
}

func NewInternalError(message string, cause error) *ProfileError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
