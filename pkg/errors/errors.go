package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType classifies a failure so callers can decide whether it is isolated to one document
type ErrorType string

const (
	ErrorTypeNetwork        ErrorType = "network"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeAuth           ErrorType = "auth"
	ErrorTypeParsing        ErrorType = "parsing"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeServerError    ErrorType = "server_error"
	ErrorTypeInvalidContent ErrorType = "invalid_content"
	ErrorTypeStorage        ErrorType = "storage"
	ErrorTypePersistence    ErrorType = "persistence"
	// ErrorTypeExamMissing marks a solution left out because its exam failed in the same batch
	ErrorTypeExamMissing ErrorType = "exam_missing"
	ErrorTypeUnknown        ErrorType = "unknown"
)

// ErrQuotaExhausted signals that the monthly quota is used up. It is a normal
// terminal condition, not a failure.
var ErrQuotaExhausted = stderrors.New("monthly download quota exhausted")

// Error is a fetch failure against the remote site
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewFetchError creates a typed fetch error
func NewFetchError(errorType ErrorType, code int, message string, cause error) *Error {
	return &Error{Type: errorType, Message: message, Code: code, Err: cause}
}

// NewTimeoutError creates the error returned when a fetch attempt exceeds its bound
func NewTimeoutError(locator string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeTimeout,
		Message: fmt.Sprintf("fetch of %s timed out", locator),
		Err:     cause,
	}
}

// StorageError is a local write failure. It aborts a download batch.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// StorageUnavailableError means the destination store cannot be read at all
type StorageUnavailableError struct {
	Location string
	Err      error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("destination %s is unavailable: %v", e.Location, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}

// PersistenceError is a ledger write failure. The in-memory ledger may no
// longer match the file after this is returned.
type PersistenceError struct {
	Path       string
	DocumentID string
	Completed  int
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.DocumentID != "" {
		return fmt.Sprintf("persist ledger %s after %q (%d completed before it): %v", e.Path, e.DocumentID, e.Completed, e.Err)
	}
	return fmt.Sprintf("persist ledger %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PartialListingError reports a catalog truncated by a page failure. The
// records collected before the failing page remain valid.
type PartialListingError struct {
	PagesProcessed int
	FailedPage     int
	Err            error
}

func (e *PartialListingError) Error() string {
	return fmt.Sprintf("listing truncated at page %d after %d pages: %v", e.FailedPage, e.PagesProcessed, e.Err)
}

func (e *PartialListingError) Unwrap() error {
	return e.Err
}

// TypeOf returns the classification of err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}

	var fetchErr *Error
	if stderrors.As(err, &fetchErr) {
		return fetchErr.Type
	}
	var storageErr *StorageError
	if stderrors.As(err, &storageErr) {
		return ErrorTypeStorage
	}
	var unavailable *StorageUnavailableError
	if stderrors.As(err, &unavailable) {
		return ErrorTypeStorage
	}
	var persistErr *PersistenceError
	if stderrors.As(err, &persistErr) {
		return ErrorTypePersistence
	}
	return ErrorTypeUnknown
}

// IsTimeout reports whether err is a bounded fetch attempt that ran out of time
func IsTimeout(err error) bool {
	return TypeOf(err) == ErrorTypeTimeout
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// TypeForStatus maps an HTTP status code onto an error type
func TypeForStatus(statusCode int) ErrorType {
	switch {
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeAuth
	case statusCode == 404 || statusCode == 410:
		return ErrorTypeNotFound
	case statusCode == 429:
		return ErrorTypeRateLimit
	case statusCode >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}
