// Package errors provides structured error handling for the ABR core.
// It defines error types, sentinel errors, and utility functions for
// consistent error classification across bandwidth estimation, BOLA,
// quality selection, and the segment pipeline.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies a CoreError for recovery-policy decisions.
type ErrorType string

const (
	// ErrorTypeNetwork indicates a transient network error (connection, 5xx, timeout).
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypePermanent indicates a permanent resource error (404); the URL is blacklisted.
	ErrorTypePermanent ErrorType = "permanent"
	// ErrorTypeQuota indicates the media sink reported QuotaExceeded.
	ErrorTypeQuota ErrorType = "quota"
	// ErrorTypeSink indicates a non-quota sink append/remove/state error.
	ErrorTypeSink ErrorType = "sink"
	// ErrorTypeInvariant indicates a programmer error; the session is fatal.
	ErrorTypeInvariant ErrorType = "invariant"
	// ErrorTypeInternal indicates an unclassified internal error.
	ErrorTypeInternal ErrorType = "internal"
)

// Sentinel errors for common scenarios.
var (
	// ErrNoRepresentations indicates choose() was called with an empty representation set.
	ErrNoRepresentations = errors.New("no representations available")
	// ErrSegmentNotFound indicates a segment number has no SegmentReference.
	ErrSegmentNotFound = errors.New("segment not found in index")
	// ErrSinkClosed indicates the media sink is closed or ended.
	ErrSinkClosed = errors.New("sink closed")
	// ErrQuotaExceeded indicates the sink rejected an append due to quota.
	ErrQuotaExceeded = errors.New("sink quota exceeded")
	// ErrSegmentTimeout indicates a fetch exceeded segmentTimeout.
	ErrSegmentTimeout = errors.New("segment fetch timed out")
	// ErrSegmentBlacklisted indicates the segment/URL is on the blacklist and must be skipped.
	ErrSegmentBlacklisted = errors.New("segment blacklisted")
	// ErrCancelled indicates a fetch or append was cancelled (seek, quality change, quota recovery).
	ErrCancelled = errors.New("operation cancelled")
	// ErrQuotaRecoveryInProgress indicates a reentrant quota-recovery invocation was ignored.
	ErrQuotaRecoveryInProgress = errors.New("quota recovery already in progress")
)

// CoreError provides structured error information with context.
type CoreError struct {
	Type    ErrorType              // Error classification
	Op      string                 // Operation that failed (e.g., "loadNext", "choose")
	Track   string                 // "video" or "audio", if applicable
	Err     error                  // Underlying error
	Details map[string]interface{} // Additional context
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	if e.Track != "" {
		return fmt.Sprintf("%s error in %s for %s track: %v", e.Type, e.Op, e.Track, e.Err)
	}
	return fmt.Sprintf("%s error in %s: %v", e.Type, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CoreError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for sentinel errors.
func (e *CoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// New creates a new CoreError.
func New(errType ErrorType, op string, err error) *CoreError {
	return &CoreError{
		Type:    errType,
		Op:      op,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithTrack adds track context to the error.
func (e *CoreError) WithTrack(track string) *CoreError {
	e.Track = track
	return e
}

// WithDetail adds a key-value detail to the error.
func (e *CoreError) WithDetail(key string, value interface{}) *CoreError {
	e.Details[key] = value
	return e
}

// IsRecoverable returns true if the error might succeed on retry, i.e.
// whether the scheduler's next tick should simply retry.
func (e *CoreError) IsRecoverable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeQuota:
		return true
	case ErrorTypePermanent, ErrorTypeSink, ErrorTypeInvariant:
		return false
	default:
		return errors.Is(e.Err, ErrSegmentTimeout)
	}
}

// Error creation helpers.

// NetworkError creates a transient network error.
func NetworkError(op string, err error) *CoreError {
	return New(ErrorTypeNetwork, op, err)
}

// PermanentError creates a permanent resource error (404).
func PermanentError(op string, err error) *CoreError {
	return New(ErrorTypePermanent, op, err)
}

// QuotaError creates a sink quota-exceeded error.
func QuotaError(op string, err error) *CoreError {
	return New(ErrorTypeQuota, op, err)
}

// SinkError creates a non-quota sink error.
func SinkError(op string, err error) *CoreError {
	return New(ErrorTypeSink, op, err)
}

// InvariantError creates a fatal invariant-violation error.
func InvariantError(op string, err error) *CoreError {
	return New(ErrorTypeInvariant, op, err)
}

// Wrap wraps an error with operation context if it's not already a CoreError.
func Wrap(err error, errType ErrorType, op string) error {
	if err == nil {
		return nil
	}
	var cErr *CoreError
	if errors.As(err, &cErr) {
		return err
	}
	return New(errType, op, err)
}

// GetType extracts the error type from an error.
func GetType(err error) ErrorType {
	var cErr *CoreError
	if errors.As(err, &cErr) {
		return cErr.Type
	}
	return ErrorTypeInternal
}

// IsFatal reports whether err should stop the session from accepting further work.
func IsFatal(err error) bool {
	t := GetType(err)
	return t == ErrorTypeInvariant || errors.Is(err, ErrSinkClosed)
}
