// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"context"
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// Progression errors
	ErrInvalidAmount = errors.New("invalid amount")
	ErrUnknownSkill  = errors.New("unknown skill")

	// Presence errors
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrAccessDenied     = errors.New("access denied")

	// Storage and concurrency errors
	ErrStorage                = errors.New("storage error")
	ErrTimeout                = errors.New("operation timeout")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrConflictRetryExhausted = errors.New("conflict retries exhausted")
	ErrServiceUnavailable     = errors.New("service unavailable")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progress", "campus", "leaderboard"
	Op      string // Operation that failed, e.g., "Award", "Join"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// StorageError wraps a persistence failure. Context deadline errors are
// additionally tagged as timeouts so callers can tell them apart in logs.
func StorageError(domain, op string, err error) *DomainError {
	if errors.Is(err, ErrStorage) {
		var de *DomainError
		if errors.As(err, &de) {
			return de
		}
	}
	msg := "storage operation failed"
	if isDeadline(err) {
		msg = "storage operation timed out"
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return WrapError(domain, op, ErrStorage, msg, err)
}

func isDeadline(err error) bool {
	type timeout interface{ Timeout() bool }
	var t timeout
	if errors.As(err, &t) && t.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Progress domain errors
var (
	ErrAvatarNotFound     = NewDomainError("progress", "Find", ErrNotFound, "avatar not found")
	ErrInvalidUserID      = NewDomainError("progress", "Validate", ErrInvalidID, "invalid user ID")
	ErrAmountNotPositive  = NewDomainError("progress", "Award", ErrInvalidAmount, "amount must be a positive integer")
	ErrAmountTooLarge     = NewDomainError("progress", "Award", ErrInvalidAmount, "amount exceeds the per-award limit")
	ErrBalanceOverflow    = NewDomainError("progress", "Award", ErrInvalidAmount, "award would overflow the stored balance")
	ErrSkillNotRecognized = NewDomainError("progress", "Award", ErrUnknownSkill, "skill is not part of the skill set")
	ErrVersionConflict    = NewDomainError("progress", "Update", ErrConcurrentModification, "avatar was modified concurrently")
)

// Leaderboard domain errors
var (
	ErrNotRanked    = NewDomainError("leaderboard", "RankOf", ErrNotFound, "user is not ranked in this scope")
	ErrInvalidScope = NewDomainError("leaderboard", "Validate", ErrInvalidInput, "invalid leaderboard scope")
)

// Campus domain errors
var (
	ErrLocationNotFound = NewDomainError("campus", "Find", ErrNotFound, "location not found")
	ErrLocationFull     = NewDomainError("campus", "Join", ErrCapacityExceeded, "location is at capacity")
	ErrLevelTooLow      = NewDomainError("campus", "Join", ErrAccessDenied, "level requirement not met")
	ErrNotOnAllowList   = NewDomainError("campus", "Join", ErrAccessDenied, "location is restricted")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrUnknownSkill) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsRetryable checks if the operation can be retried by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorage) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrConflictRetryExhausted)
}
