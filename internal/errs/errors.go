package errs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/time-capsule/internal/countdown"
)

// FieldError is a single input problem.
type FieldError struct {
	Field  string
	Reason string
}

func (f FieldError) String() string { return f.Field + ": " + f.Reason }

// ValidationError aggregates every input problem found in one request.
type ValidationError struct {
	Fields []FieldError
}

// Add appends a field problem.
func (e *ValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

// Append appends already built field problems.
func (e *ValidationError) Append(fields ...FieldError) {
	e.Fields = append(e.Fields, fields...)
}

// Err returns e when it holds at least one problem and nil otherwise.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "validation: " + strings.Join(parts, "; ")
}

// Is reports ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotYetEligibleError is returned when a locked capsule is opened before its open time.
// Remaining is exact; only Error() rounds it for display.
type NotYetEligibleError struct {
	Remaining time.Duration
}

func (e *NotYetEligibleError) Error() string {
	return "capsule opens in " + countdown.Humanize(e.Remaining)
}

// Is reports ErrNotYetEligible.
func (e *NotYetEligibleError) Is(target error) bool { return target == ErrNotYetEligible }

// RateLimitedError carries the time until the quota window resets.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return "too many capsules created, retry in " + countdown.Humanize(e.RetryAfter)
}

// Is reports ErrRateLimited.
func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// RepositoryError wraps a storage-layer failure.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string { return fmt.Sprintf("repository %s: %v", e.Op, e.Err) }

func (e *RepositoryError) Unwrap() error { return e.Err }

// Is reports ErrRepository.
func (e *RepositoryError) Is(target error) bool { return target == ErrRepository }

// Repo wraps err as a RepositoryError unless it is nil or a domain sentinel
// that callers must see unchanged.
func Repo(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrRepository) {
		return err
	}
	return &RepositoryError{Op: op, Err: err}
}

// NotificationFailure records a failed delivery to a single address.
type NotificationFailure struct {
	CapsuleID uuid.UUID
	Address   string
	Err       error
}

func (e *NotificationFailure) Error() string {
	return fmt.Sprintf("notify %s for capsule %s: %v", e.Address, e.CapsuleID, e.Err)
}

func (e *NotificationFailure) Unwrap() error { return e.Err }
