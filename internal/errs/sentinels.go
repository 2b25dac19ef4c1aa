// Package errs contains sentinel and typed errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., capsule id reused).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotYetEligible matches every *NotYetEligibleError.
	ErrNotYetEligible = errors.New("capsule not yet eligible to open")

	// ErrRepository matches every *RepositoryError.
	ErrRepository = errors.New("repository failure")

	// ErrRateLimited indicates the caller exceeded a creation quota.
	ErrRateLimited = errors.New("rate limited")
)
