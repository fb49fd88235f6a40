package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Caller identity
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
	ErrRateLimited      = errors.New("rate limit exceeded")

	// Job lifecycle
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrLeaseLost         = errors.New("job lease lost")
	ErrDependencyNotMet  = errors.New("step dependency not completed")
	ErrCancelled         = errors.New("job execution cancelled")
	ErrAttemptsExhausted = errors.New("job claimed too many times")

	// External calls
	ErrTimeout   = errors.New("call timed out")
	ErrReasoning = errors.New("reasoning service call failed")

	// Storage
	ErrInvalidExecContext = errors.New("invalid database execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
