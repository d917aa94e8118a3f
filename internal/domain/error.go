package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUnauthorized        = errors.New("actor may not perform this operation")
	ErrGenerationExhausted = errors.New("no unique code found within the attempt budget")
	ErrRateLimited         = errors.New("too many attempts")
	ErrReadDatabaseRow     = errors.New("failed to read database row")
	ErrInvalidExecContext  = errors.New("invalid executor context passed to repository")
)
