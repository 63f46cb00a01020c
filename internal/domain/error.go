package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrNoTaskAvailable    = errors.New("no task available")
	ErrStaleClaim         = errors.New("task is not owned by this claim")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid executor context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrDispatchLocked     = errors.New("document is being dispatched by another instance")
	ErrNoCallbackWaiter   = errors.New("no dispatcher is waiting for this callback")
	ErrWorkerUnavailable  = errors.New("no worker server available")
)
