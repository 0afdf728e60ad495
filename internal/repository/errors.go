package repository

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrLockTimeout = errors.New("lock wait timed out")
	ErrRetryable   = errors.New("transaction should be retried")
)
