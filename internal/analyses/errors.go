package analyses

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrTerminal is returned by guarded updates on a completed, failed, or
	// cancelled job.
	ErrTerminal       = errors.New("job is in a terminal state")
	ErrNotCancellable = errors.New("job cannot be cancelled")
	ErrInvalidInput   = errors.New("invalid input")
)

const (
	ErrorCodeValidation     = "validation_error"
	ErrorCodeNotFound       = "not_found"
	ErrorCodeNotCancellable = "not_cancellable"
	ErrorCodeInternal       = "internal_error"
)
