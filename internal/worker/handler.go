package worker

import (
	"context"
	"errors"
)

// JobHandler executes one type of job.
type JobHandler interface {
	// Type returns the job type identifier that this handler processes.
	Type() string

	// Handle executes the job with the given JSON payload and returns a
	// JSON summary of its outcome. Use NewPermanentError to mark a failure
	// that retrying cannot fix.
	Handle(ctx context.Context, payload []byte) ([]byte, error)
}

// PermanentError wraps an error to indicate it should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError creates a new PermanentError that wraps the given error.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is or wraps a PermanentError.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}
