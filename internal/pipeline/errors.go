package pipeline

import "errors"

// Request validation failures. Callers map these to not-found and bad-request.
var (
	ErrFileNotFound    = errors.New("file not found")
	ErrUnsupportedType = errors.New("only CSV files are supported")
)

// GenerationError reports a failure before any block ran: profiling the
// dataset or obtaining blocks from the model.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return e.Err.Error() }

func (e *GenerationError) Unwrap() error { return e.Err }
