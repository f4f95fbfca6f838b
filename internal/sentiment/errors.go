package sentiment

import (
	"errors"
	"fmt"
)

// ErrMalformedReply is returned when the oracle reply cannot be used.
var ErrMalformedReply = errors.New("malformed oracle reply")

// StatusError is a non-success HTTP reply from the oracle.
type StatusError struct {
	StatusCode int
	Body       string // leading part of the response body
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("oracle http %d", e.StatusCode)
	}
	return fmt.Sprintf("oracle http %d: %s", e.StatusCode, e.Body)
}

// BatchError identifies the batch that made a model run fail.
type BatchError struct {
	Model  string
	Batch  int // zero-based batch index
	Offset int // index of the batch's first text
	Size   int
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("model %s: batch %d (texts %d..%d): %v",
		e.Model, e.Batch, e.Offset, e.Offset+e.Size-1, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
