package corpus

import (
	"errors"
	"fmt"
)

// ErrMissingColumn is wrapped by ConfigError when a required column is absent.
var ErrMissingColumn = errors.New("missing required column")

// ConfigError is a fatal problem with the corpus source, reported before
// any row is processed.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("corpus %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
