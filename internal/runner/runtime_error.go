package runner

import (
	"errors"
	"fmt"
)

// RuntimeError marks a round step that failed without invalidating the
// round itself, such as state persistence or notification delivery.
// The runner loop keeps going after it.
type RuntimeError struct {
	Op  string
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsRuntime reports whether err came from a non-fatal round step.
func IsRuntime(err error) bool {
	var runtimeErr *RuntimeError
	return errors.As(err, &runtimeErr)
}

func wrapRuntime(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RuntimeError{Op: op, Err: err}
}
