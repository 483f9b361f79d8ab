package probe

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nholik/backend-sentinel/internal/registry"
)

// ErrUnavailable marks a backend whose client is not linked or configured.
// Dispatchers report it as StatusUnavailable and never retry it.
var ErrUnavailable = errors.New("client not available")

// Conn is what a capability returns on success.
type Conn struct {
	Detail string
	Handle io.Closer
}

// Prober verifies connectivity for one backend family.
type Prober interface {
	Probe(ctx context.Context, d *registry.Descriptor) (Conn, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, d *registry.Descriptor) (Conn, error)

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context, d *registry.Descriptor) (Conn, error) {
	return f(ctx, d)
}

// Error wraps a capability failure with the backend that produced it.
type Error struct {
	Backend registry.Backend
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapError(backend registry.Backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Backend: backend, Op: op, Err: err}
}
