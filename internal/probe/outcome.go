package probe

import (
	"errors"
	"io"
	"time"

	"github.com/nholik/backend-sentinel/internal/registry"
)

// Status is the terminal classification of a probe.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
	StatusUnavailable  Status = "unavailable"
	StatusTimeout      Status = "timeout"
	StatusDisconnected Status = "disconnected"
)

// Statuses lists every status in reporting order.
var Statuses = []Status{StatusConnected, StatusError, StatusUnavailable, StatusTimeout, StatusDisconnected}

// Outcome is the result of one probe invocation. It is not modified after
// the dispatcher returns it.
type Outcome struct {
	Descriptor *registry.Descriptor
	Status     Status
	Message    string
	Elapsed    time.Duration
	Cause      error
	Attempts   int
	CheckedAt  time.Time

	// Handle is a live client for connected outcomes. The caller that
	// received the outcome owns it and must close it.
	Handle io.Closer
}

// Connected reports whether the probe succeeded.
func (o Outcome) Connected() bool {
	return o.Status == StatusConnected
}

// Service returns the name of the descriptor that was actually probed.
func (o Outcome) Service() string {
	if o.Descriptor == nil {
		return ""
	}
	return o.Descriptor.Name
}

// Category returns the probed descriptor's category.
func (o Outcome) Category() registry.Category {
	if o.Descriptor == nil {
		return ""
	}
	return o.Descriptor.Category
}

// WithoutHandle returns a copy safe to retain past the caller's ownership.
func (o Outcome) WithoutHandle() Outcome {
	o.Handle = nil
	return o
}

// CloseHandles closes every distinct handle in outcomes once. Slots of the
// same round may share a handle when they resolved to the same service.
func CloseHandles(outcomes map[string]Outcome) error {
	closed := make(map[io.Closer]struct{})
	var errs []error
	for _, outcome := range outcomes {
		if outcome.Handle == nil {
			continue
		}
		if _, done := closed[outcome.Handle]; done {
			continue
		}
		closed[outcome.Handle] = struct{}{}
		if err := outcome.Handle.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
