package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nholik/backend-sentinel/internal/registry"
	"github.com/rs/zerolog"
)

// DefaultTimeout applies to descriptors that carry no timeout of their own.
const DefaultTimeout = 30 * time.Second

// Dispatcher routes a descriptor to the capability registered for its
// backend family and turns whatever happens into an Outcome.
type Dispatcher struct {
	logger         zerolog.Logger
	probers        map[registry.Backend]Prober
	defaultTimeout time.Duration
	observe        func(Outcome)
}

// Option customizes dispatcher behavior.
type Option func(*Dispatcher)

// WithProber registers the capability for a backend family.
func WithProber(backend registry.Backend, p Prober) Option {
	return func(d *Dispatcher) {
		d.probers[backend] = p
	}
}

// WithProbers registers several capabilities at once.
func WithProbers(probers map[registry.Backend]Prober) Option {
	return func(d *Dispatcher) {
		for backend, p := range probers {
			d.probers[backend] = p
		}
	}
}

// WithDefaultTimeout sets the timeout used for descriptors without one.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.defaultTimeout = timeout
		}
	}
}

// WithObserver installs a callback invoked with every outcome, e.g. for metrics.
func WithObserver(fn func(Outcome)) Option {
	return func(d *Dispatcher) {
		d.observe = fn
	}
}

// NewDispatcher constructs a Dispatcher with no capabilities registered
// unless options add them.
func NewDispatcher(logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:         logger,
		probers:        make(map[registry.Backend]Prober),
		defaultTimeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DefaultTimeout reports the timeout used for descriptors without one.
func (d *Dispatcher) DefaultTimeout() time.Duration {
	return d.defaultTimeout
}

// Probe runs one probe for desc, retrying errors per the descriptor's
// retry policy. It never returns an error or panics on capability failure.
func (d *Dispatcher) Probe(ctx context.Context, desc *registry.Descriptor) Outcome {
	start := time.Now()
	outcome := d.dispatch(ctx, desc)
	outcome.Descriptor = desc
	outcome.Elapsed = time.Since(start)
	outcome.CheckedAt = start.UTC()

	if desc != nil {
		event := d.logger.Debug()
		if !outcome.Connected() {
			event = d.logger.Warn()
		}
		event.
			Str("service", desc.Name).
			Str("backend", string(desc.Backend)).
			Str("status", string(outcome.Status)).
			Int("attempts", outcome.Attempts).
			Int64("elapsed_ms", outcome.Elapsed.Milliseconds()).
			Str("message", outcome.Message).
			Msg("probe finished")
	}
	if d.observe != nil {
		d.observe(outcome)
	}
	return outcome
}

func (d *Dispatcher) dispatch(ctx context.Context, desc *registry.Descriptor) Outcome {
	if desc == nil {
		return Outcome{Status: StatusError, Message: "no descriptor given"}
	}
	if !desc.Backend.Known() {
		return Outcome{
			Status:  StatusError,
			Message: fmt.Sprintf("unknown backend type: %q", desc.Backend),
		}
	}
	prober := d.probers[desc.Backend]
	if prober == nil {
		return Outcome{
			Status:  StatusUnavailable,
			Message: fmt.Sprintf("%s client not available", desc.Backend),
			Cause:   wrapError(desc.Backend, "probe", ErrUnavailable),
		}
	}

	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		conn          Conn
		lastErr       error
		attempts      int
		deadlineSpent bool
	)
	operation := func() error {
		attempts++
		c, err := attempt(probeCtx, prober, desc)
		if err != nil {
			lastErr = err
			if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
				deadlineSpent = true
			}
			if errors.Is(err, ErrUnavailable) || probeCtx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		conn = c
		return nil
	}
	deadline, _ := probeCtx.Deadline()
	policy := backoff.WithContext(
		&deadlineBackOff{
			BackOff:  backoff.WithMaxRetries(backoff.NewConstantBackOff(desc.RetryDelay), uint64(desc.RetryAttempts)),
			deadline: deadline,
		},
		probeCtx,
	)

	err := backoff.Retry(operation, policy)
	switch {
	case err == nil:
		message := conn.Detail
		if message == "" {
			message = "Connected successfully."
		}
		return Outcome{Status: StatusConnected, Message: message, Handle: conn.Handle, Attempts: attempts}
	case errors.Is(lastErr, ErrUnavailable):
		return Outcome{
			Status:   StatusUnavailable,
			Message:  fmt.Sprintf("%s client not available: %v", desc.Backend, lastErr),
			Cause:    wrapError(desc.Backend, "probe", lastErr),
			Attempts: attempts,
		}
	case deadlineSpent || isTimeout(lastErr):
		cause := lastErr
		if cause == nil {
			cause = probeCtx.Err()
		}
		return Outcome{
			Status:   StatusTimeout,
			Message:  fmt.Sprintf("%s connection timed out after %s", desc.Backend, timeout),
			Cause:    wrapError(desc.Backend, "probe", cause),
			Attempts: attempts,
		}
	default:
		cause := lastErr
		if cause == nil {
			cause = err
		}
		return Outcome{
			Status:   StatusError,
			Message:  fmt.Sprintf("%s connection failed: %v", desc.Backend, cause),
			Cause:    wrapError(desc.Backend, "probe", cause),
			Attempts: attempts,
		}
	}
}

// deadlineBackOff stops retrying once the next delay would end past the
// deadline.
type deadlineBackOff struct {
	backoff.BackOff
	deadline time.Time
}

func (b *deadlineBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop || b.deadline.IsZero() {
		return next
	}
	if time.Now().Add(next).After(b.deadline) {
		return backoff.Stop
	}
	return next
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type attemptResult struct {
	conn Conn
	err  error
}

// attempt runs one capability call. It returns when the call does or when
// ctx ends, whichever is first; a late handle is closed in the background.
func attempt(ctx context.Context, p Prober, desc *registry.Descriptor) (Conn, error) {
	results := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- attemptResult{err: fmt.Errorf("probe panicked: %v", r)}
			}
		}()
		conn, err := p.Probe(ctx, desc)
		results <- attemptResult{conn: conn, err: err}
	}()

	select {
	case r := <-results:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-results; r.conn.Handle != nil {
				_ = r.conn.Handle.Close()
			}
		}()
		return Conn{}, ctx.Err()
	}
}
