package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nholik/backend-sentinel/internal/registry"
	"github.com/rs/zerolog"
)

type fakeHandle struct {
	closed atomic.Int32
}

func (h *fakeHandle) Close() error {
	h.closed.Add(1)
	return nil
}

func redisDescriptor() *registry.Descriptor {
	return &registry.Descriptor{
		Name:     "redis",
		Category: registry.CategoryCache,
		Backend:  registry.BackendRedis,
		Timeout:  time.Second,
	}
}

func TestDispatcherConnected(t *testing.T) {
	handle := &fakeHandle{}
	d := NewDispatcher(zerolog.Nop(), WithProber(registry.BackendRedis, ProberFunc(
		func(context.Context, *registry.Descriptor) (Conn, error) {
			return Conn{Detail: "Connected successfully. Redis is responsive.", Handle: handle}, nil
		})))

	desc := redisDescriptor()
	outcome := d.Probe(context.Background(), desc)

	if outcome.Status != StatusConnected {
		t.Fatalf("expected connected, got %s (%s)", outcome.Status, outcome.Message)
	}
	if outcome.Descriptor != desc {
		t.Fatalf("expected outcome to reference the probed descriptor")
	}
	if outcome.Handle != handle {
		t.Fatalf("expected handle to be returned to the caller")
	}
	if outcome.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", outcome.Attempts)
	}
	if outcome.CheckedAt.IsZero() {
		t.Fatalf("expected checked at to be set")
	}
}

func TestDispatcherDefaultMessage(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), WithProber(registry.BackendRedis, ProberFunc(
		func(context.Context, *registry.Descriptor) (Conn, error) {
			return Conn{}, nil
		})))

	outcome := d.Probe(context.Background(), redisDescriptor())
	if outcome.Message != "Connected successfully." {
		t.Fatalf("unexpected message %q", outcome.Message)
	}
}

func TestDispatcherUnknownBackend(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	desc := &registry.Descriptor{Name: "memcached", Category: registry.CategoryCache, Backend: "memcached"}

	outcome := d.Probe(context.Background(), desc)
	if outcome.Status != StatusError {
		t.Fatalf("expected error, got %s", outcome.Status)
	}
	if !strings.Contains(outcome.Message, "unknown backend type") {
		t.Fatalf("unexpected message %q", outcome.Message)
	}
}

func TestDispatcherMissingCapabilityIsUnavailable(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())

	outcome := d.Probe(context.Background(), redisDescriptor())
	if outcome.Status != StatusUnavailable {
		t.Fatalf("expected unavailable, got %s", outcome.Status)
	}
	if !errors.Is(outcome.Cause, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable cause, got %v", outcome.Cause)
	}
}

func TestDispatcherUnavailableIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	d := NewDispatcher(zerolog.Nop(), WithProber(registry.BackendRedis, ProberFunc(
		func(context.Context, *registry.Descriptor) (Conn, error) {
			calls.Add(1)
			return Conn{}, fmt.Errorf("no credentials: %w", ErrUnavailable)
		})))

	desc := redisDescriptor()
	desc.RetryAttempts = 3
	outcome := d.Probe(context.Background(), desc)

	if outcome.Status != StatusUnavailable {
		t.Fatalf("expected unavailable, got %s", outcome.Status)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
}

func TestDispatcherErrorCarriesCause(t *testing.T) {
	refused := errors.New("connection refused")
	d := NewDispatcher(zerolog.Nop(), WithProber(registry.BackendRedis, ProberFunc(
		func(context.Context, *registry.Descriptor) (Conn, error) {
			return Conn{}, refused
		})))

	outcome := d.Probe(context.Background(), redisDescriptor())
	if outcome.Status != StatusError {
		t.Fatalf("expected error, got %s", outcome.Status)
	}
	if !errors.Is(outcome.Cause, refused) {
		t.Fatalf("expected cause to wrap refused, got %v", outcome.Cause)
	}
	var probeErr *Error
	if !errors.As(outcome.Cause, &probeErr) || probeErr.Backend != registry.BackendRedis {
		t.Fatalf("expected probe.Error for redis, got %#v", outcome.Cause)
	}
	if !strings.Contains(outcome.Message, "connection refused") {
		t.Fatalf("unexpected message %q", outcome.Message)
	}
}

func TestDispatcherRetries(t *testing.T) {
	cases := []struct {
		name         string
		failures     int32
		retries      int
		wantStatus   Status
		wantAttempts int
	}{
		{name: "succeeds after retries", failures: 2, retries: 2, wantStatus: StatusConnected, wantAttempts: 3},
		{name: "retries exhausted", failures: 10, retries: 2, wantStatus: StatusError, wantAttempts: 3},
		{name: "no retries", failures: 1, retries: 0, wantStatus: StatusError, wantAttempts: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			d := NewDispatcher(zerolog.Nop(), WithProber(registry.BackendRedis, ProberFunc(
				func(context.Context, *registry.Descriptor) (Conn, error) {
					if calls.Add(1) <= tc.failures {
						return Conn{}, errors.New("boom")
					}
					return Conn{}, nil
				})))

			desc := redisDescriptor()
			desc.RetryAttempts = tc.retries
			desc.RetryDelay = time.Millisecond

			outcome := d.Probe(context.Background(), desc)
			if outcome.Status != tc.wantStatus {
				t.Fatalf("expected %s, got %s", tc.wantStatus, outcome.Status)
			}
			if outcome.Attempts != tc.wantAttempts {
				t.Fatalf("expected %d attempts, got %d", tc.wantAttempts, outcome.Attempts)
			}
		})
	}
}

func TestDispatcherRetryDelayPastTimeoutKeepsError(t *testing.T) {
	var calls atomic.Int32
	d := NewDispatcher(zerolog.Nop(), WithProber(registry.BackendRedis, ProberFunc(
		func(context.Context, *registry.Descriptor) (Conn, error) {
			calls.Add(1)
			return Conn{}, errors.New("connection refused")
		})))

	desc := redisDescriptor()
	desc.Timeout = 200 * time.Millisecond
	desc.RetryAttempts = 3
	desc.RetryDelay = time.Second

	outcome := d.Probe(context.Background(), desc)
	if outcome.Status != StatusError {
		t.Fatalf("expected error, got %s (%s)", outcome.Status, outcome.Message)
	}
	if !strings.Contains(outcome.Message, "connection refused") {
		t.Fatalf("expected the capability error in the message, got %q", outcome.Message)
	}
	if outcome.Attempts != 1 || calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", outcome.Attempts)
	}
	if outcome.Elapsed >= desc.Timeout {
		t.Fatalf("expected to stop before the timeout, took %s", outcome.Elapsed)
	}
}

func TestDispatcherRetriesWithinTimeout(t *testing.T) {
	var calls atomic.Int32
	d := NewDispatcher(zerolog.Nop(), WithProber(registry.BackendRedis, ProberFunc(
		func(context.Context, *registry.Descriptor) (Conn, error) {
			if calls.Add(1) < 3 {
				return Conn{}, errors.New("connection refused")
			}
			return Conn{}, nil
		})))

	desc := redisDescriptor()
	desc.Timeout = 2 * time.Second
	desc.RetryAttempts = 3
	desc.RetryDelay = 10 * time.Millisecond

	outcome := d.Probe(context.Background(), desc)
	if outcome.Status != StatusConnected || outcome.Attempts != 3 {
		t.Fatalf("expected connected on attempt 3, got %s after %d", outcome.Status, outcome.Attempts)
	}
}

func TestDispatcherTimeoutDoesNotHang(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	handle := &fakeHandle{}
	d := NewDispatcher(zerolog.Nop(), WithProber(registry.BackendRedis, ProberFunc(
		func(context.Context, *registry.Descriptor) (Conn, error) {
			<-release
			return Conn{Handle: handle}, nil
		})))

	desc := redisDescriptor()
	desc.Timeout = 20 * time.Millisecond
	desc.RetryAttempts = 5

	start := time.Now()
	outcome := d.Probe(context.Background(), desc)
	if outcome.Status != StatusTimeout {
		t.Fatalf("expected timeout, got %s (%s)", outcome.Status, outcome.Message)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("probe did not respect its timeout")
	}
	if outcome.Handle != nil {
		t.Fatalf("timed out outcome must not carry a handle")
	}
}

func TestDispatcherRecoversPanics(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), WithProber(registry.BackendRedis, ProberFunc(
		func(context.Context, *registry.Descriptor) (Conn, error) {
			panic("driver bug")
		})))

	outcome := d.Probe(context.Background(), redisDescriptor())
	if outcome.Status != StatusError {
		t.Fatalf("expected error, got %s", outcome.Status)
	}
	if !strings.Contains(outcome.Message, "driver bug") {
		t.Fatalf("unexpected message %q", outcome.Message)
	}
}

func TestDispatcherMeasuresElapsed(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), WithProber(registry.BackendRedis, ProberFunc(
		func(context.Context, *registry.Descriptor) (Conn, error) {
			time.Sleep(15 * time.Millisecond)
			return Conn{}, errors.New("slow failure")
		})))

	outcome := d.Probe(context.Background(), redisDescriptor())
	if outcome.Elapsed < 15*time.Millisecond {
		t.Fatalf("expected elapsed >= 15ms, got %s", outcome.Elapsed)
	}
}

func TestDispatcherObserver(t *testing.T) {
	var seen []Status
	d := NewDispatcher(zerolog.Nop(), WithObserver(func(o Outcome) {
		seen = append(seen, o.Status)
	}))

	d.Probe(context.Background(), redisDescriptor())
	if len(seen) != 1 || seen[0] != StatusUnavailable {
		t.Fatalf("unexpected observed statuses %v", seen)
	}
}

func TestCloseHandlesDeduplicates(t *testing.T) {
	shared := &fakeHandle{}
	other := &fakeHandle{}
	outcomes := map[string]Outcome{
		"chromadb": {Status: StatusConnected, Handle: shared},
		"qdrant":   {Status: StatusConnected, Handle: shared},
		"redis":    {Status: StatusConnected, Handle: other},
		"neo4j":    {Status: StatusError},
	}

	if err := CloseHandles(outcomes); err != nil {
		t.Fatalf("CloseHandles error: %v", err)
	}
	if shared.closed.Load() != 1 {
		t.Fatalf("expected shared handle closed once, got %d", shared.closed.Load())
	}
	if other.closed.Load() != 1 {
		t.Fatalf("expected other handle closed once, got %d", other.closed.Load())
	}
}
