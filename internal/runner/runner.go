package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nholik/backend-sentinel/internal/health"
	"github.com/nholik/backend-sentinel/internal/healthcheck"
	"github.com/nholik/backend-sentinel/internal/metrics"
	"github.com/nholik/backend-sentinel/internal/notify"
	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/nholik/backend-sentinel/internal/registry"
	"github.com/nholik/backend-sentinel/internal/state"
	"github.com/nholik/backend-sentinel/internal/transition"
	"github.com/rs/zerolog"
)

const defaultEnvironment = "default"

// Ticker is the minimal interface needed for driving the runner loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

// Checker runs probe rounds. *manager.Manager satisfies it.
type Checker interface {
	TestWithFallbacks(ctx context.Context, names []string) map[string]probe.Outcome
	Summary(ctx context.Context) health.Summary
	Required() []registry.Category
}

// Runner orchestrates the watch loop.
type Runner struct {
	logger        zerolog.Logger
	pollInterval  time.Duration
	tickerFactory func(time.Duration) Ticker
	runOnce       func(context.Context) error
	checker       Checker
	environment   string
	stateStore    state.Store
	stateMu       *sync.Mutex
	notifier      notify.Notifier
	metrics       *metrics.Metrics
	tracker       *healthcheck.Tracker
	newRoundID    func() string
}

// Option customizes runner behavior.
type Option func(*Runner)

// WithTickerFactory overrides how tickers are created.
func WithTickerFactory(factory func(time.Duration) Ticker) Option {
	return func(r *Runner) {
		r.tickerFactory = factory
	}
}

// WithRunOnce overrides the single-round execution step.
func WithRunOnce(runOnce func(context.Context) error) Option {
	return func(r *Runner) {
		r.runOnce = runOnce
	}
}

// WithChecker sets the round source used by the default RunOnce.
func WithChecker(checker Checker) Option {
	return func(r *Runner) {
		r.checker = checker
	}
}

// WithEnvironment names the environment in state, metrics and notifications.
func WithEnvironment(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.environment = name
		}
	}
}

// WithStateStore enables state persistence for transitions.
func WithStateStore(store state.Store, lock *sync.Mutex) Option {
	return func(r *Runner) {
		r.stateStore = store
		r.stateMu = lock
	}
}

// WithNotifier delivers detected transitions.
func WithNotifier(notifier notify.Notifier) Option {
	return func(r *Runner) {
		r.notifier = notifier
	}
}

// WithMetrics records round metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithTracker records round timing and readiness for health endpoints.
func WithTracker(tracker *healthcheck.Tracker) Option {
	return func(r *Runner) {
		r.tracker = tracker
	}
}

// New constructs a Runner with the given logger and poll interval.
func New(logger zerolog.Logger, pollInterval time.Duration, opts ...Option) *Runner {
	r := &Runner{
		logger:       logger,
		pollInterval: pollInterval,
		environment:  defaultEnvironment,
		tickerFactory: func(d time.Duration) Ticker {
			return timeTicker{ticker: time.NewTicker(d)}
		},
		newRoundID: uuid.NewString,
	}
	r.runOnce = r.defaultRunOnce

	for _, opt := range opts {
		opt(r)
	}
	if r.stateStore != nil && r.stateMu == nil {
		r.stateMu = &sync.Mutex{}
	}

	return r
}

// Run starts the main loop and blocks until the context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	if r.pollInterval <= 0 {
		return errors.New("poll interval must be greater than zero")
	}

	// Run immediately on startup
	if err := r.RunOnce(ctx); err != nil {
		r.logRoundError(err, "initial round failed")
	}

	ticker := r.tickerFactory(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("runner stopped")
			return nil
		case <-ticker.C():
			if err := r.RunOnce(ctx); err != nil {
				r.logRoundError(err, "round failed")
			}
		}
	}
}

func (r *Runner) logRoundError(err error, msg string) {
	if IsRuntime(err) {
		r.logger.Warn().Err(err).Msg(msg)
		return
	}
	r.logger.Error().Err(err).Msg(msg)
}

// RunOnce executes a single round.
func (r *Runner) RunOnce(ctx context.Context) error {
	return r.runOnce(ctx)
}

func (r *Runner) defaultRunOnce(ctx context.Context) error {
	if r.checker == nil {
		return errors.New("no checker configured")
	}

	roundID := r.newRoundID()
	logger := r.logger.With().Str("round_id", roundID).Logger()

	start := time.Now()
	outcomes := r.checker.TestWithFallbacks(ctx, nil)
	duration := time.Since(start)
	defer func() {
		if err := probe.CloseHandles(outcomes); err != nil {
			logger.Warn().Err(err).Msg("failed to close probe handles")
		}
	}()

	summary := r.checker.Summary(ctx)
	missing := summary.Missing(r.checker.Required())
	ready := len(missing) == 0

	r.metrics.ObserveRoundDuration(duration)
	r.metrics.RecordSummary(r.environment, summary)
	r.metrics.SetReady(r.environment, ready)
	if ready {
		r.metrics.SetLastSuccessfulRoundTimestamp(time.Now())
	}
	r.tracker.RecordRound(roundID, duration, len(outcomes), missing)

	event := logger.Info()
	if !ready {
		event = logger.Warn().Interface("missing_categories", missing)
	}
	event.
		Int("services", summary.Total).
		Int("connected", summary.Connected).
		Bool("ready", ready).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("round finished")

	if r.stateStore == nil {
		return nil
	}
	return r.evaluateAndPersist(ctx, logger, roundID, outcomes, ready)
}

func (r *Runner) evaluateAndPersist(ctx context.Context, logger zerolog.Logger, roundID string, outcomes map[string]probe.Outcome, ready bool) error {
	var previous *state.EnvironmentSnapshot
	err := r.withStateLock(func() error {
		loaded, err := r.stateStore.Load(ctx)
		if err != nil {
			return err
		}
		if existing, ok := loaded.Environments[r.environment]; ok {
			copySnapshot := existing
			previous = &copySnapshot
		}
		return nil
	})
	if err != nil {
		return wrapRuntime("load state", err)
	}

	records := state.RecordsFromOutcomes(outcomes)
	transitions := transition.DetectServiceTransitions(previous, records)
	r.logTransitions(logger, transitions)

	notifyErr := r.deliver(ctx, transitions)
	markNotified(records, previous, transitions, notifyErr == nil)

	err = r.withStateLock(func() error {
		loaded, err := r.stateStore.Load(ctx)
		if err != nil {
			return err
		}
		if loaded.Environments == nil {
			loaded.Environments = map[string]state.EnvironmentSnapshot{}
		}
		loaded.Environments[r.environment] = state.EnvironmentSnapshot{
			RoundID:     roundID,
			Ready:       ready,
			Services:    records,
			EvaluatedAt: time.Now().UTC(),
		}
		return r.stateStore.Save(ctx, loaded)
	})
	if err != nil {
		return wrapRuntime("save state", err)
	}

	if notifyErr != nil {
		return wrapRuntime("notify", notifyErr)
	}
	return nil
}

func (r *Runner) deliver(ctx context.Context, transitions []transition.ServiceTransition) error {
	if r.notifier == nil || len(transitions) == 0 {
		return nil
	}
	if err := r.notifier.Notify(ctx, r.environment, transitions); err != nil {
		r.metrics.IncNotificationErrors()
		return err
	}
	for _, change := range transitions {
		r.metrics.IncNotificationsTotal(r.environment, string(change.CurrentStatus))
	}
	return nil
}

// markNotified sets LastNotifiedStatus on the new records. When delivery
// failed, a changed slot keeps what was last reported (or is left out if it
// was never reported) so the transition fires again next round.
func markNotified(records map[string]state.ServiceRecord, previous *state.EnvironmentSnapshot, transitions []transition.ServiceTransition, delivered bool) {
	changed := make(map[string]bool, len(transitions))
	for _, change := range transitions {
		changed[change.Name] = true
	}

	for name, record := range records {
		if !changed[name] || delivered {
			record.LastNotifiedStatus = record.Status
			records[name] = record
			continue
		}

		var prior state.ServiceRecord
		var seen bool
		if previous != nil {
			prior, seen = previous.Services[name]
		}
		if !seen {
			delete(records, name)
			continue
		}
		record.Service = prior.Service
		record.LastNotifiedStatus = prior.LastNotifiedStatus
		if record.LastNotifiedStatus == "" {
			record.LastNotifiedStatus = prior.Status
		}
		records[name] = record
	}
}

func (r *Runner) logTransitions(logger zerolog.Logger, transitions []transition.ServiceTransition) {
	for _, change := range transitions {
		var event *zerolog.Event
		switch change.CurrentStatus {
		case probe.StatusConnected:
			event = logger.Info()
		case probe.StatusUnavailable, probe.StatusDisconnected:
			event = logger.Warn()
		default:
			event = logger.Error()
		}

		event = event.
			Str("service", change.Name).
			Str("category", string(change.Category)).
			Str("previous_status", string(change.PreviousStatus)).
			Str("current_status", string(change.CurrentStatus))
		if change.Message != "" {
			event = event.Str("message", change.Message)
		}
		if change.Substitution != nil {
			event = event.
				Str("previous_provider", change.Substitution.PreviousService).
				Str("current_provider", change.Substitution.CurrentService)
		}
		event.Msg("service transition detected")
	}
}

func (r *Runner) withStateLock(fn func() error) error {
	if r.stateMu == nil {
		return fn()
	}
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return fn()
}
