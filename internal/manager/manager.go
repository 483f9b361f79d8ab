// Package manager ties the registry, probe dispatcher, fallback resolver
// and health aggregator together behind one explicit instance.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nholik/backend-sentinel/internal/fallback"
	"github.com/nholik/backend-sentinel/internal/health"
	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/nholik/backend-sentinel/internal/registry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxConcurrency = 8
	defaultSlotGrace      = time.Second
)

// ErrNoLoader is returned by Reload when no loader was configured.
var ErrNoLoader = errors.New("no registry loader configured")

// DefaultRequired is the readiness requirement used when none is given.
var DefaultRequired = []registry.Category{registry.CategoryVector, registry.CategoryGraph, registry.CategoryStorage}

// Loader rebuilds the registry from its configuration source.
type Loader func(ctx context.Context) (*registry.Registry, error)

// Manager runs probe rounds over a registry and keeps the latest outcomes.
type Manager struct {
	logger         zerolog.Logger
	prober         fallback.Prober
	resolver       *fallback.Resolver
	aggregator     *health.Aggregator
	loader         Loader
	required       []registry.Category
	maxConcurrency int
	slotGrace      time.Duration
	defaultTimeout time.Duration

	reg atomic.Pointer[registry.Registry]
	// roundMu is held shared by rounds and exclusively by Reload.
	roundMu sync.RWMutex
}

// Option customizes manager behavior.
type Option func(*Manager)

// WithLoader sets the source used by Reload.
func WithLoader(loader Loader) Option {
	return func(m *Manager) {
		m.loader = loader
	}
}

// WithMaxConcurrency bounds the number of slots probed at once.
func WithMaxConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxConcurrency = n
		}
	}
}

// WithRequired sets the categories IsReady checks when called without any.
func WithRequired(categories []registry.Category) Option {
	return func(m *Manager) {
		m.required = append([]registry.Category(nil), categories...)
	}
}

// WithSlotGrace sets the slack added to a slot's chain timeout.
func WithSlotGrace(grace time.Duration) Option {
	return func(m *Manager) {
		if grace >= 0 {
			m.slotGrace = grace
		}
	}
}

// timeoutReporter is implemented by *probe.Dispatcher.
type timeoutReporter interface {
	DefaultTimeout() time.Duration
}

// New constructs a Manager over reg using prober for every probe.
func New(logger zerolog.Logger, reg *registry.Registry, prober fallback.Prober, opts ...Option) *Manager {
	m := &Manager{
		logger:         logger,
		prober:         prober,
		aggregator:     health.NewAggregator(),
		required:       DefaultRequired,
		maxConcurrency: defaultMaxConcurrency,
		slotGrace:      defaultSlotGrace,
		defaultTimeout: probe.DefaultTimeout,
	}
	if t, ok := prober.(timeoutReporter); ok {
		m.defaultTimeout = t.DefaultTimeout()
	}
	for _, opt := range opts {
		opt(m)
	}
	m.resolver = fallback.NewResolver(logger, prober)
	m.reg.Store(reg)
	m.aggregator.SetOrder(reg.Names())
	return m
}

// Registry returns the registry currently in use.
func (m *Manager) Registry() *registry.Registry {
	return m.reg.Load()
}

// Aggregator exposes the outcome store.
func (m *Manager) Aggregator() *health.Aggregator {
	return m.aggregator
}

// TestAll probes every registered descriptor directly, without fallbacks.
// Returned outcomes may carry live handles the caller must close, e.g. with
// probe.CloseHandles.
func (m *Manager) TestAll(ctx context.Context) map[string]probe.Outcome {
	return m.round(ctx, nil, false)
}

// TestWithFallbacks probes the named descriptors, substituting fallbacks
// for failed primaries. A nil or empty names list checks the whole registry.
// Unknown names are skipped.
func (m *Manager) TestWithFallbacks(ctx context.Context, names []string) map[string]probe.Outcome {
	return m.round(ctx, names, true)
}

// Summary returns the health summary, probing every descriptor directly
// first when nothing has been recorded yet.
func (m *Manager) Summary(ctx context.Context) health.Summary {
	if m.aggregator.Len() == 0 {
		outcomes := m.TestAll(ctx)
		if err := probe.CloseHandles(outcomes); err != nil {
			m.logger.Warn().Err(err).Msg("failed to close probe handles")
		}
	}
	return m.aggregator.Summarize()
}

// IsReady reports whether every category has a connected outcome recorded.
// A nil categories list uses the configured requirement. It never probes.
func (m *Manager) IsReady(categories []registry.Category) bool {
	if categories == nil {
		categories = m.required
	}
	return m.aggregator.RequiredCategoriesSatisfied(categories)
}

// Required returns the configured readiness requirement.
func (m *Manager) Required() []registry.Category {
	return append([]registry.Category(nil), m.required...)
}

// FirstWorking returns the first connected outcome of category.
func (m *Manager) FirstWorking(category registry.Category) (probe.Outcome, bool) {
	return m.aggregator.FirstWorking(category)
}

// Working lists connected outcomes, optionally restricted to one category.
func (m *Manager) Working(category registry.Category) []probe.Outcome {
	return m.aggregator.Working(category)
}

// Reload rebuilds the registry through the loader and swaps it in once no
// round is in flight. On error the current registry stays in place.
// Outcomes of removed names are dropped by the next full check.
func (m *Manager) Reload(ctx context.Context) error {
	if m.loader == nil {
		return ErrNoLoader
	}

	m.roundMu.Lock()
	defer m.roundMu.Unlock()

	reg, err := m.loader(ctx)
	if err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}
	if reg == nil {
		return errors.New("reload registry: loader returned no registry")
	}

	previous := m.reg.Swap(reg)
	m.aggregator.SetOrder(reg.Names())
	m.logger.Info().
		Int("services", reg.Len()).
		Int("previous_services", previous.Len()).
		Msg("registry reloaded")
	for _, warning := range reg.Validate() {
		m.logger.Warn().Str("warning", warning).Msg("registry validation")
	}
	return nil
}

func (m *Manager) round(ctx context.Context, names []string, withFallbacks bool) map[string]probe.Outcome {
	m.roundMu.RLock()
	defer m.roundMu.RUnlock()

	reg := m.reg.Load()
	full := len(names) == 0
	slots := m.slots(reg, names)

	memo := newRoundMemo(m.prober)
	results := make(map[string]probe.Outcome, len(slots))
	var resultsMu sync.Mutex

	var g errgroup.Group
	g.SetLimit(m.maxConcurrency)
	for _, desc := range slots {
		desc := desc
		g.Go(func() error {
			slotCtx, cancel := context.WithTimeout(ctx, m.slotDeadline(desc, withFallbacks))
			defer cancel()

			var outcome probe.Outcome
			if withFallbacks {
				outcome = m.resolver.ResolveWith(slotCtx, memo, desc)
			} else {
				outcome = memo.Probe(slotCtx, desc)
			}

			resultsMu.Lock()
			results[desc.Name] = outcome
			resultsMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if full {
		m.aggregator.Retain(reg.Names())
	} else {
		m.aggregator.SetOrder(reg.Names())
	}
	m.aggregator.RecordAll(results)

	m.logger.Debug().
		Int("slots", len(slots)).
		Bool("fallbacks", withFallbacks).
		Bool("full", full).
		Msg("probe round finished")
	return results
}

func (m *Manager) slots(reg *registry.Registry, names []string) []*registry.Descriptor {
	if len(names) == 0 {
		return reg.Descriptors()
	}

	seen := make(map[string]struct{}, len(names))
	slots := make([]*registry.Descriptor, 0, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		desc, ok := reg.Get(name)
		if !ok {
			m.logger.Warn().Str("service", name).Msg("unknown service requested, skipping")
			continue
		}
		slots = append(slots, desc)
	}
	return slots
}

// slotDeadline bounds one slot by the timeouts along its chain plus grace.
// Descriptors without a timeout count the prober's default.
func (m *Manager) slotDeadline(desc *registry.Descriptor, withFallbacks bool) time.Duration {
	if withFallbacks {
		return desc.ChainTimeout(m.defaultTimeout) + m.slotGrace
	}
	return desc.TimeoutOr(m.defaultTimeout) + m.slotGrace
}
