package health

import (
	"sort"
	"sync"
	"time"

	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/nholik/backend-sentinel/internal/registry"
)

// Aggregator keeps the latest outcome per slot name. Live handles are never
// retained.
type Aggregator struct {
	mu       sync.RWMutex
	outcomes map[string]probe.Outcome
	order    []string
	now      func() time.Time
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		outcomes: make(map[string]probe.Outcome),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetOrder sets the registry order used for details and FirstWorking.
// Outcomes outside the order are kept and sorted after it by name.
func (a *Aggregator) SetOrder(names []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.order = append([]string(nil), names...)
}

// Retain sets the order and drops every outcome whose name is not in names.
func (a *Aggregator) Retain(names []string) {
	keep := make(map[string]struct{}, len(names))
	for _, name := range names {
		keep[name] = struct{}{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.order = append([]string(nil), names...)
	for name := range a.outcomes {
		if _, ok := keep[name]; !ok {
			delete(a.outcomes, name)
		}
	}
}

// RecordAll overwrites the outcomes for the given names only.
func (a *Aggregator) RecordAll(outcomes map[string]probe.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, outcome := range outcomes {
		a.outcomes[name] = outcome.WithoutHandle()
	}
}

// Len returns the number of recorded slots.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.outcomes)
}

// Outcomes returns a copy of the recorded outcomes.
func (a *Aggregator) Outcomes() map[string]probe.Outcome {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]probe.Outcome, len(a.outcomes))
	for name, outcome := range a.outcomes {
		out[name] = outcome
	}
	return out
}

// Summarize computes counts and per-slot details from the current outcomes.
func (a *Aggregator) Summarize() Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()

	summary := Summary{
		ByStatus:    make(map[probe.Status]int),
		ByCategory:  make(map[registry.Category]CategoryCounts),
		Details:     make([]ServiceDetail, 0, len(a.outcomes)),
		GeneratedAt: a.now(),
	}

	for _, name := range a.orderedLocked() {
		outcome := a.outcomes[name]
		summary.Total++
		summary.ByStatus[outcome.Status]++
		switch outcome.Status {
		case probe.StatusConnected:
			summary.Connected++
		case probe.StatusError:
			summary.Failed++
		case probe.StatusUnavailable:
			summary.Unavailable++
		case probe.StatusTimeout:
			summary.Timeout++
		case probe.StatusDisconnected:
			summary.Disconnected++
		}

		category := outcome.Category()
		counts := summary.ByCategory[category]
		counts.Total++
		switch outcome.Status {
		case probe.StatusConnected:
			counts.Connected++
		case probe.StatusError:
			counts.Failed++
		}
		summary.ByCategory[category] = counts

		summary.Details = append(summary.Details, newDetail(name, outcome))
	}

	return summary
}

// Working returns connected outcomes in registry order. An empty category
// matches every category.
func (a *Aggregator) Working(category registry.Category) []probe.Outcome {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var working []probe.Outcome
	for _, name := range a.orderedLocked() {
		outcome := a.outcomes[name]
		if !outcome.Connected() {
			continue
		}
		if category != "" && outcome.Category() != category {
			continue
		}
		working = append(working, outcome)
	}
	return working
}

// FirstWorking returns the first connected outcome of category in registry
// order. The result is stable for an unchanged set of outcomes.
func (a *Aggregator) FirstWorking(category registry.Category) (probe.Outcome, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, name := range a.orderedLocked() {
		outcome := a.outcomes[name]
		if outcome.Connected() && outcome.Category() == category {
			return outcome, true
		}
	}
	return probe.Outcome{}, false
}

// RequiredCategoriesSatisfied reports whether every category in required has
// a connected outcome.
func (a *Aggregator) RequiredCategoriesSatisfied(required []registry.Category) bool {
	for _, category := range required {
		if _, ok := a.FirstWorking(category); !ok {
			return false
		}
	}
	return true
}

// orderedLocked lists recorded names in registry order, then the rest by name.
func (a *Aggregator) orderedLocked() []string {
	names := make([]string, 0, len(a.outcomes))
	seen := make(map[string]struct{}, len(a.order))
	for _, name := range a.order {
		if _, ok := a.outcomes[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	var rest []string
	for name := range a.outcomes {
		if _, ok := seen[name]; !ok {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
