package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/nholik/backend-sentinel/internal/transition"
)

// MultiNotifier delivers the same transitions to every alert target, e.g.
// Slack and a webhook. One failing target does not stop the others.
type MultiNotifier struct {
	targets []Notifier
}

// NewMultiNotifier drops nil targets.
func NewMultiNotifier(targets ...Notifier) *MultiNotifier {
	kept := make([]Notifier, 0, len(targets))
	for _, target := range targets {
		if target != nil {
			kept = append(kept, target)
		}
	}
	return &MultiNotifier{targets: kept}
}

// Notify implements Notifier. The joined error names each failed target by
// its position.
func (m *MultiNotifier) Notify(ctx context.Context, environment string, transitions []transition.ServiceTransition) error {
	if len(transitions) == 0 {
		return nil
	}
	var errs []error
	for i, target := range m.targets {
		if err := target.Notify(ctx, environment, transitions); err != nil {
			errs = append(errs, fmt.Errorf("target %d of %d: %w", i+1, len(m.targets), err))
		}
	}
	return errors.Join(errs...)
}
