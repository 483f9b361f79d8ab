package notify

import (
	"context"

	"github.com/nholik/backend-sentinel/internal/transition"
	"github.com/rs/zerolog"
)

// DryRunNotifier logs transitions without sending notifications.
type DryRunNotifier struct {
	logger zerolog.Logger
	inner  Notifier
}

// NewDryRunNotifier returns a notifier that suppresses delivery and logs instead.
func NewDryRunNotifier(logger zerolog.Logger, inner Notifier) *DryRunNotifier {
	return &DryRunNotifier{logger: logger, inner: inner}
}

// Notify implements Notifier.
func (n *DryRunNotifier) Notify(_ context.Context, environment string, transitions []transition.ServiceTransition) error {
	for _, change := range transitions {
		event := n.logger.Info().
			Str("environment", environment).
			Str("service", change.Name).
			Str("category", string(change.Category)).
			Str("previous_status", string(change.PreviousStatus)).
			Str("current_status", string(change.CurrentStatus)).
			Str("message", change.Message)
		if change.Substitution != nil {
			event = event.Str("fallback", change.Substitution.CurrentService)
		}
		event.Msg("[DRY-RUN] Would notify")
	}
	return nil
}
