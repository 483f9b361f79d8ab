package notify

import (
	"context"

	"github.com/nholik/backend-sentinel/internal/transition"
	"github.com/rs/zerolog"
)

// NoopNotifier records transitions in the debug log and delivers nothing.
// Watch mode uses it when no alert target is configured.
type NoopNotifier struct {
	logger zerolog.Logger
}

// NewNoop logs reason once and returns the notifier.
func NewNoop(logger zerolog.Logger, reason string) *NoopNotifier {
	if reason != "" {
		logger.Info().Msg(reason)
	}
	return &NoopNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *NoopNotifier) Notify(_ context.Context, environment string, transitions []transition.ServiceTransition) error {
	if len(transitions) == 0 {
		return nil
	}
	tally := TallyTransitions(transitions)
	n.logger.Debug().
		Str("environment", environment).
		Int("degraded", tally.Degraded).
		Int("recovered", tally.Recovered).
		Int("substituted", tally.Substituted).
		Msg("backend transitions not delivered, no target configured")
	return nil
}
