package notify

import (
	"context"

	"github.com/nholik/backend-sentinel/internal/transition"
)

// Notifier delivers slot transitions of one environment to an external
// system. An empty transitions list is a no-op for every implementation.
type Notifier interface {
	Notify(ctx context.Context, environment string, transitions []transition.ServiceTransition) error
}

// Tally counts a batch of transitions by direction.
type Tally struct {
	Degraded    int
	Recovered   int
	Substituted int
}

// TallyTransitions counts degraded and recovered slots, and those now
// answered by a different service.
func TallyTransitions(transitions []transition.ServiceTransition) Tally {
	var t Tally
	for _, change := range transitions {
		if change.Recovered() {
			t.Recovered++
		} else {
			t.Degraded++
		}
		if change.Substitution != nil {
			t.Substituted++
		}
	}
	return t
}
