package state

import (
	"context"
	"time"

	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/nholik/backend-sentinel/internal/registry"
)

// ServiceRecord is the persisted result of one slot.
type ServiceRecord struct {
	// Service is the descriptor that answered; it differs from the slot name
	// when a fallback was substituted.
	Service            string            `json:"service"`
	Category           registry.Category `json:"category"`
	Status             probe.Status      `json:"status"`
	Message            string            `json:"message,omitempty"`
	CheckedAt          time.Time         `json:"checked_at"`
	LastNotifiedStatus probe.Status      `json:"last_notified_status,omitempty"`
}

// EnvironmentSnapshot captures the persisted round result for an environment.
type EnvironmentSnapshot struct {
	RoundID     string                   `json:"round_id"`
	Ready       bool                     `json:"ready"`
	Services    map[string]ServiceRecord `json:"services"`
	EvaluatedAt time.Time                `json:"evaluated_at"`
}

// State stores snapshots for all environments.
type State struct {
	Environments map[string]EnvironmentSnapshot `json:"environments"`
}

// Store defines the interface for persisting state.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// RecordsFromOutcomes converts round outcomes into persisted records.
func RecordsFromOutcomes(outcomes map[string]probe.Outcome) map[string]ServiceRecord {
	records := make(map[string]ServiceRecord, len(outcomes))
	for name, outcome := range outcomes {
		records[name] = ServiceRecord{
			Service:   outcome.Service(),
			Category:  outcome.Category(),
			Status:    outcome.Status,
			Message:   outcome.Message,
			CheckedAt: outcome.CheckedAt,
		}
	}
	return records
}
