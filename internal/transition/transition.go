package transition

import (
	"sort"

	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/nholik/backend-sentinel/internal/registry"
	"github.com/nholik/backend-sentinel/internal/state"
)

// SubstitutionChange records which service answered for a slot before and now.
type SubstitutionChange struct {
	PreviousService string `json:"previous_service"`
	CurrentService  string `json:"current_service"`
}

// ServiceTransition captures a status or substitution change of one slot.
type ServiceTransition struct {
	Name           string              `json:"name"`
	Category       registry.Category   `json:"category"`
	PreviousStatus probe.Status        `json:"previous_status"`
	CurrentStatus  probe.Status        `json:"current_status"`
	Message        string              `json:"message,omitempty"`
	Substitution   *SubstitutionChange `json:"substitution,omitempty"`
}

// Recovered reports whether the slot came back to connected.
func (t ServiceTransition) Recovered() bool {
	return t.CurrentStatus == probe.StatusConnected
}

// DetectServiceTransitions compares a previous snapshot with the current
// records and emits transitions. On the first run only unhealthy slots are
// reported. A slot that stays connected but is now served by a different
// service is reported with its substitution.
func DetectServiceTransitions(prev *state.EnvironmentSnapshot, current map[string]state.ServiceRecord) []ServiceTransition {
	prevServices := map[string]state.ServiceRecord{}
	if prev != nil && prev.Services != nil {
		prevServices = prev.Services
	}
	firstRun := prev == nil || len(prevServices) == 0

	transitions := make([]ServiceTransition, 0)
	for name, record := range current {
		prevRecord, hadPrev := prevServices[name]
		prevStatus := prevRecord.Status
		if prevRecord.LastNotifiedStatus != "" {
			prevStatus = prevRecord.LastNotifiedStatus
		}

		var substitution *SubstitutionChange
		if hadPrev && prevRecord.Service != "" && prevRecord.Service != record.Service {
			substitution = &SubstitutionChange{PreviousService: prevRecord.Service, CurrentService: record.Service}
		}

		switch {
		case firstRun:
			if record.Status == probe.StatusConnected {
				continue
			}
		case hadPrev:
			if prevStatus == record.Status && substitution == nil {
				continue
			}
		default:
			if record.Status == probe.StatusConnected {
				continue
			}
		}

		transitions = append(transitions, ServiceTransition{
			Name:           name,
			Category:       record.Category,
			PreviousStatus: prevStatus,
			CurrentStatus:  record.Status,
			Message:        record.Message,
			Substitution:   substitution,
		})
	}

	sort.Slice(transitions, func(i, j int) bool {
		return transitions[i].Name < transitions[j].Name
	})

	return transitions
}
