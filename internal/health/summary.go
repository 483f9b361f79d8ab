package health

import (
	"time"

	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/nholik/backend-sentinel/internal/registry"
)

// CategoryCounts tallies outcomes for one category.
type CategoryCounts struct {
	Total     int `json:"total"`
	Connected int `json:"connected"`
	Failed    int `json:"failed"`
}

// ServiceDetail is the latest outcome recorded for one slot.
type ServiceDetail struct {
	// Name is the slot the outcome was recorded under.
	Name string `json:"name"`

	// Service is the descriptor actually probed; it differs from Name when
	// a fallback was substituted.
	Service     string            `json:"service"`
	Substituted bool              `json:"substituted"`
	Category    registry.Category `json:"category"`
	Backend     registry.Backend  `json:"backend"`
	Status      probe.Status      `json:"status"`
	Message     string            `json:"message"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Elapsed     time.Duration     `json:"-"`
	ElapsedMS   int64             `json:"elapsed_ms"`
	Attempts    int               `json:"attempts"`
	CheckedAt   time.Time         `json:"checked_at"`
}

// Summary is derived from the aggregator on demand and never stored.
type Summary struct {
	Total        int                                  `json:"total"`
	Connected    int                                  `json:"connected"`
	Failed       int                                  `json:"failed"`
	Unavailable  int                                  `json:"unavailable"`
	Timeout      int                                  `json:"timeout"`
	Disconnected int                                  `json:"disconnected"`
	ByStatus     map[probe.Status]int                 `json:"by_status"`
	ByCategory   map[registry.Category]CategoryCounts `json:"by_category"`
	Details      []ServiceDetail                      `json:"details"`
	GeneratedAt  time.Time                            `json:"generated_at"`
}

// Missing returns the required categories without a connected service.
func (s Summary) Missing(required []registry.Category) []registry.Category {
	var missing []registry.Category
	for _, category := range required {
		if s.ByCategory[category].Connected == 0 {
			missing = append(missing, category)
		}
	}
	return missing
}

// Detail returns the detail recorded under name.
func (s Summary) Detail(name string) (ServiceDetail, bool) {
	for _, detail := range s.Details {
		if detail.Name == name {
			return detail, true
		}
	}
	return ServiceDetail{}, false
}

func newDetail(name string, outcome probe.Outcome) ServiceDetail {
	detail := ServiceDetail{
		Name:      name,
		Service:   outcome.Service(),
		Category:  outcome.Category(),
		Status:    outcome.Status,
		Message:   outcome.Message,
		Elapsed:   outcome.Elapsed,
		ElapsedMS: outcome.Elapsed.Milliseconds(),
		Attempts:  outcome.Attempts,
		CheckedAt: outcome.CheckedAt,
	}
	if outcome.Descriptor != nil {
		detail.Backend = outcome.Descriptor.Backend
		detail.Endpoint = outcome.Descriptor.Endpoint()
		detail.Substituted = outcome.Descriptor.Name != name
	}
	return detail
}
