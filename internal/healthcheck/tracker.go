package healthcheck

import (
	"sync"
	"time"

	"github.com/nholik/backend-sentinel/internal/registry"
)

// Snapshot describes the latest round timing and readiness details.
type Snapshot struct {
	LastRoundTime     *time.Time          `json:"last_round_time"`
	RoundID           string              `json:"round_id,omitempty"`
	RoundDurationMS   int64               `json:"round_duration_ms"`
	ServicesChecked   int                 `json:"services_checked"`
	Ready             bool                `json:"ready"`
	MissingCategories []registry.Category `json:"missing_categories,omitempty"`
}

// Tracker records round timing and readiness for health endpoints.
type Tracker struct {
	mu              sync.RWMutex
	lastRound       time.Time
	roundID         string
	roundDuration   time.Duration
	servicesChecked int
	missing         []registry.Category
	ready           bool
}

// NewTracker constructs a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordRound updates round timing. The tracker is ready while no required
// category is missing.
func (t *Tracker) RecordRound(roundID string, duration time.Duration, servicesChecked int, missing []registry.Category) {
	if t == nil {
		return
	}
	now := time.Now().UTC()
	t.mu.Lock()
	t.lastRound = now
	t.roundID = roundID
	t.roundDuration = duration
	t.servicesChecked = servicesChecked
	t.missing = append([]registry.Category(nil), missing...)
	t.ready = len(missing) == 0
	t.mu.Unlock()
}

// Snapshot returns the current tracker snapshot.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var last *time.Time
	if !t.lastRound.IsZero() {
		value := t.lastRound
		last = &value
	}
	return Snapshot{
		LastRoundTime:     last,
		RoundID:           t.roundID,
		RoundDurationMS:   int64(t.roundDuration / time.Millisecond),
		ServicesChecked:   t.servicesChecked,
		Ready:             t.ready,
		MissingCategories: append([]registry.Category(nil), t.missing...),
	}
}

// Ready reports whether the latest round satisfied every required category.
func (t *Tracker) Ready() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready
}

// Healthy reports whether the last round completed within 2x the poll interval.
func (t *Tracker) Healthy(now time.Time, pollInterval time.Duration) bool {
	if t == nil {
		return false
	}
	if pollInterval <= 0 {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastRound.IsZero() {
		return false
	}
	return now.Sub(t.lastRound) <= 2*pollInterval
}
