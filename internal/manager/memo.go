package manager

import (
	"context"
	"sync"

	"github.com/nholik/backend-sentinel/internal/fallback"
	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/nholik/backend-sentinel/internal/registry"
)

// roundMemo probes each descriptor at most once per round. Slots and
// fallback chains that reach the same descriptor share its outcome.
type roundMemo struct {
	prober fallback.Prober

	mu      sync.Mutex
	entries map[string]*memoEntry
}

type memoEntry struct {
	once    sync.Once
	outcome probe.Outcome
}

func newRoundMemo(prober fallback.Prober) *roundMemo {
	return &roundMemo{prober: prober, entries: make(map[string]*memoEntry)}
}

// Probe implements fallback.Prober.
func (r *roundMemo) Probe(ctx context.Context, d *registry.Descriptor) probe.Outcome {
	if d == nil {
		return r.prober.Probe(ctx, d)
	}

	r.mu.Lock()
	entry, ok := r.entries[d.Name]
	if !ok {
		entry = &memoEntry{}
		r.entries[d.Name] = entry
	}
	r.mu.Unlock()

	entry.once.Do(func() {
		entry.outcome = r.prober.Probe(ctx, d)
	})
	return entry.outcome
}
