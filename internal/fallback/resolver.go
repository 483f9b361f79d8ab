package fallback

import (
	"context"

	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/nholik/backend-sentinel/internal/registry"
	"github.com/rs/zerolog"
)

// Prober is the subset of probe.Dispatcher the resolver needs.
type Prober interface {
	Probe(ctx context.Context, d *registry.Descriptor) probe.Outcome
}

// Resolver substitutes a working fallback for a failed primary.
type Resolver struct {
	logger zerolog.Logger
	prober Prober
}

// NewResolver constructs a Resolver on top of prober.
func NewResolver(logger zerolog.Logger, prober Prober) *Resolver {
	return &Resolver{logger: logger, prober: prober}
}

// Resolve probes d and, if it is not connected, its fallbacks in order.
// The first connected fallback is returned. When every fallback fails the
// primary's own outcome is returned so its failure reason stays authoritative.
func (r *Resolver) Resolve(ctx context.Context, d *registry.Descriptor) probe.Outcome {
	return r.ResolveWith(ctx, r.prober, d)
}

// ResolveWith is Resolve against a specific prober, e.g. a per-round memo.
func (r *Resolver) ResolveWith(ctx context.Context, prober Prober, d *registry.Descriptor) probe.Outcome {
	primary := prober.Probe(ctx, d)
	if primary.Connected() || d == nil || len(d.Fallbacks) == 0 {
		return primary
	}

	r.logger.Warn().
		Str("service", d.Name).
		Str("status", string(primary.Status)).
		Strs("fallbacks", d.FallbackNames()).
		Msg("primary connection failed, trying fallbacks")

	for _, fb := range d.Fallbacks {
		if ctx.Err() != nil {
			break
		}
		candidate := prober.Probe(ctx, fb)
		if candidate.Connected() {
			r.logger.Info().
				Str("service", d.Name).
				Str("fallback", fb.Name).
				Msg("fallback connection succeeded")
			return candidate
		}
	}

	r.logger.Error().
		Str("service", d.Name).
		Str("status", string(primary.Status)).
		Str("message", primary.Message).
		Msg("all fallbacks failed")
	return primary
}
