package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicate is returned when two descriptors share a name.
	ErrDuplicate = errors.New("duplicate service name")
	// ErrUnknownFallback is returned when a fallback plan names a missing service.
	ErrUnknownFallback = errors.New("unknown fallback service")
	// ErrCycle is returned when fallback references form a cycle.
	ErrCycle = errors.New("fallback cycle")
)

// FallbackPlan maps a primary service name to its ordered alternatives.
type FallbackPlan map[string][]string

// DefaultFallbackPlan returns the fixed per-category priority order:
// vector chromadb -> qdrant -> weaviate, graph neo4j -> arangodb.
func DefaultFallbackPlan() FallbackPlan {
	return FallbackPlan{
		"chromadb": {"qdrant", "weaviate"},
		"neo4j":    {"arangodb"},
	}
}

// Registry is an immutable, ordered set of descriptors with wired fallbacks.
// Reloading builds a new Registry instead of mutating an existing one.
type Registry struct {
	order []string
	byKey map[string]*Descriptor
}

// New copies descriptors into a registry and wires fallbacks from plan.
// Plan entries whose primary is absent are ignored; a plan entry naming an
// absent alternative is skipped when strict is false.
func New(descriptors []Descriptor, plan FallbackPlan) (*Registry, error) {
	return build(descriptors, plan, false)
}

// NewStrict is like New but rejects plan entries that name missing services.
func NewStrict(descriptors []Descriptor, plan FallbackPlan) (*Registry, error) {
	return build(descriptors, plan, true)
}

func build(descriptors []Descriptor, plan FallbackPlan, strict bool) (*Registry, error) {
	r := &Registry{
		order: make([]string, 0, len(descriptors)),
		byKey: make(map[string]*Descriptor, len(descriptors)),
	}

	for i := range descriptors {
		d := descriptors[i]
		if d.Name == "" {
			return nil, fmt.Errorf("service %d: name is required", i)
		}
		if _, exists := r.byKey[d.Name]; exists {
			return nil, fmt.Errorf("service %q: %w", d.Name, ErrDuplicate)
		}
		if d.Timeout < 0 {
			return nil, fmt.Errorf("service %q: timeout cannot be negative", d.Name)
		}
		if d.RetryAttempts < 0 {
			return nil, fmt.Errorf("service %q: retry attempts cannot be negative", d.Name)
		}
		d.Fallbacks = nil
		d.Extra = copyExtra(d.Extra)
		r.byKey[d.Name] = &d
		r.order = append(r.order, d.Name)
	}

	for _, name := range r.order {
		alternatives, ok := plan[name]
		if !ok {
			continue
		}
		primary := r.byKey[name]
		for _, altName := range alternatives {
			alt, ok := r.byKey[altName]
			if !ok {
				if strict {
					return nil, fmt.Errorf("service %q: %w %q", name, ErrUnknownFallback, altName)
				}
				continue
			}
			if alt.Category != primary.Category {
				return nil, fmt.Errorf("service %q: fallback %q has category %s, want %s", name, altName, alt.Category, primary.Category)
			}
			primary.Fallbacks = append(primary.Fallbacks, alt)
		}
	}

	if err := r.checkAcyclic(); err != nil {
		return nil, err
	}

	return r, nil
}

// checkAcyclic walks the fallback graph depth first.
func (r *Registry) checkAcyclic() error {
	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(r.order))

	var visit func(d *Descriptor, path []string) error
	visit = func(d *Descriptor, path []string) error {
		switch marks[d.Name] {
		case visiting:
			return fmt.Errorf("%w: %v -> %s", ErrCycle, path, d.Name)
		case done:
			return nil
		}
		marks[d.Name] = visiting
		for _, fb := range d.Fallbacks {
			if err := visit(fb, append(path, d.Name)); err != nil {
				return err
			}
		}
		marks[d.Name] = done
		return nil
	}

	for _, name := range r.order {
		if err := visit(r.byKey[name], nil); err != nil {
			return err
		}
	}
	return nil
}

// Names returns service names in registry order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	if r == nil {
		return nil, false
	}
	d, ok := r.byKey[name]
	return d, ok
}

// Descriptors returns all descriptors in registry order.
func (r *Registry) Descriptors() []*Descriptor {
	if r == nil {
		return nil
	}
	out := make([]*Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byKey[name])
	}
	return out
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Validate returns non-fatal configuration warnings.
func (r *Registry) Validate() []string {
	var warnings []string
	if r.Len() == 0 {
		return []string{"no services configured"}
	}
	seen := make(map[Category]bool)
	for _, d := range r.Descriptors() {
		seen[d.Category] = true
		if !d.Backend.Known() {
			warnings = append(warnings, fmt.Sprintf("service %q has unknown backend %q", d.Name, d.Backend))
		}
	}
	if !seen[CategoryVector] && !seen[CategoryGraph] {
		warnings = append(warnings, "no vector or graph services configured")
	}
	return warnings
}

func copyExtra(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
