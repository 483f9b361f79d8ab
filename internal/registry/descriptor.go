package registry

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Category is the logical role a backend serves.
type Category string

const (
	CategoryVector  Category = "vector"
	CategoryGraph   Category = "graph"
	CategoryStorage Category = "storage"
	CategoryCache   Category = "cache"
)

// Categories lists every category in reporting order.
var Categories = []Category{CategoryVector, CategoryGraph, CategoryStorage, CategoryCache}

// ParseCategory maps a config value onto a Category.
func ParseCategory(value string) (Category, error) {
	switch Category(value) {
	case CategoryVector, CategoryGraph, CategoryStorage, CategoryCache:
		return Category(value), nil
	case "objectstore", "object_store":
		return CategoryStorage, nil
	default:
		return "", fmt.Errorf("unknown category %q", value)
	}
}

// Backend identifies the client family used to probe a descriptor.
// Probes are dispatched on Backend, never on the descriptor name.
type Backend string

const (
	BackendChroma   Backend = "chromadb"
	BackendQdrant   Backend = "qdrant"
	BackendWeaviate Backend = "weaviate"
	BackendNeo4j    Backend = "neo4j"
	BackendArangoDB Backend = "arangodb"
	BackendMinIO    Backend = "minio"
	BackendRedis    Backend = "redis"
)

var knownBackends = map[Backend]struct{}{
	BackendChroma:   {},
	BackendQdrant:   {},
	BackendWeaviate: {},
	BackendNeo4j:    {},
	BackendArangoDB: {},
	BackendMinIO:    {},
	BackendRedis:    {},
}

// Known reports whether b is a backend family this module understands.
func (b Backend) Known() bool {
	_, ok := knownBackends[b]
	return ok
}

// Descriptor is the static configuration of one backend instance.
type Descriptor struct {
	Name          string
	Category      Category
	Backend       Backend
	Host          string
	Port          int
	URI           string
	Username      string
	Password      string
	APIKey        string
	Database      string
	Secure        bool
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	Extra         map[string]string

	// Fallbacks is wired by New from a FallbackPlan and must not be
	// mutated after the registry is built.
	Fallbacks []*Descriptor
}

// Endpoint returns URI when set, otherwise host:port.
func (d *Descriptor) Endpoint() string {
	if d.URI != "" {
		return d.URI
	}
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// ExtraValue returns an extra parameter or def when it is unset.
func (d *Descriptor) ExtraValue(key, def string) string {
	if v, ok := d.Extra[key]; ok && v != "" {
		return v
	}
	return def
}

// FallbackNames returns the names of the direct fallbacks in order.
func (d *Descriptor) FallbackNames() []string {
	names := make([]string, 0, len(d.Fallbacks))
	for _, fb := range d.Fallbacks {
		names = append(names, fb.Name)
	}
	return names
}

// TimeoutOr returns the descriptor timeout, or def when none is set.
func (d *Descriptor) TimeoutOr(def time.Duration) time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return def
}

// ChainTimeout sums the timeouts of d and its direct fallbacks, the most a
// fallback resolution of d can take. Descriptors without a timeout count def.
func (d *Descriptor) ChainTimeout(def time.Duration) time.Duration {
	total := d.TimeoutOr(def)
	for _, fb := range d.Fallbacks {
		total += fb.TimeoutOr(def)
	}
	return total
}
