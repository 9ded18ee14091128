package region

import (
	"context"
	"fmt"
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// DefaultDomain is the domain used when none is given.
const DefaultDomain = ""

// Registry maps domains to the mapper serving them. A domain disambiguates
// regions when several windows or backends are present.
type Registry struct {
	mappers cmap.ConcurrentMap[string, Mapper]
}

// DefaultRegistry is used by views created without WithRegistry.
var DefaultRegistry = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{mappers: cmap.New[Mapper]()}
}

// Register makes m serve domain, replacing any previous mapper.
func (r *Registry) Register(domain string, m Mapper) {
	r.mappers.Set(domain, m)
}

// Unregister removes the mapper of domain.
func (r *Registry) Unregister(domain string) {
	r.mappers.Remove(domain)
}

// Domains returns the registered domains, sorted.
func (r *Registry) Domains() []string {
	keys := r.mappers.Keys()
	sort.Strings(keys)
	return keys
}

// Open maps the region name in domain.
func (r *Registry) Open(ctx context.Context, name, domain string) (Mapping, error) {
	m, ok := r.mappers.Get(domain)
	if !ok {
		return nil, fmt.Errorf("open %q: %w %q", name, ErrUnknownDomain, domain)
	}
	mapping, err := m.Map(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open %q in domain %q: %w", name, domain, err)
	}
	return mapping, nil
}
