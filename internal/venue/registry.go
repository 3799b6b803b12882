// Package venue maps venue identifiers to VenueClient constructors. Unknown
// identifiers are rejected up front, at configuration-validation time, rather
// than surfacing as call-time lookup failures.
package venue

import (
	"fmt"
	"sort"
	"sync"

	"crossarb/internal/domain"
)

// Settings carries the per-venue configuration a factory needs to build a
// client. The wire protocol behind the client is the factory's concern.
type Settings struct {
	Name      string
	APIKey    string
	APISecret string
	Params    map[string]string
}

// Factory builds a VenueClient from settings.
type Factory func(s Settings) (domain.VenueClient, error)

// Registry holds named venue client factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with the built-in simulated venue
// registered under "sim". Real venue client packages register their drivers
// on top.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("sim", func(s Settings) (domain.VenueClient, error) {
		return NewPaper(s.Name), nil
	})
	return r
}

// Register adds a factory under the given driver name, replacing any
// previous registration.
func (r *Registry) Register(driver string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[driver] = f
}

// Supported reports whether a driver name is registered.
func (r *Registry) Supported(driver string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[driver]
	return ok
}

// Drivers returns all registered driver names, sorted.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds a client for the given driver. It fails with
// domain.ErrUnknownVenue for unregistered drivers.
func (r *Registry) New(driver string, s Settings) (domain.VenueClient, error) {
	r.mu.RLock()
	f, ok := r.factories[driver]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("venue: driver %q: %w", driver, domain.ErrUnknownVenue)
	}
	return f(s)
}
