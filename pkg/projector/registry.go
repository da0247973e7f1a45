package projector

import (
	"sync"
)

// Registry indexes device profiles by type name. Registration order is
// preserved and drives both discovery probing order and any type-selection
// surface. Reads are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{
		profiles: map[string]*Profile{},
	}
}

// Register validates the profile and adds it. A duplicate type name is a
// configuration error.
func (r *Registry) Register(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[p.Type]; ok {
		return &ConfigError{Profile: p.Type, Reason: "duplicate profile type"}
	}
	r.profiles[p.Type] = &p
	r.order = append(r.order, p.Type)
	return nil
}

// Get returns the profile for a type name.
func (r *Registry) Get(typeName string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[typeName]
	if !ok {
		return nil, &UnknownProfileError{Type: typeName}
	}
	return p, nil
}

// Types returns all registered type names in registration order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Reload rebuilds the registry through load and swaps the content in one
// step. On error the previous content is kept.
func (r *Registry) Reload(load func(*Registry) error) error {
	fresh := NewRegistry()
	if err := load(fresh); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles = fresh.profiles
	r.order = fresh.order
	return nil
}

// DefaultProfiles returns the built-in vendor profiles in their canonical
// registration order.
func DefaultProfiles() []Profile {
	return []Profile{
		ChristieProfile(),
		EpsonProfile(),
	}
}

// LoadDefaults registers the built-in vendor profiles.
func LoadDefaults(r *Registry) error {
	for _, p := range DefaultProfiles() {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}
