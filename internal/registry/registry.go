// Package registry maps configured entry-point names to unit constructors
// and requirement names to requirement implementations. Embedding
// applications register their suites here before calling cli.Execute.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ariel-frischer/proctest/internal/controller"
	"github.com/ariel-frischer/proctest/internal/coverage"
)

// Constructor builds a fresh root unit. Discovery and verification each
// construct their own instance.
type Constructor func() controller.Unit

// Module registers a suite's units and requirements.
type Module interface {
	Register(r *Registry)
}

// Registry holds the constructors and requirements of one application.
type Registry struct {
	mu           sync.RWMutex
	units        map[string]Constructor
	requirements map[string]coverage.Requirement
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		units:        make(map[string]Constructor),
		requirements: make(map[string]coverage.Requirement),
	}
}

// Default is the registry used by the proctest binary.
var Default = New()

// RegisterUnit adds a constructor under name.
func (r *Registry) RegisterUnit(name string, ctor Constructor) error {
	if name == "" || ctor == nil {
		return fmt.Errorf("registering unit %q: name and constructor are required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.units[name]; exists {
		return fmt.Errorf("unit %q already registered", name)
	}
	r.units[name] = ctor
	return nil
}

// MustRegisterUnit is RegisterUnit for init-time registration.
func (r *Registry) MustRegisterUnit(name string, ctor Constructor) {
	if err := r.RegisterUnit(name, ctor); err != nil {
		panic(err)
	}
}

// RegisterRequirement adds a requirement, replacing any with the same name.
func (r *Registry) RegisterRequirement(req coverage.Requirement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requirements[req.Name()] = req
}

// Use registers a module.
func (r *Registry) Use(m Module) *Registry {
	m.Register(r)
	return r
}

// Unit returns the constructor registered under name.
func (r *Registry) Unit(name string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.units[name]
	return ctor, ok
}

// Requirement returns the requirement registered under name. It satisfies
// coverage.Lookup.
func (r *Registry) Requirement(name string) (coverage.Requirement, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requirements[name]
	return req, ok
}

// Units lists registered unit names, sorted.
func (r *Registry) Units() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.units))
	for name := range r.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
