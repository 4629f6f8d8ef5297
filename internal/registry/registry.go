package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/specialistvlad/graphjob/internal/integration"
)

// Module is the interface that all integration modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds all the registered integration definitions for a single
// application instance.
type Registry struct {
	definitions map[string]*integration.Definition
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{definitions: make(map[string]*integration.Definition)}
}

// Register adds an integration definition. Registering the same name twice
// is a programmer error.
func (r *Registry) Register(def *integration.Definition) {
	if _, exists := r.definitions[def.Name]; exists {
		panic(fmt.Sprintf("integration with name '%s' already registered", def.Name))
	}
	slog.Debug("Registering integration.", "name", def.Name, "steps", len(def.Steps))
	r.definitions[def.Name] = def
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (*integration.Definition, error) {
	def, ok := r.definitions[name]
	if !ok {
		return nil, fmt.Errorf("unknown integration '%s' (registered: %v)", name, r.Names())
	}
	return def, nil
}

// Names returns the registered integration names in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
