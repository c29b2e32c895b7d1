// Package plugins tracks dynamically loaded extension modules. Modules
// expose a fixed call contract; the loading mechanism itself sits behind
// the Loader interface.
package plugins

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/simpleremote/simpleremote/pkg/logger"
)

// Module is the capability-restricted surface of a loaded extension
type Module interface {
	// Call invokes a named method with JSON-encoded arguments
	Call(method string, args json.RawMessage) (json.RawMessage, error)

	// Close releases the module
	Close() error
}

// Loader resolves a path to a loaded module handle
type Loader interface {
	Load(path string) (Module, error)
}

// Registry maps caller-supplied identifiers to loaded modules.
// Identifiers behave as a set: re-registration of a live identifier is
// rejected rather than silently overwriting.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
	logger  *logger.Logger
}

// NewRegistry creates an empty plugin registry
func NewRegistry() *Registry {
	return &Registry{
		modules: make(map[string]Module),
		logger:  logger.WithComponent("plugin-registry"),
	}
}

// Register adds a module under id. Duplicate identifiers are an error.
func (r *Registry) Register(id string, m Module) error {
	if id == "" {
		return fmt.Errorf("plugin identifier cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[id]; exists {
		return fmt.Errorf("plugin %q is already registered", id)
	}
	r.modules[id] = m
	r.logger.Info("plugin registered", "id", id)
	return nil
}

// Get returns the module for id
func (r *Registry) Get(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	return m, ok
}

// Remove unregisters and closes the module for id
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	m, ok := r.modules[id]
	if ok {
		delete(r.modules, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("plugin %q is not registered", id)
	}
	if err := m.Close(); err != nil {
		return fmt.Errorf("plugin %q close failed: %w", id, err)
	}
	r.logger.Info("plugin removed", "id", id)
	return nil
}

// Call dispatches a method invocation to the module registered under id
func (r *Registry) Call(id, method string, args json.RawMessage) (json.RawMessage, error) {
	m, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("plugin %q is not registered", id)
	}
	return m.Call(method, args)
}

// List returns the registered identifiers
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	return ids
}
