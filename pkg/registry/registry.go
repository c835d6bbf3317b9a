package registry

import (
	"fmt"
	"sync"

	"github.com/txn2/tabular/pkg/handler"
)

// Registry manages handler registration and lifecycle.
type Registry struct {
	mu sync.RWMutex

	// Registered handlers by kind+name
	handlers map[string]Handler

	// Factory functions by kind
	factories map[string]HandlerFactory

	// Registration descriptors by kind, captured when the factory's
	// kind is registered.
	descriptors map[string]handler.Descriptor
}

// NewRegistry creates a new handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers:    make(map[string]Handler),
		factories:   make(map[string]HandlerFactory),
		descriptors: make(map[string]handler.Descriptor),
	}
}

// RegisterFactory registers a handler factory for a kind along with the
// kind's registration descriptor.
func (r *Registry) RegisterFactory(kind string, desc handler.Descriptor, factory HandlerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
	r.descriptors[kind] = desc
}

// Descriptor returns the registration descriptor for a kind.
func (r *Registry) Descriptor(kind string) (handler.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.descriptors[kind]
	return desc, ok
}

// Register adds a handler instance to the registry.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := handlerKey(h.Kind(), h.Name())
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("handler %s already registered", key)
	}
	r.handlers[key] = h
	return nil
}

// CreateAndRegister creates a handler from config and registers it.
func (r *Registry) CreateAndRegister(cfg HandlerConfig) error {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Kind]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown handler kind: %s", cfg.Kind)
	}

	h, err := factory(cfg.Name, cfg.Config)
	if err != nil {
		return fmt.Errorf("creating handler %s/%s: %w", cfg.Kind, cfg.Name, err)
	}

	return r.Register(h)
}

// Get retrieves a handler by kind and name.
func (r *Registry) Get(kind, name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[handlerKey(kind, name)]
	return h, ok
}

// GetByKind retrieves all handlers of a kind.
func (r *Registry) GetByKind(kind string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Handler
	for key, h := range r.handlers {
		if h.Kind() == kind {
			result = append(result, r.handlers[key])
		}
	}
	return result
}

// All returns all registered handlers.
func (r *Registry) All() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		result = append(result, h)
	}
	return result
}

// HandlerForTable returns handler info (kind, name) for a table.
// Returns found=false if the table is not exposed by any registered
// handler.
func (r *Registry) HandlerForTable(table string) (kind, name string, found bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, h := range r.handlers {
		for _, t := range h.Tables() {
			if t == table {
				return h.Kind(), h.Name(), true
			}
		}
	}
	return "", "", false
}

// Close disconnects all registered handlers.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, h := range r.handlers {
		if err := h.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors disconnecting handlers: %v", errs)
	}
	return nil
}

func handlerKey(kind, name string) string {
	return kind + ":" + name
}
