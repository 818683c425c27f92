package command

import (
	"context"
	"sort"
	"sync"

	"signage-agent-go/internal/domain/command/model"
	errs "signage-agent-go/internal/platform/errors"
)

// Handler executes one command. The returned error marks the command failed
// on the backend; nil marks it completed.
type Handler func(ctx context.Context, cmd model.Command) error

// Registry maps command kinds to their handlers. Registration normally
// happens during bootstrap, lookups happen on every delivery.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a command kind. Registering the same kind
// twice replaces the previous handler.
func (r *Registry) Register(kind string, handler Handler) error {
	if kind == "" {
		return errs.New(errs.KindCommand, "registry.Register", "command kind required")
	}
	if handler == nil {
		return errs.New(errs.KindCommand, "registry.Register", "handler required for kind "+kind)
	}

	r.mu.Lock()
	r.handlers[kind] = handler
	r.mu.Unlock()
	return nil
}

// Lookup returns the handler for a kind.
func (r *Registry) Lookup(kind string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[kind]
	return handler, ok
}

// Kinds lists the registered command kinds in stable order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	kinds := make([]string, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	r.mu.RUnlock()

	sort.Strings(kinds)
	return kinds
}
