// Package hooks dispatches scan and search events to registered hooks such
// as the logging and audit hooks.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/keanuharrell/catrole/internal/core"
)

// =============================================================================
// Dispatcher Implementation
// =============================================================================

// Dispatcher delivers events to the hooks registered for their type. It is
// safe for concurrent use; hooks are called on the dispatching goroutine.
type Dispatcher struct {
	mu          sync.RWMutex
	hooks       map[string]core.Hook
	byEventType map[core.EventType][]core.Hook
	middlewares []core.HookMiddleware
}

// NewDispatcher creates a new event dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		hooks:       make(map[string]core.Hook),
		byEventType: make(map[core.EventType][]core.Hook),
	}
}

// =============================================================================
// Hook Management
// =============================================================================

// Register adds a hook, replacing any hook with the same name.
func (d *Dispatcher) Register(hook core.Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.hooks[hook.Name()]; ok {
		d.removeFromEventTypes(existing)
	}
	d.hooks[hook.Name()] = hook

	for _, eventType := range hook.EventTypes() {
		// Copy so a Dispatch holding the previous slice is never reordered
		hooks := append(append([]core.Hook(nil), d.byEventType[eventType]...), hook)
		// Higher priority runs first
		sort.SliceStable(hooks, func(i, j int) bool {
			return hooks[i].Priority() > hooks[j].Priority()
		})
		d.byEventType[eventType] = hooks
	}
}

// Unregister removes a hook by name.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	hook, ok := d.hooks[name]
	if !ok {
		return
	}
	d.removeFromEventTypes(hook)
	delete(d.hooks, name)
}

func (d *Dispatcher) removeFromEventTypes(hook core.Hook) {
	for _, eventType := range hook.EventTypes() {
		hooks := d.byEventType[eventType]
		kept := hooks[:0:0]
		for _, h := range hooks {
			if h.Name() != hook.Name() {
				kept = append(kept, h)
			}
		}
		d.byEventType[eventType] = kept
	}
}

// Use adds middleware to the dispatch chain. The last added middleware runs
// outermost.
func (d *Dispatcher) Use(middleware core.HookMiddleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middlewares = append(d.middlewares, middleware)
}

// HasHook reports whether a hook is registered under name.
func (d *Dispatcher) HasHook(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.hooks[name]
	return ok
}

// Hooks returns every registered hook ordered by name.
func (d *Dispatcher) Hooks() []core.Hook {
	d.mu.RLock()
	defer d.mu.RUnlock()

	hooks := make([]core.Hook, 0, len(d.hooks))
	for _, h := range d.hooks {
		hooks = append(hooks, h)
	}
	sort.Slice(hooks, func(i, j int) bool { return hooks[i].Name() < hooks[j].Name() })
	return hooks
}

// HooksForEvent returns the hooks registered for eventType in run order.
func (d *Dispatcher) HooksForEvent(eventType core.EventType) []core.Hook {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]core.Hook(nil), d.byEventType[eventType]...)
}

// =============================================================================
// Event Dispatch
// =============================================================================

// Dispatch sends event to every hook registered for its type. All hooks run
// even when some fail; their errors are returned together.
func (d *Dispatcher) Dispatch(ctx context.Context, event core.Event) error {
	d.mu.RLock()
	hooks := d.byEventType[event.Type()]
	middlewares := d.middlewares
	d.mu.RUnlock()

	var result *multierror.Error
	for _, hook := range hooks {
		handler := hook.Handle
		for i := len(middlewares) - 1; i >= 0; i-- {
			handler = middlewares[i].Wrap(handler)
		}
		if err := handler(ctx, event); err != nil {
			result = multierror.Append(result, fmt.Errorf("hook %s: %w", hook.Name(), err))
		}
	}
	return result.ErrorOrNil()
}

// =============================================================================
// Base Hook Implementation
// =============================================================================

// BaseHook is a hook backed by a handler function.
type BaseHook struct {
	name       string
	eventTypes []core.EventType
	priority   int
	handler    core.HookHandler
}

// NewBaseHook creates a new base hook.
func NewBaseHook(name string, eventTypes []core.EventType, priority int, handler core.HookHandler) *BaseHook {
	return &BaseHook{
		name:       name,
		eventTypes: eventTypes,
		priority:   priority,
		handler:    handler,
	}
}

func (h *BaseHook) Name() string                 { return h.name }
func (h *BaseHook) EventTypes() []core.EventType { return h.eventTypes }
func (h *BaseHook) Priority() int                { return h.priority }

// Handle processes an event.
func (h *BaseHook) Handle(ctx context.Context, event core.Event) error {
	if h.handler == nil {
		return nil
	}
	return h.handler(ctx, event)
}

// =============================================================================
// Middlewares
// =============================================================================

// RecoveryMiddleware turns a panicking hook into an error.
type RecoveryMiddleware struct {
	Logger *slog.Logger
}

// Wrap implements HookMiddleware.
func (m *RecoveryMiddleware) Wrap(next core.HookHandler) core.HookHandler {
	return func(ctx context.Context, event core.Event) (err error) {
		defer func() {
			if r := recover(); r != nil {
				if m.Logger != nil {
					m.Logger.Error("hook panicked", "event", event.Type(), "source", event.Source(), "panic", r)
				}
				err = fmt.Errorf("hook panic: %v", r)
			}
		}()
		return next(ctx, event)
	}
}

// =============================================================================
// Interface Assertions
// =============================================================================

var (
	_ core.EventDispatcher = (*Dispatcher)(nil)
	_ core.Hook            = (*BaseHook)(nil)
	_ core.HookMiddleware  = (*RecoveryMiddleware)(nil)
)
