// Package core defines the types, interfaces and errors shared by the
// catrole packages.
package core

import (
	"context"
	"time"
)

// =============================================================================
// Capability Interfaces
// =============================================================================

// CredentialBroker obtains temporary credentials in a target account.
type CredentialBroker interface {
	AssumeRole(ctx context.Context, accountID, roleName string) (Credentials, error)
}

// AccountDirectory enumerates the accounts of an organization.
type AccountDirectory interface {
	// ListActiveAccounts returns every account whose status is active
	ListActiveAccounts(ctx context.Context) ([]Account, error)

	// ResolveAccountName returns the display name of an account, or the ID
	// itself when the lookup fails
	ResolveAccountName(ctx context.Context, accountID string) string
}

// =============================================================================
// Hook/Event Interfaces
// =============================================================================

// Event represents a system event that hooks can respond to.
type Event interface {
	// Type returns the event type
	Type() EventType

	// Timestamp returns when the event occurred
	Timestamp() time.Time

	// Source returns the origin of the event (e.g., "scanner", "search")
	Source() string

	// Data returns the event payload
	Data() any
}

// Hook is a handler that responds to system events.
type Hook interface {
	// Name returns the unique identifier for this hook
	Name() string

	// EventTypes returns the event types this hook handles
	EventTypes() []EventType

	// Priority returns the execution priority (higher = runs first)
	Priority() int

	// Handle processes an event
	Handle(ctx context.Context, event Event) error
}

// HookHandler is a function type for processing events.
type HookHandler func(ctx context.Context, event Event) error

// HookMiddleware wraps hook execution to add cross-cutting concerns.
type HookMiddleware interface {
	// Wrap wraps the next handler with middleware logic
	Wrap(next HookHandler) HookHandler
}

// EventDispatcher manages event dispatch to registered hooks.
type EventDispatcher interface {
	// Register adds a hook to the dispatcher
	Register(hook Hook)

	// Unregister removes a hook by name
	Unregister(name string)

	// Dispatch sends an event to all registered hooks
	Dispatch(ctx context.Context, event Event) error

	// Use adds middleware to the dispatch chain
	Use(middleware HookMiddleware)
}

// NopDispatcher discards every event.
type NopDispatcher struct{}

func (NopDispatcher) Register(Hook)                         {}
func (NopDispatcher) Unregister(string)                     {}
func (NopDispatcher) Dispatch(context.Context, Event) error { return nil }
func (NopDispatcher) Use(HookMiddleware)                    {}

var _ EventDispatcher = NopDispatcher{}
