package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keanuharrell/catrole/internal/core"
)

func TestDispatchOrdersByPriority(t *testing.T) {
	d := NewDispatcher()
	var order []string

	record := func(name string) core.HookHandler {
		return func(context.Context, core.Event) error {
			order = append(order, name)
			return nil
		}
	}
	d.Register(NewBaseHook("low", []core.EventType{core.EventAccountFailed}, 10, record("low")))
	d.Register(NewBaseHook("high", []core.EventType{core.EventAccountFailed}, 100, record("high")))
	d.Register(NewBaseHook("other", []core.EventType{core.EventScanStarted}, 50, record("other")))

	require.NoError(t, d.Dispatch(context.Background(), core.NewEvent(core.EventAccountFailed, "search", nil)))
	assert.Equal(t, []string{"high", "low"}, order)
}

func TestRegisterReplacesAndUnregister(t *testing.T) {
	d := NewDispatcher()
	calls := map[string]int{}

	d.Register(NewBaseHook("h", []core.EventType{core.EventWarning}, 1, func(context.Context, core.Event) error {
		calls["first"]++
		return nil
	}))
	d.Register(NewBaseHook("h", []core.EventType{core.EventWarning}, 1, func(context.Context, core.Event) error {
		calls["second"]++
		return nil
	}))
	require.Len(t, d.HooksForEvent(core.EventWarning), 1)

	_ = d.Dispatch(context.Background(), core.NewEvent(core.EventWarning, "test", "x"))
	assert.Equal(t, map[string]int{"second": 1}, calls)

	d.Register(NewBaseHook("a", []core.EventType{core.EventScanStarted}, 1, nil))
	names := []string{}
	for _, h := range d.Hooks() {
		names = append(names, h.Name())
	}
	assert.Equal(t, []string{"a", "h"}, names)

	d.Unregister("h")
	assert.False(t, d.HasHook("h"))
	assert.Empty(t, d.HooksForEvent(core.EventWarning))
}

func TestDispatchCollectsErrors(t *testing.T) {
	d := NewDispatcher()
	ran := 0
	failing := func(context.Context, core.Event) error {
		ran++
		return errors.New("disk full")
	}
	d.Register(NewBaseHook("a", []core.EventType{core.EventScanFailed}, 2, failing))
	d.Register(NewBaseHook("b", []core.EventType{core.EventScanFailed}, 1, failing))

	err := d.Dispatch(context.Background(), core.NewEvent(core.EventScanFailed, "scanner", nil))
	require.Error(t, err)
	assert.Equal(t, 2, ran)
	assert.Contains(t, err.Error(), "hook a: disk full")
	assert.Contains(t, err.Error(), "hook b: disk full")
}

func TestRecoveryMiddleware(t *testing.T) {
	d := NewDispatcher()
	d.Use(&RecoveryMiddleware{})
	d.Register(NewBaseHook("panicky", []core.EventType{core.EventWarning}, 1, func(context.Context, core.Event) error {
		panic("hook exploded")
	}))

	err := d.Dispatch(context.Background(), core.NewEvent(core.EventWarning, "test", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook panic: hook exploded")
}

func TestDispatchWithoutHooks(t *testing.T) {
	assert.NoError(t, NewDispatcher().Dispatch(context.Background(), core.NewEvent(core.EventSearchStarted, "search", nil)))
}
