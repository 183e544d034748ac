// Package builtin provides the hooks shipped with catrole.
package builtin

import (
	"context"
	"log/slog"

	"github.com/keanuharrell/catrole/internal/core"
)

// =============================================================================
// Logging Hook
// =============================================================================

// LoggingHook writes events as structured log records.
type LoggingHook struct {
	logger     *slog.Logger
	eventTypes []core.EventType
}

// LoggingOption configures the logging hook.
type LoggingOption func(*LoggingHook)

// WithLogEventTypes sets which event types to log.
func WithLogEventTypes(types []core.EventType) LoggingOption {
	return func(h *LoggingHook) {
		h.eventTypes = types
	}
}

// AllEventTypes lists every event catrole emits.
var AllEventTypes = []core.EventType{
	core.EventScanStarted,
	core.EventScanCompleted,
	core.EventScanFailed,
	core.EventPolicyFailed,
	core.EventSearchStarted,
	core.EventSearchCompleted,
	core.EventAccountSearched,
	core.EventAccountFailed,
	core.EventWarning,
}

// NewLoggingHook creates a logging hook writing to logger.
func NewLoggingHook(logger *slog.Logger, opts ...LoggingOption) *LoggingHook {
	h := &LoggingHook{
		logger:     logger,
		eventTypes: AllEventTypes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *LoggingHook) Name() string                 { return "logging" }
func (h *LoggingHook) EventTypes() []core.EventType { return h.eventTypes }

// Priority returns the execution priority. Logging runs before other hooks.
func (h *LoggingHook) Priority() int { return 100 }

// Handle logs the event.
func (h *LoggingHook) Handle(ctx context.Context, event core.Event) error {
	attrs := append([]slog.Attr{
		slog.String("event", string(event.Type())),
		slog.String("source", event.Source()),
	}, eventAttrs(event.Data())...)

	h.logger.LogAttrs(ctx, eventLevel(event.Type()), eventMessage(event.Type()), attrs...)
	return nil
}

func eventLevel(eventType core.EventType) slog.Level {
	switch eventType {
	case core.EventScanFailed:
		return slog.LevelError
	case core.EventPolicyFailed, core.EventAccountFailed, core.EventWarning:
		return slog.LevelWarn
	case core.EventSearchStarted, core.EventSearchCompleted, core.EventScanCompleted:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func eventMessage(eventType core.EventType) string {
	switch eventType {
	case core.EventScanStarted:
		return "scan started"
	case core.EventScanCompleted:
		return "scan completed"
	case core.EventScanFailed:
		return "scan failed"
	case core.EventPolicyFailed:
		return "policy retrieval failed"
	case core.EventSearchStarted:
		return "search started"
	case core.EventSearchCompleted:
		return "search completed"
	case core.EventAccountSearched:
		return "account searched"
	case core.EventAccountFailed:
		return "account search failed"
	default:
		return string(eventType)
	}
}

func eventAttrs(data any) []slog.Attr {
	var attrs []slog.Attr
	add := func(key, value string) {
		if value != "" {
			attrs = append(attrs, slog.String(key, value))
		}
	}

	switch d := data.(type) {
	case core.ScanEventData:
		add("account", d.AccountID)
		add("entity_type", d.EntityType)
		add("entity", d.EntityName)
		add("policy", d.PolicyName)
		if d.Rows > 0 {
			attrs = append(attrs, slog.Int("rows", d.Rows))
		}
		add("error", d.Error)

	case core.AccountEventData:
		add("account", d.AccountID)
		add("account_name", d.AccountName)
		attrs = append(attrs, slog.Int("roles", d.Roles), slog.Int("policies", d.Policies))
		if d.Total > 0 {
			attrs = append(attrs, slog.Int("index", d.Index), slog.Int("total", d.Total))
		}
		add("error", d.Error)

	case core.SearchEventData:
		add("pattern", d.Pattern)
		add("role", d.RoleName)
		attrs = append(attrs, slog.Int("accounts", d.Accounts), slog.Int("matched", d.Matched))

	case string:
		add("message", d)

	case error:
		add("error", d.Error())
	}

	return attrs
}

var _ core.Hook = (*LoggingHook)(nil)
