package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/keanuharrell/catrole/internal/core"
)

// =============================================================================
// Audit Hook
// =============================================================================

// AuditHook appends one JSON line per scan and search event to an audit log
// rotated by size.
type AuditHook struct {
	mu         sync.Mutex
	out        io.WriteCloser
	filePath   string
	maxSizeMB  int
	maxBackups int
	eventTypes []core.EventType
}

// AuditOption configures the audit hook.
type AuditOption func(*AuditHook)

// WithAuditFile sets the audit log file path.
func WithAuditFile(path string) AuditOption {
	return func(h *AuditHook) {
		if path != "" {
			h.filePath = path
		}
	}
}

// WithAuditRotation sets the size in megabytes at which the log rotates and
// the number of rotated files kept.
func WithAuditRotation(maxSizeMB, maxBackups int) AuditOption {
	return func(h *AuditHook) {
		h.maxSizeMB = maxSizeMB
		h.maxBackups = maxBackups
	}
}

// WithAuditWriter sends records to w instead of the rotated file.
func WithAuditWriter(w io.WriteCloser) AuditOption {
	return func(h *AuditHook) {
		h.out = w
	}
}

// NewAuditHook creates an audit hook. The log file is opened on the first
// record.
func NewAuditHook(opts ...AuditOption) *AuditHook {
	h := &AuditHook{
		filePath:   DefaultAuditPath(),
		maxSizeMB:  10,
		maxBackups: 5,
		eventTypes: []core.EventType{
			core.EventScanCompleted,
			core.EventScanFailed,
			core.EventSearchStarted,
			core.EventSearchCompleted,
			core.EventAccountSearched,
			core.EventAccountFailed,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// DefaultAuditPath returns the default audit log path.
func DefaultAuditPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "catrole-audit.log")
	}
	return filepath.Join(home, ".config", "catrole", "audit.log")
}

func (h *AuditHook) Name() string                 { return "audit" }
func (h *AuditHook) EventTypes() []core.EventType { return h.eventTypes }

// Priority returns the execution priority. Audit runs right after logging.
func (h *AuditHook) Priority() int { return 90 }

// FilePath returns the audit log file path.
func (h *AuditHook) FilePath() string { return h.filePath }

// Handle writes the event to the audit log.
func (h *AuditHook) Handle(_ context.Context, event core.Event) error {
	data, err := json.Marshal(newAuditRecord(event))
	if err != nil {
		return fmt.Errorf("audit: failed to marshal record: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.out == nil {
		if err := os.MkdirAll(filepath.Dir(h.filePath), 0o700); err != nil {
			return fmt.Errorf("audit: failed to create log directory: %w", err)
		}
		h.out = &lumberjack.Logger{
			Filename:   h.filePath,
			MaxSize:    h.maxSizeMB,
			MaxBackups: h.maxBackups,
		}
	}

	if _, err := h.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write record: %w", err)
	}
	return nil
}

// Close closes the audit log.
func (h *AuditHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.out == nil {
		return nil
	}
	err := h.out.Close()
	h.out = nil
	return err
}

// =============================================================================
// Audit Record
// =============================================================================

// AuditRecord is a single audit log entry.
type AuditRecord struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Source    string    `json:"source"`
	Account   string    `json:"account,omitempty"`
	Resource  string    `json:"resource,omitempty"`
	Error     string    `json:"error,omitempty"`
	Details   any       `json:"details,omitempty"`
}

func newAuditRecord(event core.Event) AuditRecord {
	record := AuditRecord{
		Timestamp: event.Timestamp().UTC(),
		EventType: string(event.Type()),
		Source:    event.Source(),
	}

	switch d := event.Data().(type) {
	case core.ScanEventData:
		record.Account = d.AccountID
		record.Resource = d.EntityType + "/" + d.EntityName
		record.Error = d.Error
		if d.Rows > 0 {
			record.Details = map[string]int{"rows": d.Rows}
		}

	case core.AccountEventData:
		record.Account = d.AccountID
		record.Error = d.Error
		record.Details = map[string]any{
			"account_name": d.AccountName,
			"roles":        d.Roles,
			"policies":     d.Policies,
		}

	case core.SearchEventData:
		record.Resource = d.Pattern
		record.Details = d

	case error:
		record.Error = d.Error()
	}

	return record
}

var _ core.Hook = (*AuditHook)(nil)
