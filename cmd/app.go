package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/fatih/color"

	"github.com/keanuharrell/catrole/internal/config"
	"github.com/keanuharrell/catrole/internal/core"
	"github.com/keanuharrell/catrole/internal/hooks"
	"github.com/keanuharrell/catrole/internal/hooks/builtin"
	"github.com/keanuharrell/catrole/internal/logging"
	"github.com/keanuharrell/catrole/internal/output"
)

// =============================================================================
// Configuration
// =============================================================================

// loadConfig loads the configuration and applies CLI flag overrides.
func loadConfig(f rootFlags) (*config.Config, error) {
	cfg, err := config.NewLoader().Load(f.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	applyFlagOverrides(cfg, f)

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlagOverrides applies CLI flags to configuration.
func applyFlagOverrides(cfg *config.Config, f rootFlags) {
	if f.awsProfile != "" {
		cfg.AWS.Profile = f.awsProfile
	}
	if f.awsRegion != "" {
		cfg.AWS.Region = f.awsRegion
	}
	if f.outputFormat != "" {
		cfg.Output.Format = f.outputFormat
	}
	if f.noCSV {
		cfg.Output.CSV = false
	}
	if f.verbose {
		cfg.Logging.Level = "debug"
	}
}

// newLogger builds the stderr logger from the logging config.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(w, level, cfg.Logging.Format, color.NoColor), nil
}

// =============================================================================
// Event Dispatcher Setup
// =============================================================================

// createDispatcher creates and configures the event dispatcher.
func createDispatcher(cfg *config.Config, logger *slog.Logger, warnings *output.Printer) *hooks.Dispatcher {
	dispatcher := hooks.NewDispatcher()

	// Recover from hook panics so a broken hook cannot abort a scan
	dispatcher.Use(&hooks.RecoveryMiddleware{Logger: logger})

	// Event logging is only useful in debug mode; failures are already
	// printed by the warning hook below
	if cfg.Logging.Level == "debug" {
		dispatcher.Register(builtin.NewLoggingHook(logger))
	}

	if cfg.Hooks.Audit.Enabled {
		auditOpts := []builtin.AuditOption{
			builtin.WithAuditRotation(cfg.Hooks.Audit.MaxSizeMB, cfg.Hooks.Audit.MaxBackups),
		}
		if cfg.Hooks.Audit.LogFile != "" {
			auditOpts = append(auditOpts, builtin.WithAuditFile(cfg.Hooks.Audit.LogFile))
		}
		dispatcher.Register(builtin.NewAuditHook(auditOpts...))
	}

	dispatcher.Register(newUnmatchedFailureHook(warnings))
	return dispatcher
}

// newUnmatchedFailureHook prints accounts whose search failed without any
// match. Those accounts are left out of the final results.
func newUnmatchedFailureHook(p *output.Printer) core.Hook {
	return hooks.NewBaseHook("unmatched-failures", []core.EventType{core.EventAccountFailed}, 50,
		func(_ context.Context, event core.Event) error {
			data, ok := event.Data().(core.AccountEventData)
			if !ok || data.Roles > 0 || data.Policies > 0 {
				return nil
			}
			p.Warning(data.AccountName, data.AccountID, data.Error)
			return nil
		})
}

// cleanupDispatcher closes any resources held by hooks.
func cleanupDispatcher(dispatcher *hooks.Dispatcher) {
	for _, hook := range dispatcher.Hooks() {
		if closer, ok := hook.(io.Closer); ok {
			_ = closer.Close()
		}
	}
}

func isJSON(cfg *config.Config) bool {
	return strings.EqualFold(cfg.Output.Format, config.FormatJSON)
}
