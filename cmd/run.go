package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	awsfactory "github.com/keanuharrell/catrole/internal/aws"
	"github.com/keanuharrell/catrole/internal/config"
	"github.com/keanuharrell/catrole/internal/core"
	"github.com/keanuharrell/catrole/internal/output"
	"github.com/keanuharrell/catrole/internal/scanner"
	"github.com/keanuharrell/catrole/internal/search"
)

// target is the single role or policy inspected in account and ARN modes.
type target struct {
	kind    awsfactory.EntityKind
	account string
	name    string // scan identifier: role name, policy name or policy ARN
	label   string // display name used in messages and file names
}

func resolveTarget(m mode, f rootFlags) (target, error) {
	switch m {
	case modeRole:
		role := strings.TrimSpace(f.role)
		return target{kind: awsfactory.EntityRole, account: strings.TrimSpace(f.account), name: role, label: role}, nil
	case modePolicy:
		policy := strings.TrimSpace(f.policy)
		return target{kind: awsfactory.EntityPolicy, account: strings.TrimSpace(f.account), name: policy, label: policy}, nil
	case modeARN:
		ref, err := awsfactory.ParseEntityARN(strings.TrimSpace(f.arn))
		if err != nil {
			return target{}, err
		}
		return target{kind: ref.Kind, account: ref.AccountID, name: ref.ScanTarget(), label: ref.Name}, nil
	default:
		return target{}, fmt.Errorf("mode %d has no single target", m)
	}
}

// run loads configuration, wires the AWS clients and hooks, and executes
// the selected mode.
func run(cmd *cobra.Command, m mode, f rootFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	assumeRole, err := cfg.ResolveAssumeRole(f.assumeRole)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}

	dispatcher := createDispatcher(cfg, logger, output.NewPrinter(stderr, color.NoColor))
	defer cleanupDispatcher(dispatcher)

	awsCfg := cfg.AWS.ToCore()
	awsCfg.Debug = f.verbose
	factory, err := awsfactory.NewClientFactory(ctx, awsCfg, awsfactory.WithSDKLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to initialize AWS: %w", err)
	}
	broker := factory.Broker()

	if m == modeSearch {
		coordinator := search.New(broker, factory.Organization(),
			func(creds core.Credentials) search.AccountIAM { return factory.IAM(creds) },
			search.WithDispatcher(dispatcher),
			search.WithLogger(logger),
		)
		req := search.Request{
			Pattern:   strings.TrimSpace(f.search),
			RoleName:  assumeRole,
			AccountID: strings.TrimSpace(f.account),
			Action:    strings.TrimSpace(f.action),
		}
		return runSearch(ctx, coordinator, req, cfg, stdout, stderr)
	}

	t, err := resolveTarget(m, f)
	if err != nil {
		return err
	}
	creds, err := broker.AssumeRole(ctx, t.account, assumeRole)
	if err != nil {
		return err
	}
	sc := scanner.New(factory.IAM(creds), scanner.WithAccountID(t.account), scanner.WithDispatcher(dispatcher))
	return runScan(ctx, sc, t, strings.TrimSpace(f.action), cfg, stdout, stderr)
}

// =============================================================================
// Single Entity Scan
// =============================================================================

// entityScanner is the scan surface used in account and ARN modes.
type entityScanner interface {
	ScanRole(ctx context.Context, roleName string) ([]core.PermissionRow, error)
	ScanPolicy(ctx context.Context, identifier string) ([]core.PermissionRow, error)
	ScanRoleForAction(ctx context.Context, roleName, pattern string, cache scanner.PolicyCache) ([]core.PermissionRow, error)
}

func runScan(ctx context.Context, sc entityScanner, t target, action string, cfg *config.Config, stdout, stderr io.Writer) error {
	var (
		rows []core.PermissionRow
		err  error
	)
	switch {
	case t.kind == awsfactory.EntityPolicy:
		rows, err = sc.ScanPolicy(ctx, t.name)
	case action != "":
		rows, err = sc.ScanRoleForAction(ctx, t.name, action, scanner.PolicyCache{})
		if err != nil && len(rows) > 0 {
			output.NewPrinter(stderr, color.NoColor).Warning(t.label, t.account, err.Error())
			err = nil
		}
	default:
		rows, err = sc.ScanRole(ctx, t.name)
	}
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []core.PermissionRow{}
	}

	if isJSON(cfg) {
		if err := output.JSON(stdout, rows); err != nil {
			return err
		}
	} else {
		output.NewPrinter(stdout, color.NoColor).Permissions(rows, string(t.kind), t.label, t.account)
	}

	if cfg.Output.CSV && len(rows) > 0 {
		path, err := output.WriteRowsCSV(cfg.Output.Dir, string(t.kind), t.account, t.label, rows, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(stderr, "CSV saved to: %s\n", path)
	}
	return nil
}

// =============================================================================
// Organization Search
// =============================================================================

// accountSearcher is the search surface used in search mode.
type accountSearcher interface {
	SearchAllAccounts(ctx context.Context, req search.Request, progress search.ProgressFunc) ([]core.AccountSearchResult, error)
}

func runSearch(ctx context.Context, s accountSearcher, req search.Request, cfg *config.Config, stdout, stderr io.Writer) error {
	progress := func(name string, index, total int) {
		fmt.Fprintf(stderr, "[%d/%d] Scanning %s ...\n", index, total, name)
	}

	results, err := s.SearchAllAccounts(ctx, req, progress)
	if err != nil {
		return err
	}

	if isJSON(cfg) {
		if err := output.JSON(stdout, results); err != nil {
			return err
		}
	} else {
		p := output.NewPrinter(stdout, color.NoColor)
		p.Warnings(results)
		p.SearchResults(results, req.Pattern)
	}

	if cfg.Output.CSV {
		path, err := output.WriteSearchCSV(cfg.Output.Dir, req.Pattern, results, time.Now())
		if err != nil {
			return err
		}
		if path != "" {
			fmt.Fprintf(stderr, "CSV saved to: %s\n", path)
		}
	}
	return nil
}
