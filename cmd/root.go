package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	awsfactory "github.com/keanuharrell/catrole/internal/aws"
)

var (
	// Version is set via ldflags during build
	Version = "dev"
	// BuildTime is set via ldflags during build
	BuildTime = "unknown"

	// CLI flags
	flags rootFlags
)

// errNoMode is returned after printing help when no operating mode was given.
var errNoMode = errors.New("no operating mode selected")

// rootFlags holds every command-line flag of the root command.
type rootFlags struct {
	account    string
	role       string
	policy     string
	arn        string
	search     string
	action     string
	assumeRole string

	outputFormat string
	noCSV        bool
	awsProfile   string
	awsRegion    string
	configFile   string
	verbose      bool
}

var rootCmd = &cobra.Command{
	Use:   "catrole",
	Short: "Inspect IAM role and policy permissions across AWS accounts",
	Long: `catrole inspects IAM permissions in the accounts of an AWS organization.

It assumes a role in each target account and can:
- Flatten every permission of a role or managed policy into one table
- Search all active accounts for roles and policies matching a pattern
- Filter role permissions by an action pattern such as s3:Get*

Usage:
  catrole -a 123456789012 -r MyRole -R OrgReadOnly
  catrole -a 123456789012 -p MyPolicy -R OrgReadOnly
  catrole -A arn:aws:iam::123456789012:role/team/MyRole
  catrole -s '*lambda*' -x 'lambda:Invoke*'`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		mode, err := selectMode(flags)
		if err != nil {
			return err
		}
		if mode == modeNone {
			_ = cmd.Help()
			return errNoMode
		}
		return run(cmd, mode, flags)
	},
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		if !errors.Is(err, errNoMode) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for external use (e.g., man page generation)
func GetRootCommand() *cobra.Command {
	return rootCmd
}

// =============================================================================
// CLI Initialization
// =============================================================================

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&flags.account, "account", "a", "", "Target AWS account ID (12 digits)")
	f.StringVarP(&flags.role, "role", "r", "", "IAM role name to inspect")
	f.StringVarP(&flags.policy, "policy", "p", "", "Managed policy name or ARN to inspect")
	f.StringVarP(&flags.arn, "arn", "A", "", "Role or policy ARN to inspect")
	f.StringVarP(&flags.search, "search", "s", "", "Search roles and policies by name pattern across the organization")
	f.StringVarP(&flags.action, "action", "x", "", "Only keep permissions whose action matches this pattern")
	f.StringVarP(&flags.assumeRole, "assume-role", "R", "", "Role to assume in target accounts")

	f.StringVar(&flags.outputFormat, "output", "", "Output format (table|json)")
	f.BoolVar(&flags.noCSV, "no-csv", false, "Do not write a CSV export")
	f.StringVar(&flags.awsProfile, "profile", "", "AWS profile to use")
	f.StringVar(&flags.awsRegion, "region", "", "AWS region")
	f.StringVar(&flags.configFile, "config", "", "Config file path (optional)")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")

	_ = rootCmd.RegisterFlagCompletionFunc("profile", func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return awsfactory.ProfileCompletions(toComplete), cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("region", func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return awsfactory.RegionCompletions(toComplete), cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
}
