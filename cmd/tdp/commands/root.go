// Package commands implements the thin tdp CLI: one cobra subcommand
// per entry in spec.md §6's command surface, each wiring flags to the
// core packages and printing results. No interactive editors, no
// colorized output, no shell completion — spec.md §1 keeps all of that
// out of scope.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	jsonOutput bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	root := newRootCommand(version, commit, buildDate)
	return root.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	root := &cobra.Command{
		Use:   "tdp",
		Short: "TDP-lib - Hadoop-style cluster deployment manager",
		Long: `tdp drives a Hadoop-style cluster's deployments: it compiles a DAG of
services and components into an ordered plan, persists it, and walks it
one operation at a time against an external executor.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "accepted but not read by any subcommand; output is always plain text")

	root.AddCommand(newInitCommand())
	root.AddCommand(newBrowseCommand())
	root.AddCommand(newOpsCommand())
	root.AddCommand(newDAGCommand())
	root.AddCommand(newPlanCommand())
	root.AddCommand(newDeployCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newVarsCommand())
	root.AddCommand(newDefaultDiffCommand())
	root.AddCommand(newServiceVersionsCommand())
	root.AddCommand(newDangerFixRunningCommand())

	return root
}
