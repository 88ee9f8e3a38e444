// Package cli implements enginectl's cobra command tree: session,
// lock, rebase, and recover subcommands over a wired Lifecycle.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/lifecycle"
)

// NewRootCmd builds the enginectl root command, wiring every subcommand to
// the already-assembled Lifecycle.
func NewRootCmd(lc *lifecycle.Lifecycle, log *logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "enginectl",
		Short:         "Operator CLI for the coding-agent coordination engine",
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newSessionCmd(lc, log))
	cmd.AddCommand(newLockCmd(lc, log))
	cmd.AddCommand(newRebaseCmd(lc, log))
	cmd.AddCommand(newRecoverCmd(lc, log))

	return cmd
}
