package cli

import (
	"github.com/spf13/cobra"

	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/common/result"
	"github.com/sekondbrain/cs-devops-agent/internal/lifecycle"
)

func newRecoverCmd(lc *lifecycle.Lifecycle, log *logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Run the crash-recovery sweep",
	}
	cmd.AddCommand(newRecoverScanCmd(lc, log))
	return cmd
}

func newRecoverScanCmd(lc *lifecycle.Lifecycle, log *logger.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Replay unprocessed commits for every stored session and report orphaned session descriptors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			orphans, err := lc.Recover(cmd.Context())
			if err != nil {
				return printEnvelope(cmd, result.FailErr[any](lifecycle.TranslateError(err), err, nil))
			}
			return printEnvelope(cmd, result.Ok[any](orphans))
		},
	}
}
