package cli

import (
	"github.com/spf13/cobra"

	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/common/result"
	"github.com/sekondbrain/cs-devops-agent/internal/lifecycle"
)

func newRebaseCmd(lc *lifecycle.Lifecycle, log *logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebase",
		Short: "Drive the periodic per-session rebase schedule",
	}
	cmd.AddCommand(newRebaseRunCmd(lc, log))
	cmd.AddCommand(newRebasePauseCmd(lc, log))
	cmd.AddCommand(newRebaseResumeCmd(lc, log))
	return cmd
}

func newRebaseRunCmd(lc *lifecycle.Lifecycle, log *logger.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "run <session-id>",
		Short: "Force an immediate rebase cycle for a session, outside its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, err := lc.Rebase().ForceCheck(cmd.Context(), args[0])
			if err != nil {
				return printEnvelope(cmd, result.FailErr[any](lifecycle.TranslateError(err), err, nil))
			}
			return printEnvelope(cmd, result.Ok[any](outcome))
		},
	}
}

func newRebasePauseCmd(lc *lifecycle.Lifecycle, log *logger.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <session-id>",
		Short: "Pause a session's scheduled rebase cycles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := lc.Rebase().Pause(args[0]); err != nil {
				return printEnvelope(cmd, result.FailErr[any](lifecycle.TranslateError(err), err, nil))
			}
			return printEnvelope(cmd, result.Ok[any](map[string]string{"sessionId": args[0]}))
		},
	}
}

func newRebaseResumeCmd(lc *lifecycle.Lifecycle, log *logger.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume a session's scheduled rebase cycles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := lc.Rebase().Resume(args[0]); err != nil {
				return printEnvelope(cmd, result.FailErr[any](lifecycle.TranslateError(err), err, nil))
			}
			return printEnvelope(cmd, result.Ok[any](map[string]string{"sessionId": args[0]}))
		},
	}
}
