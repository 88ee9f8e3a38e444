package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/common/result"
	"github.com/sekondbrain/cs-devops-agent/internal/lifecycle"
)

func newSessionCmd(lc *lifecycle.Lifecycle, log *logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage agent sessions",
	}
	cmd.AddCommand(newSessionCreateCmd(lc, log))
	cmd.AddCommand(newSessionCloseCmd(lc, log))
	cmd.AddCommand(newSessionRestartCmd(lc, log))
	cmd.AddCommand(newSessionListCmd(lc, log))
	return cmd
}

func newSessionCreateCmd(lc *lifecycle.Lifecycle, log *logger.Logger) *cobra.Command {
	var req lifecycle.CreateRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Provision a new session: worktree, toolkit artifacts, watcher, rebase schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := lc.Create(cmd.Context(), req)
			if err != nil {
				return printEnvelope(cmd, result.FailErr[any](lifecycle.TranslateError(err), err, nil))
			}
			return printEnvelope(cmd, result.Ok[any](sess))
		},
	}
	cmd.Flags().StringVar(&req.AgentType, "agent-type", "claude", "coding agent type")
	cmd.Flags().StringVar(&req.Task, "task", "", "human-readable task description")
	cmd.Flags().StringVar(&req.RepoPath, "repo", "", "path to the Git repository (required)")
	cmd.Flags().StringVar(&req.BaseBranch, "base-branch", "", "base branch to fork from (defaults to worktree.defaultBranch)")
	cmd.Flags().Float64Var(&req.RebaseIntervalHours, "rebase-interval-hours", 0, "periodic rebase interval in hours, 0 disables")
	cmd.Flags().IntVar(&req.AgentPID, "agent-pid", 0, "PID of the agent process, if known")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}

func newSessionCloseCmd(lc *lifecycle.Lifecycle, log *logger.Logger) *cobra.Command {
	var mergeTarget string
	cmd := &cobra.Command{
		Use:   "close <session-id>",
		Short: "Stop watchers/rebase, release locks, remove the worktree, delete session artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := lc.Close(cmd.Context(), args[0], mergeTarget); err != nil {
				return printEnvelope(cmd, result.FailErr[any](lifecycle.TranslateError(err), err, nil))
			}
			return printEnvelope(cmd, result.Ok[any](map[string]string{"sessionId": args[0]}))
		},
	}
	cmd.Flags().StringVar(&mergeTarget, "merge-into", "", "merge the session branch into this ref before removing the worktree")
	return cmd
}

func newSessionRestartCmd(lc *lifecycle.Lifecycle, log *logger.Logger) *cobra.Command {
	var req lifecycle.RestartRequest
	cmd := &cobra.Command{
		Use:   "restart <session-id>",
		Short: "Consolidate uncommitted work, close the session, and recreate it with a new id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.SessionID = args[0]
			sess, err := lc.Restart(cmd.Context(), req)
			if err != nil {
				return printEnvelope(cmd, result.FailErr[any](lifecycle.TranslateError(err), err, nil))
			}
			return printEnvelope(cmd, result.Ok[any](sess))
		},
	}
	return cmd
}

func newSessionListCmd(lc *lifecycle.Lifecycle, log *logger.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions := lc.ListSessions()
			return printEnvelope(cmd, result.Ok[any](sessions))
		},
	}
}

func printEnvelope(cmd *cobra.Command, env interface{}) error {
	encoded, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}
