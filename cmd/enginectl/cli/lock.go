package cli

import (
	"github.com/spf13/cobra"

	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/common/result"
	"github.com/sekondbrain/cs-devops-agent/internal/lifecycle"
	"github.com/sekondbrain/cs-devops-agent/internal/lock"
)

func newLockCmd(lc *lifecycle.Lifecycle, log *logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect and manage the file-edit declaration registry",
	}
	cmd.AddCommand(newLockDeclareCmd(lc, log))
	cmd.AddCommand(newLockCheckCmd(lc, log))
	cmd.AddCommand(newLockReleaseCmd(lc, log))
	return cmd
}

func newLockDeclareCmd(lc *lifecycle.Lifecycle, log *logger.Logger) *cobra.Command {
	var (
		repoPath  string
		sessionID string
		agent     string
		files     []string
		operation string
		reason    string
		estSec    int
	)
	cmd := &cobra.Command{
		Use:   "declare",
		Short: "Declare files as being edited by a session, failing on conflict",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := lc.Lock().RegistryFor(repoPath)
			if err != nil {
				return printEnvelope(cmd, result.FailErr[any](lifecycle.TranslateError(err), err, nil))
			}
			err = reg.Declare(cmd.Context(), sessionID, agent, files, lock.Operation(operation), reason, estSec)
			if err != nil {
				return printEnvelope(cmd, result.FailErr[any](lifecycle.TranslateError(err), err, nil))
			}
			return printEnvelope(cmd, result.Ok[any](map[string]interface{}{"sessionId": sessionID, "files": files}))
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", "", "repository path (required)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (required)")
	cmd.Flags().StringVar(&agent, "agent", "", "agent identity (required)")
	cmd.Flags().StringSliceVar(&files, "file", nil, "repo-relative file path, repeatable")
	cmd.Flags().StringVar(&operation, "operation", "edit", "edit|create|delete")
	cmd.Flags().StringVar(&reason, "reason", "", "human-readable reason")
	cmd.Flags().IntVar(&estSec, "estimated-duration-sec", 0, "estimated duration in seconds")
	_ = cmd.MarkFlagRequired("repo")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func newLockCheckCmd(lc *lifecycle.Lifecycle, log *logger.Logger) *cobra.Command {
	var (
		repoPath string
		files    []string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report live declarations covering the given files, without modifying state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := lc.Lock().RegistryFor(repoPath)
			if err != nil {
				return printEnvelope(cmd, result.FailErr[any](lifecycle.TranslateError(err), err, nil))
			}
			conflicts, err := reg.Check(files)
			if err != nil {
				return printEnvelope(cmd, result.FailErr[any](lifecycle.TranslateError(err), err, nil))
			}
			return printEnvelope(cmd, result.Ok[any](conflicts))
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", "", "repository path (required)")
	cmd.Flags().StringSliceVar(&files, "file", nil, "repo-relative file path, repeatable")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}

func newLockReleaseCmd(lc *lifecycle.Lifecycle, log *logger.Logger) *cobra.Command {
	var repoPath string
	cmd := &cobra.Command{
		Use:   "release <session-id>",
		Short: "Move every live declaration owned by a session to completed-edits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := lc.Lock().RegistryFor(repoPath)
			if err != nil {
				return printEnvelope(cmd, result.FailErr[any](lifecycle.TranslateError(err), err, nil))
			}
			if err := reg.Release(cmd.Context(), args[0]); err != nil {
				return printEnvelope(cmd, result.FailErr[any](lifecycle.TranslateError(err), err, nil))
			}
			return printEnvelope(cmd, result.Ok[any](map[string]string{"sessionId": args[0]}))
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", "", "repository path (required)")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}
