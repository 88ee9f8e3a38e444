package gitdriver

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Rebase runs `git pull --rebase origin <base>`. On failure it attempts
// `rebase --abort` and reports a classified error; if abort itself fails
// the failure is ignored.
func (d *Driver) Rebase(ctx context.Context, repo, base string) (*RebaseOutcome, error) {
	var outcome *RebaseOutcome
	err := d.withRepoLock(repo, func() error {
		out, runErr := d.run(ctx, "rebase", repo, "pull", "--rebase", "origin", base)
		if runErr == nil {
			outcome = &RebaseOutcome{OK: true, Message: strings.TrimSpace(out)}
			return nil
		}

		ge, _ := runErr.(*GitError)
		if ge != nil && ge.Code == CodeFetchFailed {
			ge.Cause = ErrBaseBranchMissing
			if _, abortErr := d.run(ctx, "rebase-abort", repo, "rebase", "--abort"); abortErr != nil {
				d.logger.Debug("rebase --abort failed after fetch failure", zap.Error(abortErr))
			}
			return ge
		}

		if _, abortErr := d.run(ctx, "rebase-abort", repo, "rebase", "--abort"); abortErr != nil {
			d.logger.Debug("rebase --abort failed, ignoring", zap.Error(abortErr))
		}
		if ge != nil {
			ge.Code = CodeConflictsDetected
			return ge
		}
		return runErr
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// Merge checks out targetBranch in mainRepo, merges sourceBranch
// non-fast-forward with a fixed message, and pushes.
func (d *Driver) Merge(ctx context.Context, mainRepo, sourceBranch, targetBranch string) error {
	return d.withRepoLock(mainRepo, func() error {
		if _, err := d.run(ctx, "checkout", mainRepo, "checkout", targetBranch); err != nil {
			return err
		}
		message := "Merge branch '" + sourceBranch + "' into " + targetBranch
		if _, err := d.run(ctx, "merge", mainRepo, "merge", "--no-ff", "-m", message, sourceBranch); err != nil {
			return err
		}
		if _, err := d.run(ctx, "push", mainRepo, "push", "origin", targetBranch); err != nil {
			if ge, ok := err.(*GitError); ok {
				ge.Code = CodePushFailed
				return ge
			}
			return err
		}
		return nil
	})
}
