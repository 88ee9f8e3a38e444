package lifecycle

import (
	"errors"

	"github.com/sekondbrain/cs-devops-agent/internal/common/result"
	"github.com/sekondbrain/cs-devops-agent/internal/gitdriver"
	"github.com/sekondbrain/cs-devops-agent/internal/lock"
	"github.com/sekondbrain/cs-devops-agent/internal/session"
	"github.com/sekondbrain/cs-devops-agent/internal/worktree"
)

// TranslateError maps an error from any collaborator package to the
// stable result.Code taxonomy named in spec §6/§7, so callers (enginectl,
// or any future HTTP surface) switch on a code rather than parsing error
// text.
func TranslateError(err error) result.Code {
	if err == nil {
		return result.CodeUnknown
	}

	var gitErr *gitdriver.GitError
	if errors.As(err, &gitErr) {
		switch gitErr.Code {
		case gitdriver.CodeCommitFailed:
			return result.CodeGitCommitFailed
		case gitdriver.CodePushFailed:
			return result.CodeGitPushFailed
		case gitdriver.CodeConflictsDetected:
			return result.CodeGitRebaseConflict
		case gitdriver.CodeFetchFailed, gitdriver.CodeUnrelatedHistories:
			return result.CodeGitFetchFailed
		case gitdriver.CodeWorktreeFailed:
			return result.CodeGitWorktreeFailed
		case gitdriver.CodeTimeout:
			return result.CodeGitTimeout
		default:
			return result.CodeGitCommitFailed
		}
	}

	var conflictErr *lock.ConflictError
	if errors.As(err, &conflictErr) {
		return result.CodeLockConflict
	}

	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, ErrSessionNotFound):
		return result.CodeNotFound
	case errors.Is(err, worktree.ErrWorktreeNotFound):
		return result.CodeNotFound
	case errors.Is(err, worktree.ErrInvalidBaseBranch), errors.Is(err, worktree.ErrRepoNotGit), errors.Is(err, ErrRepoInvalid):
		return result.CodeInvalidRepo
	case errors.Is(err, lock.ErrUnknownState):
		return result.CodeCoordinationUnavailable
	default:
		return result.CodeUnknown
	}
}
