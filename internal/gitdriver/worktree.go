package gitdriver

import (
	"context"
	"strings"
)

// CreateWorktree creates branch at HEAD if it doesn't already exist, then
// adds a worktree at path pointing to it.
func (d *Driver) CreateWorktree(ctx context.Context, repo, branch, path string) error {
	return d.withRepoLock(repo, func() error {
		if !d.branchExistsLocked(ctx, repo, branch) {
			if _, err := d.run(ctx, "branch", repo, "branch", branch); err != nil {
				if ge, ok := err.(*GitError); ok {
					ge.Code = CodeWorktreeFailed
					return ge
				}
				return err
			}
		}
		if _, err := d.run(ctx, "worktree-add", repo, "worktree", "add", path, branch); err != nil {
			if ge, ok := err.(*GitError); ok {
				ge.Code = CodeWorktreeFailed
				return ge
			}
			return err
		}
		return nil
	})
}

// CreateWorktreeFromBase creates branch from baseBranch if it doesn't already
// exist — checking out baseBranch transiently in the main working tree,
// branching, then restoring the previous HEAD — and adds a worktree at path
// pointing to it. Idempotent: if path
// already exists as a registered worktree, this is a no-op.
func (d *Driver) CreateWorktreeFromBase(ctx context.Context, repo, branch, baseBranch, path string) error {
	return d.withRepoLock(repo, func() error {
		for _, wt := range parseWorktreeListLocked(d, ctx, repo) {
			if wt.Path == path {
				return nil
			}
		}

		if !d.branchExistsLocked(ctx, repo, branch) {
			prevOut, err := d.run(ctx, "current-branch", repo, "rev-parse", "--abbrev-ref", "HEAD")
			if err != nil {
				return err
			}
			prev := strings.TrimSpace(prevOut)

			needsSwitch := prev != baseBranch
			if needsSwitch {
				if _, err := d.run(ctx, "checkout", repo, "checkout", baseBranch); err != nil {
					return err
				}
			}

			_, branchErr := d.run(ctx, "branch", repo, "branch", branch)

			if needsSwitch {
				if _, err := d.run(ctx, "checkout", repo, "checkout", prev); err != nil && branchErr == nil {
					return err
				}
			}
			if branchErr != nil {
				if ge, ok := branchErr.(*GitError); ok {
					ge.Code = CodeWorktreeFailed
				}
				return branchErr
			}
		}

		if _, err := d.run(ctx, "worktree-add", repo, "worktree", "add", path, branch); err != nil {
			if ge, ok := err.(*GitError); ok {
				ge.Code = CodeWorktreeFailed
				return ge
			}
			return err
		}
		return nil
	})
}

func parseWorktreeListLocked(d *Driver, ctx context.Context, repo string) []Worktree {
	out, err := d.run(ctx, "worktree-list", repo, "worktree", "list", "--porcelain")
	if err != nil {
		return nil
	}
	return parseWorktreeList(out)
}

// branchExistsLocked must be called while holding the repo lock.
func (d *Driver) branchExistsLocked(ctx context.Context, repo, branch string) bool {
	_, err := d.run(ctx, "show-ref", repo, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// BranchExists reports whether branch exists locally in repo.
func (d *Driver) BranchExists(ctx context.Context, repo, branch string) bool {
	var exists bool
	_ = d.withRepoLock(repo, func() error {
		exists = d.branchExistsLocked(ctx, repo, branch)
		return nil
	})
	return exists
}

// RemoveWorktree removes the worktree at path (with --force when force is
// set), then prunes.
func (d *Driver) RemoveWorktree(ctx context.Context, repo, path string, force bool) error {
	return d.withRepoLock(repo, func() error {
		args := []string{"worktree", "remove"}
		if force {
			args = append(args, "--force")
		}
		args = append(args, path)
		if _, err := d.run(ctx, "worktree-remove", repo, args...); err != nil {
			if ge, ok := err.(*GitError); ok {
				ge.Code = CodeWorktreeFailed
				return ge
			}
			return err
		}
		if _, err := d.run(ctx, "worktree-prune", repo, "worktree", "prune"); err != nil {
			return err
		}
		return nil
	})
}

// ListWorktrees parses `git worktree list --porcelain` output, distinguishing
// the bare (main repository) entry.
func (d *Driver) ListWorktrees(ctx context.Context, repo string) ([]Worktree, error) {
	var worktrees []Worktree
	err := d.withRepoLock(repo, func() error {
		out, err := d.run(ctx, "worktree-list", repo, "worktree", "list", "--porcelain")
		if err != nil {
			return err
		}
		worktrees = parseWorktreeList(out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return worktrees, nil
}

func parseWorktreeList(out string) []Worktree {
	var result []Worktree
	var cur Worktree
	flush := func() {
		if cur.Path != "" {
			result = append(result, cur)
		}
		cur = Worktree{}
	}
	for _, line := range strings.Split(out, "\n") {
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			cur.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			cur.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = stripRemotePrefix(strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/"))
		case line == "bare":
			cur.Bare = true
		}
	}
	flush()
	return result
}

// IsBranchMerged reports whether branch is fully merged into baseBranch.
func (d *Driver) IsBranchMerged(ctx context.Context, repo, branch, baseBranch string) bool {
	var merged bool
	_ = d.withRepoLock(repo, func() error {
		out, err := d.run(ctx, "branch-merged", repo, "branch", "--merged", baseBranch, "--format=%(refname:short)")
		if err != nil {
			return nil
		}
		for _, line := range strings.Split(out, "\n") {
			if strings.TrimSpace(line) == branch {
				merged = true
				return nil
			}
		}
		return nil
	})
	return merged
}

// DeleteBranch removes branch from the repository.
func (d *Driver) DeleteBranch(ctx context.Context, repo, branch string, force bool) error {
	return d.withRepoLock(repo, func() error {
		flag := "-d"
		if force {
			flag = "-D"
		}
		_, err := d.run(ctx, "branch-delete", repo, "branch", flag, branch)
		return err
	})
}

// DefaultRemoteURL returns the `origin` remote URL for repo, or "" if none.
func (d *Driver) DefaultRemoteURL(ctx context.Context, repo string) string {
	var url string
	_ = d.withRepoLock(repo, func() error {
		out, err := d.run(ctx, "remote-url", repo, "remote", "get-url", "origin")
		if err == nil {
			url = strings.TrimSpace(out)
		}
		return nil
	})
	return url
}

// SetRemoteURL rewires `origin` in worktreePath to point at url (used for
// remote rebinding when the parent repo is a super-project).
func (d *Driver) SetRemoteURL(ctx context.Context, worktreePath, url string) error {
	return d.withRepoLock(worktreePath, func() error {
		_, err := d.run(ctx, "remote-set-url", worktreePath, "remote", "set-url", "origin", url)
		return err
	})
}

// SuperprojectRemoteURL returns the remote URL of the enclosing super-project
// if repo is a Git submodule/sub-repo, or "" if it is not nested.
func (d *Driver) SuperprojectRemoteURL(ctx context.Context, repo string) string {
	var topLevel string
	_ = d.withRepoLock(repo, func() error {
		out, err := d.run(ctx, "superproject", repo, "rev-parse", "--show-superproject-working-tree")
		if err == nil {
			topLevel = strings.TrimSpace(out)
		}
		return nil
	})
	if topLevel == "" {
		return ""
	}
	return d.DefaultRemoteURL(ctx, topLevel)
}

// CurrentBranch returns the branch checked out in repo.
func (d *Driver) CurrentBranch(ctx context.Context, repo string) (string, error) {
	var branch string
	err := d.withRepoLock(repo, func() error {
		out, err := d.run(ctx, "current-branch", repo, "rev-parse", "--abbrev-ref", "HEAD")
		if err != nil {
			return err
		}
		branch = strings.TrimSpace(out)
		return nil
	})
	return branch, err
}

// CheckoutTransient checks out branch, runs fn, then restores the previous
// HEAD regardless of fn's outcome.
func (d *Driver) CheckoutTransient(ctx context.Context, repo, branch string, fn func() error) error {
	return d.withRepoLock(repo, func() error {
		prevOut, err := d.run(ctx, "current-branch", repo, "rev-parse", "--abbrev-ref", "HEAD")
		if err != nil {
			return err
		}
		prev := strings.TrimSpace(prevOut)

		if _, err := d.run(ctx, "checkout", repo, "checkout", branch); err != nil {
			return err
		}

		fnErr := fn()

		if _, err := d.run(ctx, "checkout", repo, "checkout", prev); err != nil {
			if fnErr == nil {
				return err
			}
		}
		return fnErr
	})
}
