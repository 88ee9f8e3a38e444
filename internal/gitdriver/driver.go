package gitdriver

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
)

// DefaultTimeout bounds every git invocation.
const DefaultTimeout = 30 * time.Second

// diffByteCap truncates per-file diffs returned by CommitDiff.
const diffByteCap = 64 * 1024

// repoLock serializes git invocations for one repoPath so concurrent worktree
// adds/removes (and any other operation) never interleave.
type repoLock struct {
	mu       sync.Mutex
	refCount int
}

// Driver executes git commands against a working directory, one invocation
// at a time per repository path.
type Driver struct {
	logger  *logger.Logger
	timeout time.Duration

	locksMu sync.Mutex
	locks   map[string]*repoLock

	sf singleflight.Group
}

// New creates a Driver. log may be nil, in which case the process default is used.
func New(log *logger.Logger) *Driver {
	if log == nil {
		log = logger.Default()
	}
	return &Driver{
		logger:  log.WithFields(zap.String("component", "git-driver")),
		timeout: DefaultTimeout,
		locks:   make(map[string]*repoLock),
	}
}

func (d *Driver) lockFor(repoPath string) *repoLock {
	d.locksMu.Lock()
	defer d.locksMu.Unlock()
	l, ok := d.locks[repoPath]
	if !ok {
		l = &repoLock{}
		d.locks[repoPath] = l
	}
	l.refCount++
	return l
}

func (d *Driver) unlockFor(repoPath string, l *repoLock) {
	l.mu.Unlock()
	d.locksMu.Lock()
	l.refCount--
	if l.refCount <= 0 {
		delete(d.locks, repoPath)
	}
	d.locksMu.Unlock()
}

// withRepoLock serializes the given operation for repoPath.
func (d *Driver) withRepoLock(repoPath string, fn func() error) error {
	l := d.lockFor(repoPath)
	l.mu.Lock()
	defer d.unlockFor(repoPath, l)
	return fn()
}

// run executes `git <args...>` in cwd and returns its stdout; on failure the
// trimmed stderr is carried in the returned GitError.
// It never retries silently and always respects ctx's deadline,
// falling back to DefaultTimeout if ctx carries none.
func (d *Driver) run(ctx context.Context, op, cwd string, args ...string) (string, error) {
	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	d.logger.Debug("running git command", zap.String("op", op), zap.Strings("args", args), zap.String("cwd", cwd))

	err := cmd.Run()
	out := stdout.String()
	errText := strings.TrimSpace(stderr.String())

	if runCtx.Err() == context.DeadlineExceeded {
		return out, newError(op, CodeTimeout, errText, runCtx.Err())
	}
	if err != nil {
		code := classifyStderr(errText)
		return out, newError(op, code, errText, err)
	}
	return out, nil
}

// Status parses `git status --porcelain=v1 -b` and computes ahead/behind
// against the origin tracking branch when one is configured.
func (d *Driver) Status(ctx context.Context, cwd string) (*StatusResult, error) {
	v, err, _ := d.sf.Do("status:"+cwd, func() (interface{}, error) {
		var result *StatusResult
		lockErr := d.withRepoLock(cwd, func() error {
			out, err := d.run(ctx, "status", cwd, "status", "--porcelain=v1", "-b")
			if err != nil {
				return err
			}
			result = parseStatus(out)
			return nil
		})
		if lockErr != nil {
			return nil, lockErr
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*StatusResult), nil
}

// Commit stages all changes and commits them with the given message.
func (d *Driver) Commit(ctx context.Context, cwd, message string) (*CommitRecord, error) {
	var rec *CommitRecord
	err := d.withRepoLock(cwd, func() error {
		if _, err := d.run(ctx, "add", cwd, "add", "-A"); err != nil {
			return err
		}
		if _, err := d.run(ctx, "commit", cwd, "commit", "-m", message); err != nil {
			return &GitError{Op: "commit", Code: CodeCommitFailed, Stderr: err.Error(), Cause: err}
		}
		r, err := d.describeHead(ctx, cwd, message)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// describeHead gathers hash/short-hash/author/date for HEAD after a commit.
func (d *Driver) describeHead(ctx context.Context, cwd, message string) (*CommitRecord, error) {
	hashOut, err := d.run(ctx, "rev-parse", cwd, "rev-parse", "HEAD")
	if err != nil {
		return nil, err
	}
	shortOut, err := d.run(ctx, "rev-parse", cwd, "rev-parse", "--short", "HEAD")
	if err != nil {
		return nil, err
	}
	metaOut, err := d.run(ctx, "show", cwd, "show", "-s", "--format=%an|%aI", "HEAD")
	if err != nil {
		return nil, err
	}
	author, dateStr := splitAuthorDate(metaOut)
	date, _ := time.Parse(time.RFC3339, dateStr)

	statOut, _ := d.run(ctx, "show", cwd, "show", "--shortstat", "--format=", "HEAD")
	files, adds, dels := parseShortstat(statOut)

	return &CommitRecord{
		Hash:         strings.TrimSpace(hashOut),
		ShortHash:    strings.TrimSpace(shortOut),
		Message:      message,
		Author:       author,
		Date:         date,
		FilesChanged: files,
		Additions:    adds,
		Deletions:    dels,
	}, nil
}

func splitAuthorDate(line string) (author, date string) {
	line = strings.TrimSpace(line)
	idx := strings.LastIndex(line, "|")
	if idx < 0 {
		return line, ""
	}
	return line[:idx], line[idx+1:]
}

// Push runs `git push -u origin <current-branch>`.
func (d *Driver) Push(ctx context.Context, cwd string) error {
	return d.withRepoLock(cwd, func() error {
		branchOut, err := d.run(ctx, "branch", cwd, "rev-parse", "--abbrev-ref", "HEAD")
		if err != nil {
			return err
		}
		branch := strings.TrimSpace(branchOut)
		_, err = d.run(ctx, "push", cwd, "push", "-u", "origin", branch)
		if err != nil {
			if ge, ok := err.(*GitError); ok {
				ge.Code = CodePushFailed
				return ge
			}
			return &GitError{Op: "push", Code: CodePushFailed, Cause: err}
		}
		return nil
	})
}

// StashPush stashes working tree changes including untracked files. Returns
// false when there was nothing to stash.
func (d *Driver) StashPush(ctx context.Context, cwd string) (bool, error) {
	var stashed bool
	err := d.withRepoLock(cwd, func() error {
		out, err := d.run(ctx, "stash", cwd, "stash", "push", "--include-untracked", "-m", "engine-rebase-autostash")
		if err != nil {
			return err
		}
		stashed = !strings.Contains(out, "No local changes to save")
		return nil
	})
	return stashed, err
}

// StashPop pops the most recent stash.
func (d *Driver) StashPop(ctx context.Context, cwd string) error {
	return d.withRepoLock(cwd, func() error {
		_, err := d.run(ctx, "stash-pop", cwd, "stash", "pop")
		return err
	})
}
