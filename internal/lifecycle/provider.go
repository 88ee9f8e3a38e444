package lifecycle

import (
	"github.com/sekondbrain/cs-devops-agent/internal/activity"
	"github.com/sekondbrain/cs-devops-agent/internal/commit"
	"github.com/sekondbrain/cs-devops-agent/internal/common/config"
	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/events/bus"
	"github.com/sekondbrain/cs-devops-agent/internal/gitdriver"
	"github.com/sekondbrain/cs-devops-agent/internal/lock"
	"github.com/sekondbrain/cs-devops-agent/internal/rebase"
	"github.com/sekondbrain/cs-devops-agent/internal/recovery"
	"github.com/sekondbrain/cs-devops-agent/internal/session"
	"github.com/sekondbrain/cs-devops-agent/internal/watch"
	"github.com/sekondbrain/cs-devops-agent/internal/worktree"
)

// Provide wires a Lifecycle from every already-provided collaborator. It
// performs no I/O itself; callers (cmd/enginectl) are expected to have
// already called each package's own Provide.
func Provide(
	cfg *config.Config,
	driver *gitdriver.Driver,
	sessions *session.Store,
	worktrees *worktree.Manager,
	watchers *watch.Pool,
	commits *commit.Pipeline,
	rebases *rebase.Supervisor,
	recoveryScanner *recovery.Scanner,
	activitySvc *activity.Service,
	locks *lock.Router,
	eb bus.EventBus,
	log *logger.Logger,
) *Lifecycle {
	return New(cfg, driver, sessions, worktrees, watchers, commits, rebases, recoveryScanner, activitySvc, locks, eb, log)
}
