package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sekondbrain/cs-devops-agent/internal/activity"
	"github.com/sekondbrain/cs-devops-agent/internal/commit"
	"github.com/sekondbrain/cs-devops-agent/internal/common/config"
	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/events"
	"github.com/sekondbrain/cs-devops-agent/internal/events/bus"
	"github.com/sekondbrain/cs-devops-agent/internal/gitdriver"
	"github.com/sekondbrain/cs-devops-agent/internal/lock"
	"github.com/sekondbrain/cs-devops-agent/internal/rebase"
	"github.com/sekondbrain/cs-devops-agent/internal/recovery"
	"github.com/sekondbrain/cs-devops-agent/internal/session"
	"github.com/sekondbrain/cs-devops-agent/internal/watch"
	"github.com/sekondbrain/cs-devops-agent/internal/worktree"
)

const eventSource = "session-lifecycle"

// Lifecycle orchestrates every other component into the Create / Close /
// Restart / Recover / Heartbeat operations of spec §4.6. It owns no state
// of its own; SessionStore remains the single source of truth for session
// records, and the lock.Router it shares with WatcherPool owns the
// per-repoPath Registry cache.
type Lifecycle struct {
	cfg *config.Config

	sessions  *session.Store
	worktrees *worktree.Manager
	watchers  *watch.Pool
	commits   *commit.Pipeline
	rebases   *rebase.Supervisor
	recovery  *recovery.Scanner
	activity  *activity.Service
	locks     *lock.Router
	bus       bus.EventBus
	logger    *logger.Logger
	driver    *gitdriver.Driver
}

// New constructs a Lifecycle. All collaborators are required except bus,
// which may be nil.
func New(
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
	if log == nil {
		log = logger.Default()
	}
	return &Lifecycle{
		cfg:       cfg,
		driver:    driver,
		sessions:  sessions,
		worktrees: worktrees,
		watchers:  watchers,
		commits:   commits,
		rebases:   rebases,
		recovery:  recoveryScanner,
		activity:  activitySvc,
		locks:     locks,
		bus:       eb,
		logger:    log.WithFields(zap.String("component", eventSource)),
	}
}

// validateRepo checks that repoPath is a usable Git working tree with a
// resolvable current branch, per spec §4.6 Create preconditions.
func (l *Lifecycle) validateRepo(ctx context.Context, repoPath string) error {
	if _, err := l.driver.CurrentBranch(ctx, repoPath); err != nil {
		return ErrRepoInvalid
	}
	return nil
}

// Create provisions a brand new session end to end: toolkit tree, worktree,
// descriptors, SessionStore registration, watcher subscription, rebase
// schedule, and the reported/registered events. Spec §4.6 Create.
func (l *Lifecycle) Create(ctx context.Context, req CreateRequest) (*session.Session, error) {
	if err := l.validateRepo(ctx, req.RepoPath); err != nil {
		return nil, err
	}
	if err := l.ensureToolkit(req.RepoPath); err != nil {
		return nil, fmt.Errorf("initializing toolkit: %w", err)
	}

	sessionID := uuid.New().String()
	agentID := uuid.New().String()

	wt, err := l.worktrees.Create(ctx, worktree.CreateRequest{
		SessionID:  sessionID,
		RepoPath:   req.RepoPath,
		BaseBranch: req.BaseBranch,
	})
	if err != nil {
		return nil, err
	}

	sess := session.Session{
		SessionID:           sessionID,
		AgentID:             agentID,
		AgentType:           session.AgentType(req.AgentType),
		Task:                req.Task,
		RepoPath:            req.RepoPath,
		WorktreePath:        wt.Path,
		BranchName:          wt.Branch,
		BaseBranch:          wt.BaseBranch,
		Status:              session.StatusActive,
		AgentPID:            req.AgentPID,
		RebaseIntervalHours: req.RebaseIntervalHours,
		CreatedAt:           time.Now().UTC(),
	}
	sess.UpdatedAt = sess.CreatedAt

	if err := l.writeSessionArtifacts(sess); err != nil {
		_ = l.worktrees.Remove(ctx, sessionID, false)
		return nil, fmt.Errorf("writing session artifacts: %w", err)
	}

	if err := l.sessions.CreateSession(ctx, sess); err != nil {
		_ = l.worktrees.Remove(ctx, sessionID, false)
		return nil, err
	}
	if err := l.sessions.TouchRecentRepo(ctx, req.RepoPath, repoName(req.RepoPath)); err != nil {
		l.logger.Debug("failed to touch recent repo", zap.Error(err))
	}
	if err := l.sessions.RecomputeAgentCounts(ctx); err != nil {
		l.logger.Debug("failed to recompute agent counts", zap.Error(err))
	}

	if l.watchers != nil {
		err := l.watchers.Subscribe(sessionID, req.AgentType, wt.Path, func(evt watch.FileEvent) {
			l.onDropFile(sessionID, req.AgentType, req.RepoPath, wt.Path, evt)
		})
		if err != nil {
			l.logger.Warn("failed to subscribe watcher", zap.String("session", sessionID), zap.Error(err))
		}
	}

	interval := rebase.IntervalFromHours(req.RebaseIntervalHours)
	if interval <= 0 {
		interval = rebase.IntervalFromHours(l.cfg.Engine.RebaseDefaultHours)
	}
	if l.rebases != nil && interval > 0 {
		if err := l.rebases.Schedule(sessionID, req.RepoPath, wt.BaseBranch, interval); err != nil {
			l.logger.Warn("failed to schedule rebase watcher", zap.String("session", sessionID), zap.Error(err))
		}
	}

	l.publish(ctx, events.SessionReported, map[string]interface{}{"sessionId": sessionID, "status": string(sess.Status)})
	l.publish(ctx, events.AgentRegistered, map[string]interface{}{"agentId": agentID, "sessionId": sessionID})

	l.logger.Info("session created", zap.String("session", sessionID), zap.String("agent", agentID), zap.String("branch", wt.Branch))
	return &sess, nil
}

func (l *Lifecycle) onDropFile(sessionID, agentType, repoPath, worktreePath string, evt watch.FileEvent) {
	ctx := context.Background()
	dropPath := worktreePath + "/" + evt.RelativePath
	if l.commits == nil {
		return
	}
	l.commits.Schedule(ctx, commit.Request{
		SessionID:    sessionID,
		AgentType:    agentType,
		RepoPath:     worktreePath,
		DropFilePath: dropPath,
	})
}

// Close stops every running component for sessionID, optionally merges its
// branch, and removes its on-disk footprint. Spec §4.6 Close.
func (l *Lifecycle) Close(ctx context.Context, sessionID string, mergeTarget string) error {
	sess, err := l.sessions.GetSession(sessionID)
	if err != nil {
		return ErrSessionNotFound
	}

	if l.watchers != nil {
		if err := l.watchers.Unsubscribe(sessionID); err != nil {
			l.logger.Debug("unsubscribe failed during close", zap.String("session", sessionID), zap.Error(err))
		}
	}
	if l.rebases != nil {
		if err := l.rebases.Cancel(sessionID); err != nil {
			l.logger.Debug("rebase cancel failed during close", zap.String("session", sessionID), zap.Error(err))
		}
	}

	if l.locks != nil {
		if err := l.locks.Release(ctx, sessionID, sess.RepoPath); err != nil {
			l.logger.Warn("failed to release locks on close", zap.String("session", sessionID), zap.Error(err))
		}
	}

	if mergeTarget != "" {
		if err := l.driver.Merge(ctx, sess.RepoPath, sess.BranchName, mergeTarget); err != nil {
			l.logger.Warn("merge on close failed, leaving branch unmerged", zap.String("session", sessionID), zap.Error(err))
		}
	}

	deleteBranch := mergeTarget != ""
	if err := l.worktrees.Remove(ctx, sessionID, deleteBranch); err != nil {
		l.logger.Warn("failed to remove worktree on close", zap.String("session", sessionID), zap.Error(err))
	}

	l.removeSessionArtifacts(*sess)

	if err := l.sessions.DeleteSession(ctx, sessionID); err != nil {
		l.logger.Warn("failed to delete session record", zap.String("session", sessionID), zap.Error(err))
	}
	if err := l.sessions.ClearProcessingState(ctx, sessionID); err != nil {
		l.logger.Debug("failed to clear processing state", zap.Error(err))
	}
	if err := l.sessions.RecomputeAgentCounts(ctx); err != nil {
		l.logger.Debug("failed to recompute agent counts on close", zap.Error(err))
	}

	l.publish(ctx, events.SessionClosed, map[string]interface{}{"sessionId": sessionID})
	l.publish(ctx, events.InstanceDeleted, map[string]interface{}{"sessionId": sessionID, "agentId": sess.AgentID})

	l.logger.Info("session closed", zap.String("session", sessionID))
	return nil
}

// Restart consolidates uncommitted work into a single commit, tears the old
// session down, and creates a fresh one with the same configuration. Spec
// §4.6 Restart.
func (l *Lifecycle) Restart(ctx context.Context, req RestartRequest) (*session.Session, error) {
	var sess session.Session
	if req.SessionID != "" {
		stored, err := l.sessions.GetSession(req.SessionID)
		if err != nil {
			return nil, ErrSessionNotFound
		}
		sess = *stored
	} else {
		sess = session.Session{
			SessionID:  uuid.New().String(),
			AgentType:  session.AgentType(req.AgentType),
			Task:       req.Task,
			RepoPath:   req.RepoPath,
			BaseBranch: req.BaseBranch,
		}
	}

	if err := l.consolidateUncommitted(ctx, sess); err != nil {
		l.logger.Warn("consolidation commit failed during restart", zap.String("session", sess.SessionID), zap.Error(err))
	}

	if req.SessionID != "" {
		if err := l.Close(ctx, sess.SessionID, ""); err != nil {
			l.logger.Warn("close during restart failed", zap.String("session", sess.SessionID), zap.Error(err))
		}
	}

	createReq := req.CreateRequest
	if createReq.RepoPath == "" {
		createReq.RepoPath = sess.RepoPath
	}
	if createReq.AgentType == "" {
		createReq.AgentType = string(sess.AgentType)
	}
	if createReq.Task == "" {
		createReq.Task = sess.Task
	}
	if createReq.BaseBranch == "" {
		createReq.BaseBranch = sess.BaseBranch
	}
	if createReq.RebaseIntervalHours == 0 {
		createReq.RebaseIntervalHours = sess.RebaseIntervalHours
	}

	return l.Create(ctx, createReq)
}

// consolidateUncommitted commits any outstanding changes in the session's
// worktree under a message enumerating commit subjects since the session's
// watermark, per spec §4.6 Restart step 1.
func (l *Lifecycle) consolidateUncommitted(ctx context.Context, sess session.Session) error {
	if sess.WorktreePath == "" {
		return nil
	}
	status, err := l.driver.Status(ctx, sess.WorktreePath)
	if err != nil || status == nil || status.Clean {
		return nil
	}

	ps, _ := l.sessions.GetProcessingState(sess.SessionID)
	subject := "[Agent Restart] Consolidated changes"
	body := "+ Uncommitted changes at restart"
	if ps.LastProcessedCommit != "" {
		commits, err := l.driver.CommitsSince(ctx, sess.WorktreePath, ps.LastProcessedCommit, 10)
		if err == nil && len(commits) > 0 {
			var subjects []string
			for _, c := range commits {
				subjects = append(subjects, "- "+firstLine(c.Message))
			}
			body = strings.Join(subjects, "\n") + "\n+ Uncommitted changes at restart"
		}
	}

	_, err = l.driver.Commit(ctx, sess.WorktreePath, subject+"\n\n"+body)
	return err
}

// Recover runs the crash-recovery sweep on process start: reconciles
// processing watermarks against unprocessed commits and reports orphaned
// session descriptors. Spec §4.6 Recovery.
func (l *Lifecycle) Recover(ctx context.Context) ([]recovery.OrphanSession, error) {
	if l.recovery == nil {
		return nil, nil
	}
	orphans, err := l.recovery.Run(ctx)
	if err != nil {
		return nil, err
	}
	for _, o := range orphans {
		desc, err := readSessionDescriptor(o.DescriptorPath)
		if err != nil {
			l.logger.Debug("orphan session descriptor unreadable", zap.String("path", o.DescriptorPath), zap.Error(err))
			continue
		}
		l.logger.Warn("orphaned session descriptor found",
			zap.String("session", o.SessionID),
			zap.String("agent", desc.AgentID),
			zap.String("repo", o.RepoPath))
	}
	return orphans, nil
}

// ListSessions returns every stored session, for reporting surfaces like
// enginectl's `session list`.
func (l *Lifecycle) ListSessions() []session.Session {
	return l.sessions.ListSessions()
}

// GetSession looks up a single stored session by ID.
func (l *Lifecycle) GetSession(sessionID string) (*session.Session, error) {
	return l.sessions.GetSession(sessionID)
}

// Lock returns the shared lock.Router, for enginectl's `lock` subcommands.
func (l *Lifecycle) Lock() *lock.Router {
	return l.locks
}

// Rebase returns the shared rebase.Supervisor, for enginectl's `rebase`
// subcommands.
func (l *Lifecycle) Rebase() *rebase.Supervisor {
	return l.rebases
}

func (l *Lifecycle) publish(ctx context.Context, channel string, data map[string]interface{}) {
	if l.bus == nil {
		return
	}
	evt := bus.NewEvent(channel, eventSource, data)
	if err := l.bus.Publish(ctx, channel, evt); err != nil {
		l.logger.Debug("failed to publish event", zap.String("channel", channel), zap.Error(err))
	}
}

func repoName(repoPath string) string {
	parts := strings.Split(strings.TrimRight(repoPath, "/"), "/")
	return parts[len(parts)-1]
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
