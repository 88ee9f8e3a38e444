package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/events"
	"github.com/sekondbrain/cs-devops-agent/internal/events/bus"
	"github.com/sekondbrain/cs-devops-agent/internal/gitdriver"
)

const eventSource = "worktree-manager"

// Manager allocates and deallocates the Git worktree backing a session,
// and exclusively owns worktree directories under the configured root.
type Manager struct {
	config Config
	logger *logger.Logger
	store  Store
	driver *gitdriver.Driver
	bus    bus.EventBus

	mu        sync.RWMutex
	bySession map[string]*Worktree // in-memory cache, keyed by sessionID
}

// NewManager constructs a Manager. bus may be nil, in which case remote
// rebind warnings are only logged.
func NewManager(cfg Config, store Store, driver *gitdriver.Driver, eb bus.EventBus, log *logger.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid worktree config: %w", err)
	}
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		config:    cfg,
		logger:    log.WithFields(zap.String("component", "worktree-manager")),
		store:     store,
		driver:    driver,
		bus:       eb,
		bySession: make(map[string]*Worktree),
	}, nil
}

// Create provisions (or idempotently reuses) the worktree for a session.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Worktree, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if existing, err := m.GetBySessionID(ctx, req.SessionID); err == nil && existing != nil {
		if isValidWorktreeDir(existing.Path) {
			m.logger.Debug("reusing existing worktree",
				zap.String("session_id", req.SessionID),
				zap.String("path", existing.Path))
			return existing, nil
		}
		m.logger.Warn("worktree directory missing, recreating",
			zap.String("session_id", req.SessionID),
			zap.String("path", existing.Path))
	}

	if !isGitRepo(req.RepoPath) {
		return nil, ErrRepoNotGit
	}

	baseBranch := req.BaseBranch
	if baseBranch == "" {
		baseBranch = m.config.DefaultBranch
	}
	if !m.driver.BranchExists(ctx, req.RepoPath, baseBranch) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBaseBranch, baseBranch)
	}

	branchName, dirName := m.config.DeriveName(req.SessionID)
	rootDir := filepath.Join(req.RepoPath, m.config.Root)
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating worktree root: %w", err)
	}
	worktreePath := filepath.Join(rootDir, dirName)

	if err := m.driver.CreateWorktreeFromBase(ctx, req.RepoPath, branchName, baseBranch, worktreePath); err != nil {
		return nil, err
	}

	m.rebindRemote(ctx, req.RepoPath, worktreePath, req.SessionID)

	wt := &Worktree{
		SessionID:  req.SessionID,
		RepoPath:   req.RepoPath,
		Path:       worktreePath,
		Branch:     branchName,
		BaseBranch: baseBranch,
		Head:       m.resolveHead(ctx, req.RepoPath, worktreePath),
		Status:     StatusActive,
	}

	if m.store != nil {
		if err := m.store.Create(ctx, wt); err != nil {
			_ = m.driver.RemoveWorktree(ctx, req.RepoPath, worktreePath, true)
			return nil, fmt.Errorf("persisting worktree: %w", err)
		}
	}

	m.mu.Lock()
	m.bySession[req.SessionID] = wt
	m.mu.Unlock()

	m.logger.Info("provisioned worktree",
		zap.String("session_id", req.SessionID),
		zap.String("path", worktreePath),
		zap.String("branch", branchName))

	return wt, nil
}

// rebindRemote rewires the worktree's origin to the super-project's remote
// when the repository is a Git sub-repository. On
// failure it falls back to the child remote and emits a warning event.
func (m *Manager) rebindRemote(ctx context.Context, repoPath, worktreePath, sessionID string) {
	superURL := m.driver.SuperprojectRemoteURL(ctx, repoPath)
	if superURL == "" {
		return
	}
	if err := m.driver.SetRemoteURL(ctx, worktreePath, superURL); err != nil {
		m.logger.Warn("remote rebind to super-project failed, keeping child remote",
			zap.String("session_id", sessionID),
			zap.String("worktree_path", worktreePath),
			zap.Error(err))
		m.publishRebindWarning(ctx, sessionID, worktreePath, err)
		return
	}
	m.logger.Debug("rebound worktree remote to super-project",
		zap.String("session_id", sessionID),
		zap.String("remote", superURL))
}

func (m *Manager) publishRebindWarning(ctx context.Context, sessionID, worktreePath string, cause error) {
	if m.bus == nil {
		return
	}
	evt := bus.NewEvent(events.WorktreeRemoteRebindFailed, eventSource, map[string]interface{}{
		"sessionId":    sessionID,
		"worktreePath": worktreePath,
		"error":        cause.Error(),
	})
	if err := m.bus.Publish(ctx, events.WorktreeRemoteRebindFailed, evt); err != nil {
		m.logger.Debug("failed to publish remote rebind warning", zap.Error(err))
	}
}

func (m *Manager) resolveHead(ctx context.Context, repoPath, worktreePath string) string {
	list, err := m.driver.ListWorktrees(ctx, repoPath)
	if err != nil {
		return ""
	}
	for _, wt := range list {
		if wt.Path == worktreePath {
			return wt.Head
		}
	}
	return ""
}

// GetBySessionID returns the worktree for a session, consulting the
// in-memory cache before the store.
func (m *Manager) GetBySessionID(ctx context.Context, sessionID string) (*Worktree, error) {
	m.mu.RLock()
	if wt, ok := m.bySession[sessionID]; ok {
		m.mu.RUnlock()
		return wt, nil
	}
	m.mu.RUnlock()

	if m.store == nil {
		return nil, nil
	}
	wt, err := m.store.GetBySessionID(ctx, sessionID)
	if err != nil || wt == nil {
		return nil, err
	}
	m.mu.Lock()
	m.bySession[sessionID] = wt
	m.mu.Unlock()
	return wt, nil
}

// Remove force-removes the session's worktree, prunes it, and deletes the
// derived branch when deleteBranchIfMerged is set and the branch is fully
// merged into its base.
func (m *Manager) Remove(ctx context.Context, sessionID string, deleteBranchIfMerged bool) error {
	wt, err := m.GetBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}
	if wt == nil {
		return ErrWorktreeNotFound
	}

	if err := m.driver.RemoveWorktree(ctx, wt.RepoPath, wt.Path, true); err != nil {
		m.logger.Warn("failed to remove worktree directory",
			zap.String("session_id", sessionID),
			zap.String("path", wt.Path),
			zap.Error(err))
	}

	if deleteBranchIfMerged && m.driver.IsBranchMerged(ctx, wt.RepoPath, wt.Branch, wt.BaseBranch) {
		if err := m.driver.DeleteBranch(ctx, wt.RepoPath, wt.Branch, false); err != nil {
			m.logger.Warn("failed to delete merged branch",
				zap.String("branch", wt.Branch),
				zap.Error(err))
		}
	}

	if m.store != nil {
		wt.Status = StatusRemoved
		if err := m.store.Update(ctx, wt); err != nil {
			m.logger.Debug("failed to mark worktree removed", zap.Error(err))
		}
	}

	m.mu.Lock()
	delete(m.bySession, sessionID)
	m.mu.Unlock()

	m.logger.Info("removed worktree",
		zap.String("session_id", sessionID),
		zap.String("path", wt.Path))
	return nil
}

// ListActive returns all worktree records whose status is active, or nil
// when the Manager has no store.
func (m *Manager) ListActive(ctx context.Context) ([]*Worktree, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.ListActive(ctx)
}

func isGitRepo(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	if err != nil {
		return false
	}
	return info.IsDir() || info.Mode().IsRegular()
}

// isValidWorktreeDir reports whether path looks like a live worktree: it
// exists and its .git file points at a gitdir (worktrees have a .git file,
// not a directory).
func isValidWorktreeDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	content, err := os.ReadFile(filepath.Join(path, ".git"))
	if err != nil {
		return false
	}
	return len(content) > len("gitdir:") && string(content[:7]) == "gitdir:"
}
