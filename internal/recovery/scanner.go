package recovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/events"
	"github.com/sekondbrain/cs-devops-agent/internal/events/bus"
	"github.com/sekondbrain/cs-devops-agent/internal/gitdriver"
	"github.com/sekondbrain/cs-devops-agent/internal/session"
)

const (
	eventSource           = "recovery-scanner"
	recoveryFallbackLimit = 10
)

// Scanner runs the crash-recovery pass on process start. Commits for
// independent sessions are analyzed concurrently via errgroup, so one
// session's recovery never blocks another's.
type Scanner struct {
	driver     *gitdriver.Driver
	sessions   *session.Store
	analyzer   Analyzer
	bus        bus.EventBus
	logger     *logger.Logger
	toolkitDir string
}

// NewScanner constructs a Scanner. analyzer may be nil (commits are
// enumerated but not watermarked). log may be nil.
func NewScanner(driver *gitdriver.Driver, sessions *session.Store, analyzer Analyzer, toolkitDir string, eb bus.EventBus, log *logger.Logger) *Scanner {
	if log == nil {
		log = logger.Default()
	}
	return &Scanner{
		driver:     driver,
		sessions:   sessions,
		analyzer:   analyzer,
		bus:        eb,
		logger:     log.WithFields(zap.String("component", "recovery-scanner")),
		toolkitDir: toolkitDir,
	}
}

// Run rehydrates sessions from the SessionStore, processes unprocessed
// commits for each, then scans recent repositories for orphaned session
// descriptors, run separately from the per-session commit sweep.
func (s *Scanner) Run(ctx context.Context) ([]OrphanSession, error) {
	if err := s.recoverSessions(ctx); err != nil {
		return nil, err
	}
	return s.ScanOrphans(ctx)
}

func (s *Scanner) recoverSessions(ctx context.Context) error {
	sessions := s.sessions.ListSessions()
	g, gctx := errgroup.WithContext(ctx)
	for _, sess := range sessions {
		sess := sess
		if sess.Status == session.StatusClosed {
			continue
		}
		g.Go(func() error {
			return s.recoverSession(gctx, sess)
		})
	}
	return g.Wait()
}

func (s *Scanner) recoverSession(ctx context.Context, sess session.Session) error {
	ps, _ := s.sessions.GetProcessingState(sess.SessionID)
	commits, err := s.driver.CommitsSince(ctx, sess.WorktreePath, ps.LastProcessedCommit, recoveryFallbackLimit)
	if err != nil {
		s.logger.Warn("failed to enumerate commits for recovery", zap.String("session", sess.SessionID), zap.Error(err))
		return nil
	}

	for _, commit := range commits {
		if s.analyzer == nil {
			continue
		}
		result, err := s.analyzer.AnalyzeCommit(ctx, sess.SessionID, commit)
		if err != nil {
			s.logger.Warn("analyzer failed for commit, skipping", zap.String("session", sess.SessionID), zap.String("commit", commit.Hash), zap.Error(err))
			continue
		}
		commit := commit
		if err := s.sessions.UpdateProcessingState(ctx, sess.SessionID, func(state *session.ProcessingState) {
			state.LastProcessedCommit = commit.Hash
			state.LastProcessedAt = commit.Date
			state.ContractChangesCount += result.ContractChanges
			state.BreakingChangesCount += result.BreakingChanges
		}); err != nil {
			s.logger.Warn("failed to persist processing state", zap.String("session", sess.SessionID), zap.Error(err))
		}
	}
	return nil
}

// ScanOrphans walks every recent repository's toolkit sessions/ directory
// for descriptor files with no corresponding SessionStore entry.
func (s *Scanner) ScanOrphans(ctx context.Context) ([]OrphanSession, error) {
	var orphans []OrphanSession
	for _, repo := range s.sessions.ListRecentRepos() {
		dir := filepath.Join(repo.Path, s.toolkitDir, "sessions")
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
				continue
			}
			sessionID := strings.TrimSuffix(e.Name(), ".json")
			if _, err := s.sessions.GetSession(sessionID); errors.Is(err, session.ErrNotFound) {
				orphans = append(orphans, OrphanSession{
					RepoPath:       repo.Path,
					DescriptorPath: filepath.Join(dir, e.Name()),
					SessionID:      sessionID,
				})
			}
		}
	}
	if len(orphans) > 0 {
		s.publishOrphans(ctx, orphans)
	}
	return orphans, nil
}

func (s *Scanner) publishOrphans(ctx context.Context, orphans []OrphanSession) {
	if s.bus == nil {
		return
	}
	ids := make([]string, len(orphans))
	for i, o := range orphans {
		ids[i] = o.SessionID
	}
	data := map[string]interface{}{"sessionIds": ids, "count": len(orphans)}
	e := bus.NewEvent(events.RecoveryOrphansFound, eventSource, data)
	if err := s.bus.Publish(ctx, events.RecoveryOrphansFound, e); err != nil {
		s.logger.Debug("failed to publish orphan sessions", zap.Error(err))
	}
}
