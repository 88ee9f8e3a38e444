package commit

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/events"
	"github.com/sekondbrain/cs-devops-agent/internal/events/bus"
	"github.com/sekondbrain/cs-devops-agent/internal/gitdriver"
	"github.com/sekondbrain/cs-devops-agent/internal/session"
)

const eventSource = "commit-pipeline"

// Pipeline runs the debounced commit steps triggered by a drop file:
// read it, commit, push, and update session bookkeeping. Per session, at most
// one run is in flight; triggers that arrive mid-run coalesce into exactly
// one more run.
type Pipeline struct {
	driver   *gitdriver.Driver
	sessions *session.Store
	bus      bus.EventBus
	logger   *logger.Logger
	activity ActivityAttributor
	pushOnCommit bool

	mu       sync.Mutex
	inFlight map[string]bool
	pending  map[string]Request
}

// NewPipeline constructs a Pipeline. activity may be nil.
func NewPipeline(driver *gitdriver.Driver, sessions *session.Store, eb bus.EventBus, log *logger.Logger, activity ActivityAttributor, pushOnCommit bool) *Pipeline {
	if log == nil {
		log = logger.Default()
	}
	return &Pipeline{
		driver:       driver,
		sessions:     sessions,
		bus:          eb,
		logger:       log.WithFields(zap.String("component", "commit-pipeline")),
		activity:     activity,
		pushOnCommit: pushOnCommit,
		inFlight:     make(map[string]bool),
		pending:      make(map[string]Request),
	}
}

// Schedule queues a commit attempt for req.SessionID. If a commit for this
// session is already running, req replaces any pending coalesced trigger
// and this call returns immediately; the pipeline re-runs once more after
// the in-flight attempt finishes.
func (p *Pipeline) Schedule(ctx context.Context, req Request) {
	p.mu.Lock()
	if p.inFlight[req.SessionID] {
		p.pending[req.SessionID] = req
		p.mu.Unlock()
		return
	}
	p.inFlight[req.SessionID] = true
	p.mu.Unlock()

	go p.runLoop(ctx, req)
}

func (p *Pipeline) runLoop(ctx context.Context, req Request) {
	for {
		p.runOnce(ctx, req)

		p.mu.Lock()
		next, ok := p.pending[req.SessionID]
		if ok {
			delete(p.pending, req.SessionID)
			p.mu.Unlock()
			req = next
			continue
		}
		delete(p.inFlight, req.SessionID)
		p.mu.Unlock()
		return
	}
}

func (p *Pipeline) runOnce(ctx context.Context, req Request) {
	content, err := os.ReadFile(req.DropFilePath)
	if err != nil {
		if !os.IsNotExist(err) {
			p.logger.Warn("failed to read drop file", zap.String("session", req.SessionID), zap.Error(err))
		}
		return
	}
	message := strings.TrimSpace(string(content))
	if message == "" {
		return
	}

	p.publish(ctx, events.CommitTriggered, map[string]interface{}{
		"sessionId": req.SessionID,
		"message":   message,
	})

	rec, err := p.driver.Commit(ctx, req.RepoPath, message)
	if err != nil {
		p.logger.Error("commit failed", zap.String("session", req.SessionID), zap.Error(err))
		return
	}

	if err := os.WriteFile(req.DropFilePath, nil, 0o644); err != nil {
		p.logger.Warn("failed to truncate drop file", zap.String("session", req.SessionID), zap.Error(err))
	}

	p.publish(ctx, events.CommitCompleted, map[string]interface{}{
		"sessionId":    req.SessionID,
		"hash":         rec.Hash,
		"shortHash":    rec.ShortHash,
		"filesChanged": rec.FilesChanged,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})

	if p.activity != nil {
		if err := p.activity.AttributeInFlight(req.SessionID, rec.Hash); err != nil {
			p.logger.Debug("failed to attribute in-flight activity", zap.Error(err))
		}
	}

	if p.sessions != nil {
		if err := p.sessions.UpdateProcessingState(ctx, req.SessionID, func(ps *session.ProcessingState) {
			ps.LastProcessedCommit = rec.Hash
			ps.LastProcessedAt = rec.Date
		}); err != nil {
			p.logger.Warn("failed to update processing state", zap.String("session", req.SessionID), zap.Error(err))
		}
		if err := p.sessions.UpdateSession(ctx, req.SessionID, func(s *session.Session) {
			s.CommitCount++
			s.LastCommitHash = rec.Hash
		}); err != nil {
			p.logger.Warn("failed to update session commit count", zap.String("session", req.SessionID), zap.Error(err))
		}
	}

	if p.pushOnCommit {
		if err := p.driver.Push(ctx, req.RepoPath); err != nil {
			p.logger.Error("push failed", zap.String("session", req.SessionID), zap.Error(err))
		}
	}
}

func (p *Pipeline) publish(ctx context.Context, channel string, data map[string]interface{}) {
	if p.bus == nil {
		return
	}
	e := bus.NewEvent(channel, eventSource, data)
	if err := p.bus.Publish(ctx, channel, e); err != nil {
		p.logger.Debug("failed to publish event", zap.String("channel", channel), zap.Error(err))
	}
}
