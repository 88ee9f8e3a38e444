package rebase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/events"
	"github.com/sekondbrain/cs-devops-agent/internal/events/bus"
	"github.com/sekondbrain/cs-devops-agent/internal/gitdriver"
)

const eventSource = "rebase-supervisor"

// Supervisor runs one periodic rebase cycle per session with
// rebaseIntervalHours > 0.
type Supervisor struct {
	driver *gitdriver.Driver
	bus    bus.EventBus
	logger *logger.Logger

	mu        sync.Mutex
	schedules map[string]*schedule
}

type schedule struct {
	repoPath   string
	baseBranch string
	interval   time.Duration
	paused     atomic.Bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewSupervisor constructs a Supervisor. log may be nil.
func NewSupervisor(driver *gitdriver.Driver, eb bus.EventBus, log *logger.Logger) *Supervisor {
	if log == nil {
		log = logger.Default()
	}
	return &Supervisor{
		driver:    driver,
		bus:       eb,
		logger:    log.WithFields(zap.String("component", "rebase-supervisor")),
		schedules: make(map[string]*schedule),
	}
}

// Schedule starts a periodic rebase cycle for sessionID. interval <= 0 is a
// no-op.
func (s *Supervisor) Schedule(sessionID, repoPath, baseBranch string, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	s.mu.Lock()
	if _, exists := s.schedules[sessionID]; exists {
		s.mu.Unlock()
		return ErrAlreadyScheduled
	}
	ctx, cancel := context.WithCancel(context.Background())
	sch := &schedule{
		repoPath:   repoPath,
		baseBranch: baseBranch,
		interval:   interval,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	s.schedules[sessionID] = sch
	s.mu.Unlock()

	go s.loop(ctx, sessionID, sch)
	return nil
}

func (s *Supervisor) loop(ctx context.Context, sessionID string, sch *schedule) {
	defer close(sch.done)
	ticker := time.NewTicker(sch.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sch.paused.Load() {
				continue
			}
			s.runCycle(ctx, sessionID, sch.repoPath, sch.baseBranch)
		}
	}
}

// Cancel stops sessionID's schedule.
func (s *Supervisor) Cancel(sessionID string) error {
	s.mu.Lock()
	sch, ok := s.schedules[sessionID]
	if ok {
		delete(s.schedules, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return ErrNotScheduled
	}
	sch.cancel()
	<-sch.done
	return nil
}

// Pause suspends sessionID's schedule without cancelling it.
func (s *Supervisor) Pause(sessionID string) error {
	sch, err := s.get(sessionID)
	if err != nil {
		return err
	}
	sch.paused.Store(true)
	return nil
}

// Resume un-pauses sessionID's schedule.
func (s *Supervisor) Resume(sessionID string) error {
	sch, err := s.get(sessionID)
	if err != nil {
		return err
	}
	sch.paused.Store(false)
	return nil
}

// ForceCheck runs a rebase cycle immediately, independent of the schedule's
// ticker or pause state, and returns its outcome synchronously.
func (s *Supervisor) ForceCheck(ctx context.Context, sessionID string) (*Outcome, error) {
	sch, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.runCycle(ctx, sessionID, sch.repoPath, sch.baseBranch), nil
}

func (s *Supervisor) get(sessionID string) (*schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[sessionID]
	if !ok {
		return nil, ErrNotScheduled
	}
	return sch, nil
}

// runCycle performs the stash -> rebase -> pop sequence.
func (s *Supervisor) runCycle(ctx context.Context, sessionID, repoPath, baseBranch string) *Outcome {
	stashed, err := s.driver.StashPush(ctx, repoPath)
	if err != nil {
		s.logger.Warn("stash before rebase failed", zap.String("session", sessionID), zap.Error(err))
	}

	rebaseOutcome, err := s.driver.Rebase(ctx, repoPath, baseBranch)
	if err != nil {
		if stashed {
			if popErr := s.driver.StashPop(ctx, repoPath); popErr != nil {
				s.logger.Debug("stash pop after failed rebase failed, ignoring", zap.Error(popErr))
			}
		}
		var ge *gitdriver.GitError
		code := OutcomeConflictsDetected
		if errors.As(err, &ge) && errors.Is(ge.Cause, gitdriver.ErrBaseBranchMissing) {
			code = OutcomeBaseBranchMissing
		}
		out := &Outcome{SessionID: sessionID, Code: code, Message: err.Error()}
		s.publish(ctx, out)
		return out
	}

	code := OutcomeOK
	if stashed {
		if popErr := s.driver.StashPop(ctx, repoPath); popErr != nil {
			s.logger.Warn("stash pop after successful rebase conflicted", zap.String("session", sessionID), zap.Error(popErr))
			code = OutcomeDegraded
		}
	}
	out := &Outcome{SessionID: sessionID, Code: code, Message: rebaseOutcome.Message}
	s.publish(ctx, out)
	return out
}

func (s *Supervisor) publish(ctx context.Context, out *Outcome) {
	if s.bus == nil {
		return
	}
	data := map[string]interface{}{
		"sessionId": out.SessionID,
		"outcome":   string(out.Code),
		"message":   out.Message,
	}
	e := bus.NewEvent(events.RebaseWatcherCompleted, eventSource, data)
	if err := s.bus.Publish(ctx, events.RebaseWatcherCompleted, e); err != nil {
		s.logger.Debug("failed to publish rebase outcome", zap.Error(err))
	}
}
