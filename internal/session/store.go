package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/events"
	"github.com/sekondbrain/cs-devops-agent/internal/events/bus"
)

const eventSource = "session-store"

type profileData struct {
	Sessions         []Session                  `json:"sessions"`
	RecentRepos      []RecentRepo               `json:"recentRepos"`
	ProcessingStates map[string]ProcessingState `json:"processingStates"`
}

func emptyProfile() profileData {
	return profileData{ProcessingStates: make(map[string]ProcessingState)}
}

// Store is the durable, full-object-replacement JSON profile store.
// One Store instance owns one profile file; an OS-level flock guards
// the file across processes, an in-process mutex guards the decoded copy.
type Store struct {
	path      string
	lock      *flock.Flock
	recentCap int
	bus       bus.EventBus
	logger    *logger.Logger

	mu   sync.RWMutex
	data profileData
}

// Open loads (or creates) the profile file <dir>/<profileName>.json.
func Open(dir, profileName string, recentCap int, eb bus.EventBus, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Default()
	}
	if recentCap <= 0 {
		recentCap = 10
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating profile dir: %w", err)
	}
	path := filepath.Join(dir, profileName+".json")

	s := &Store{
		path:      path,
		lock:      flock.New(path + ".lock"),
		recentCap: recentCap,
		bus:       eb,
		logger:    log.WithFields(zap.String("component", "session-store"), zap.String("profile", profileName)),
		data:      emptyProfile(),
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading profile: %w", err)
	}
	if len(content) == 0 {
		return nil
	}
	var data profileData
	if err := json.Unmarshal(content, &data); err != nil {
		return fmt.Errorf("decoding profile: %w", err)
	}
	if data.ProcessingStates == nil {
		data.ProcessingStates = make(map[string]ProcessingState)
	}
	s.data = data
	return nil
}

// persist writes the full in-memory profile to disk via write-then-rename,
// holding the OS-level lock for the duration.
func (s *Store) persist() error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("acquiring profile lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	encoded, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("writing profile tmp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("renaming profile tmp file: %w", err)
	}
	return nil
}

func (s *Store) publish(ctx context.Context, channel string, data map[string]interface{}) {
	if s.bus == nil {
		return
	}
	evt := bus.NewEvent(channel, eventSource, data)
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.Debug("failed to publish event", zap.String("channel", channel), zap.Error(err))
	}
}

// CreateSession appends a new session record.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	s.mu.Lock()
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	for _, existing := range s.data.Sessions {
		if existing.SessionID == sess.SessionID {
			s.mu.Unlock()
			return fmt.Errorf("session already exists: %s", sess.SessionID)
		}
	}
	s.data.Sessions = append(s.data.Sessions, sess)
	err := s.persist()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(ctx, events.SessionReported, map[string]interface{}{"sessionId": sess.SessionID, "status": string(sess.Status)})
	return nil
}

// GetSession returns a copy of the session record, or ErrNotFound.
func (s *Store) GetSession(sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.data.Sessions {
		if sess.SessionID == sessionID {
			cp := sess
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// RepoPathForSession resolves sessionID's repoPath, the narrow lookup the
// activity log needs to locate a session's log file without depending on
// the rest of the Session record.
func (s *Store) RepoPathForSession(sessionID string) (string, error) {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return "", err
	}
	return sess.RepoPath, nil
}

// ListSessions returns all sessions ordered by creation time.
func (s *Store) ListSessions() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, len(s.data.Sessions))
	copy(out, s.data.Sessions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// UpdateSession applies mutate to the stored session and persists the whole
// profile (full-object replacement).
func (s *Store) UpdateSession(ctx context.Context, sessionID string, mutate func(*Session)) error {
	s.mu.Lock()
	idx := -1
	for i := range s.data.Sessions {
		if s.data.Sessions[i].SessionID == sessionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	mutate(&s.data.Sessions[idx])
	s.data.Sessions[idx].UpdatedAt = time.Now().UTC()
	status := s.data.Sessions[idx].Status
	err := s.persist()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(ctx, events.SessionReported, map[string]interface{}{"sessionId": sessionID, "status": string(status)})
	return nil
}

// CloseSession marks a session closed and recomputes recent-repo agent
// counts.
func (s *Store) CloseSession(ctx context.Context, sessionID string) error {
	if err := s.UpdateSession(ctx, sessionID, func(sess *Session) {
		sess.Status = StatusClosed
	}); err != nil {
		return err
	}
	if err := s.RecomputeAgentCounts(ctx); err != nil {
		return err
	}
	s.publish(ctx, events.SessionClosed, map[string]interface{}{"sessionId": sessionID})
	return nil
}

// DeleteSession removes a session record entirely, used by Close and
// Restart once the session's on-disk artifacts are gone.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	idx := -1
	for i := range s.data.Sessions {
		if s.data.Sessions[i].SessionID == sessionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.data.Sessions = append(s.data.Sessions[:idx], s.data.Sessions[idx+1:]...)
	delete(s.data.ProcessingStates, sessionID)
	err := s.persist()
	s.mu.Unlock()
	return err
}

// ClearProcessingState removes a session's crash-recovery watermark.
func (s *Store) ClearProcessingState(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.data.ProcessingStates, sessionID)
	err := s.persist()
	s.mu.Unlock()
	return err
}

// GetProcessingState returns the crash-recovery watermark for a session.
func (s *Store) GetProcessingState(sessionID string) (ProcessingState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps, ok := s.data.ProcessingStates[sessionID]
	return ps, ok
}

// UpdateProcessingState applies mutate to a session's processing state,
// creating it if absent, and persists the profile.
func (s *Store) UpdateProcessingState(ctx context.Context, sessionID string, mutate func(*ProcessingState)) error {
	s.mu.Lock()
	ps := s.data.ProcessingStates[sessionID]
	mutate(&ps)
	s.data.ProcessingStates[sessionID] = ps
	err := s.persist()
	s.mu.Unlock()
	return err
}

// TouchRecentRepo records path as the most-recently-used repo, evicting the
// oldest entry past the configured cap.
func (s *Store) TouchRecentRepo(ctx context.Context, path, name string) error {
	s.mu.Lock()
	now := time.Now().UTC()
	filtered := s.data.RecentRepos[:0:0]
	for _, r := range s.data.RecentRepos {
		if r.Path != path {
			filtered = append(filtered, r)
		}
	}
	entry := RecentRepo{Path: path, Name: name, LastUsed: now}
	filtered = append([]RecentRepo{entry}, filtered...)
	if len(filtered) > s.recentCap {
		filtered = filtered[:s.recentCap]
	}
	s.data.RecentRepos = filtered
	err := s.persist()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(ctx, events.RecentReposUpdated, map[string]interface{}{"path": path})
	return nil
}

// ListRecentRepos returns the most-recent-first recent-repo list.
func (s *Store) ListRecentRepos() []RecentRepo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RecentRepo, len(s.data.RecentRepos))
	copy(out, s.data.RecentRepos)
	return out
}

// RecomputeAgentCounts walks live (non-closed) sessions and patches each
// RecentRepo.agentCount to the actual live count for its path.
func (s *Store) RecomputeAgentCounts(ctx context.Context) error {
	s.mu.Lock()
	counts := make(map[string]int)
	for _, sess := range s.data.Sessions {
		if sess.Status != StatusClosed {
			counts[sess.RepoPath]++
		}
	}
	for i := range s.data.RecentRepos {
		s.data.RecentRepos[i].AgentCount = counts[s.data.RecentRepos[i].Path]
	}
	err := s.persist()
	s.mu.Unlock()
	return err
}
