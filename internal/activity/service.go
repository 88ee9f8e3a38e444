package activity

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
)

const eventSource = "activity-service"

// SessionLocator resolves a session's repoPath, the only piece of Session
// state the activity log needs. Kept as a narrow interface (rather than
// importing internal/session directly) to avoid widening this package's
// dependency surface beyond what it actually uses.
type SessionLocator interface {
	RepoPathForSession(sessionID string) (string, error)
}

// Service implements commit.ActivityAttributor and the record-side of the
// activity log: one append-only JSON-lines file per session under
// <repoPath>/<toolkitDir>/activity/<sessionId>.log.
type Service struct {
	sessions   SessionLocator
	toolkitDir string
	logger     *logger.Logger

	mu sync.Mutex
}

// NewService constructs a Service. log may be nil.
func NewService(sessions SessionLocator, toolkitDir string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		sessions:   sessions,
		toolkitDir: toolkitDir,
		logger:     log.WithFields(zap.String("component", eventSource)),
	}
}

func (s *Service) logPath(repoPath, sessionID string) string {
	return filepath.Join(repoPath, s.toolkitDir, "activity", sessionID+".log")
}

// Record appends an in-flight activity entry for sessionID, ahead of the
// commit that will eventually claim it via AttributeInFlight.
func (s *Service) Record(ctx context.Context, sessionID, kind, message string) error {
	repoPath, err := s.sessions.RepoPathForSession(sessionID)
	if err != nil {
		return err
	}
	path := s.logPath(repoPath, sessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating activity dir: %w", err)
	}

	rec := Record{Timestamp: time.Now().UTC(), Kind: kind, Message: message}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding activity record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing activity record: %w", err)
	}
	return nil
}

// AttributeInFlight rewrites every in-flight (empty CommitHash) entry in
// sessionID's activity log to carry commitHash, implementing
// commit.ActivityAttributor.
func (s *Service) AttributeInFlight(sessionID, commitHash string) error {
	repoPath, err := s.sessions.RepoPathForSession(sessionID)
	if err != nil {
		return err
	}
	path := s.logPath(repoPath, sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading activity log: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	var rewritten [][]byte
	attributed := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			s.logger.Debug("skipping unparseable activity line", zap.String("session", sessionID), zap.Error(err))
			rewritten = append(rewritten, append([]byte(nil), line...))
			continue
		}
		if rec.CommitHash == "" {
			rec.CommitHash = commitHash
			attributed++
		}
		encoded, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("re-encoding activity record: %w", err)
		}
		rewritten = append(rewritten, encoded)
	}
	if attributed == 0 {
		return nil
	}

	tmp := path + ".tmp." + strconv.FormatInt(time.Now().UnixNano(), 36)
	var buf []byte
	for _, line := range rewritten {
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("writing attributed activity log: %w", err)
	}
	return os.Rename(tmp, path)
}
