package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/events"
	"github.com/sekondbrain/cs-devops-agent/internal/events/bus"
)

const (
	eventSource      = "lock-registry"
	activeDirName    = "active-edits"
	completedDirName = "completed-edits"
)

// Registry is the on-disk declaration registry for one coordination
// root. The filesystem under root is shared with external agent
// processes that may write declaration files directly, so every
// check-then-write sequence runs under a single OS-level flock rather
// than relying on the in-process mutex the rest of this engine uses
// elsewhere — grounded on the same write-then-rename + flock idiom
// internal/session uses for its profile file.
type Registry struct {
	root         string
	activeDir    string
	completedDir string
	autoLockTTL  time.Duration
	fileLock     *flock.Flock
	bus          bus.EventBus
	logger       *logger.Logger
}

// NewRegistry creates the active-edits/completed-edits directories under
// root if absent and returns a Registry bound to them.
func NewRegistry(root string, autoLockTTL time.Duration, eb bus.EventBus, log *logger.Logger) (*Registry, error) {
	if log == nil {
		log = logger.Default()
	}
	activeDir := filepath.Join(root, activeDirName)
	completedDir := filepath.Join(root, completedDirName)
	for _, d := range []string{activeDir, completedDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", d, err)
		}
	}
	return &Registry{
		root:         root,
		activeDir:    activeDir,
		completedDir: completedDir,
		autoLockTTL:  autoLockTTL,
		fileLock:     flock.New(filepath.Join(root, ".registry.lock")),
		logger:       log.WithFields(zap.String("component", "lock-registry")),
		bus:          eb,
	}, nil
}

func declarationFilename(agent, sessionID string) string {
	return agent + "-" + sessionID + ".json"
}

// Declare records files as being edited by (sessionId, agent). It fails
// with *ConflictError if any file is already covered by another session's
// live declaration.
func (r *Registry) Declare(ctx context.Context, sessionID, agent string, files []string, operation Operation, reason string, estSec int) error {
	decl := Declaration{
		Agent:                agent,
		SessionID:            sessionID,
		Files:                files,
		Operation:            operation,
		Reason:               reason,
		DeclaredAt:           time.Now().UTC(),
		EstimatedDurationSec: estSec,
	}
	return r.write(ctx, decl)
}

// AutoLock synthesizes or refreshes a short-TTL declaration for a single
// path, invoked by WatcherPool on every write to a session's files.
func (r *Registry) AutoLock(ctx context.Context, sessionID, agent, path string) error {
	expires := time.Now().UTC().Add(r.autoLockTTL)
	decl := Declaration{
		Agent:      agent,
		SessionID:  sessionID,
		Files:      []string{path},
		Operation:  OpEdit,
		Reason:     "auto-lock",
		DeclaredAt: time.Now().UTC(),
		AutoLock:   true,
		ExpiresAt:  &expires,
	}
	return r.write(ctx, decl)
}

func (r *Registry) write(ctx context.Context, decl Declaration) error {
	if err := r.fileLock.Lock(); err != nil {
		return fmt.Errorf("acquiring registry lock: %w", err)
	}
	defer func() { _ = r.fileLock.Unlock() }()

	active, err := r.scanDir(r.activeDir)
	if err != nil {
		return ErrUnknownState
	}

	wanted := make(map[string]bool, len(decl.Files))
	for _, f := range decl.Files {
		wanted[f] = true
	}

	var conflicts []Conflict
	for _, other := range active {
		if other.SessionID == decl.SessionID {
			continue
		}
		if other.expired(time.Now().UTC()) {
			continue
		}
		if path, ok := other.coversAny(wanted); ok {
			conflicts = append(conflicts, Conflict{Path: path, SessionID: other.SessionID, Agent: other.Agent})
		}
	}
	if len(conflicts) > 0 {
		return &ConflictError{Conflicts: conflicts}
	}

	path := filepath.Join(r.activeDir, declarationFilename(decl.Agent, decl.SessionID))
	if err := writeJSONAtomic(path, decl); err != nil {
		return err
	}
	r.publish(ctx, map[string]interface{}{
		"sessionId": decl.SessionID,
		"agent":     decl.Agent,
		"files":     decl.Files,
		"action":    "declared",
	})
	return nil
}

// Release moves every live declaration owned by sessionID to
// completed-edits/.
func (r *Registry) Release(ctx context.Context, sessionID string) error {
	if err := r.fileLock.Lock(); err != nil {
		return fmt.Errorf("acquiring registry lock: %w", err)
	}
	defer func() { _ = r.fileLock.Unlock() }()

	entries, err := os.ReadDir(r.activeDir)
	if err != nil {
		return ErrUnknownState
	}

	released := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src := filepath.Join(r.activeDir, e.Name())
		decl, err := readDeclaration(src)
		if err != nil {
			r.logger.Debug("skipping unreadable declaration", zap.String("path", src), zap.Error(err))
			continue
		}
		if decl.SessionID != sessionID {
			continue
		}
		dst := filepath.Join(r.completedDir, fmt.Sprintf("%s.%d.json", e.Name(), time.Now().UnixNano()))
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("releasing declaration %s: %w", e.Name(), err)
		}
		released++
	}

	r.publish(ctx, map[string]interface{}{"sessionId": sessionID, "action": "released", "count": released})
	return nil
}

// Check returns any live declarations covering paths, without modifying
// state.
func (r *Registry) Check(paths []string) ([]Conflict, error) {
	active, err := r.scanDir(r.activeDir)
	if err != nil {
		return nil, ErrUnknownState
	}
	wanted := make(map[string]bool, len(paths))
	for _, p := range paths {
		wanted[p] = true
	}
	now := time.Now().UTC()
	var conflicts []Conflict
	for _, decl := range active {
		if decl.expired(now) {
			continue
		}
		if path, ok := decl.coversAny(wanted); ok {
			conflicts = append(conflicts, Conflict{Path: path, SessionID: decl.SessionID, Agent: decl.Agent})
		}
	}
	return conflicts, nil
}

func (r *Registry) scanDir(dir string) ([]Declaration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Declaration, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		decl, err := readDeclaration(filepath.Join(dir, e.Name()))
		if err != nil {
			// A single unreadable file makes the whole scan "unknown"
			//; propagate rather than skip.
			return nil, err
		}
		out = append(out, *decl)
	}
	return out, nil
}

func (r *Registry) publish(ctx context.Context, data map[string]interface{}) {
	if r.bus == nil {
		return
	}
	e := bus.NewEvent(events.LockChanged, eventSource, data)
	if err := r.bus.Publish(ctx, events.LockChanged, e); err != nil {
		r.logger.Debug("failed to publish lock event", zap.Error(err))
	}
}

func readDeclaration(path string) (*Declaration, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var decl Declaration
	if err := json.Unmarshal(content, &decl); err != nil {
		return nil, err
	}
	return &decl, nil
}

func writeJSONAtomic(path string, v interface{}) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp." + strconv.FormatInt(time.Now().UnixNano(), 36)
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
