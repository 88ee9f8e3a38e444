package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/sekondbrain/cs-devops-agent/internal/common/config"
	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/events"
	"github.com/sekondbrain/cs-devops-agent/internal/events/bus"
)

const eventSource = "watcher-pool"

// AutoLocker is the subset of LockRegistry the WatcherPool drives
// directly. Kept as a narrow interface here rather than importing
// internal/lock, to avoid a watch -> lock dependency the other
// direction doesn't need.
type AutoLocker interface {
	AutoLock(ctx context.Context, sessionID, agent, path string) error
}

// Pool owns one recursive fsnotify watcher per session
// (watchFilesystem/addDirectoryRecursive plus a per-path debounce),
// tuned to the configured stability threshold and the session's own
// drop-file names.
type Pool struct {
	cfg        config.WatchConfig
	bus        bus.EventBus
	logger     *logger.Logger
	autoLock   AutoLocker
	autoLockOn bool

	mu       sync.Mutex
	sessions map[string]*sessionWatch
}

type sessionWatch struct {
	sessionID    string
	agentType    string
	worktreePath string
	sessionDrop  string
	agentDrop    string

	watcher    *fsnotify.Watcher
	onDropFile DropFileHandler

	cancel context.CancelFunc
	done   chan struct{}

	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

// NewPool constructs a Pool. log may be nil. autoLocker may be nil, in
// which case auto-lock synthesis is skipped regardless of autoLockEnabled.
func NewPool(cfg config.WatchConfig, eb bus.EventBus, log *logger.Logger, autoLocker AutoLocker, autoLockEnabled bool) *Pool {
	if log == nil {
		log = logger.Default()
	}
	return &Pool{
		cfg:        cfg,
		bus:        eb,
		autoLock:   autoLocker,
		autoLockOn: autoLockEnabled,
		logger:     log.WithFields(zap.String("component", "watcher-pool")),
		sessions:   make(map[string]*sessionWatch),
	}
}

// Subscribe starts a recursive watcher rooted at worktreePath for sessionID.
// onDropFile is invoked (outside the watcher goroutine's lock) whenever the
// session's drop file receives an add/change event.
func (p *Pool) Subscribe(sessionID, agentType, worktreePath string, onDropFile DropFileHandler) error {
	p.mu.Lock()
	if _, exists := p.sessions[sessionID]; exists {
		p.mu.Unlock()
		return ErrAlreadySubscribed
	}
	p.mu.Unlock()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	sessionDrop, agentDrop := dropFileNames(sessionID, agentType)
	ctx, cancel := context.WithCancel(context.Background())

	sw := &sessionWatch{
		sessionID:    sessionID,
		agentType:    agentType,
		worktreePath: worktreePath,
		sessionDrop:  sessionDrop,
		agentDrop:    agentDrop,
		watcher:      w,
		onDropFile:   onDropFile,
		cancel:       cancel,
		done:         make(chan struct{}),
		timers:       make(map[string]*time.Timer),
	}

	if err := p.addDirectoryRecursive(sw, worktreePath); err != nil {
		_ = w.Close()
		cancel()
		return err
	}

	p.mu.Lock()
	p.sessions[sessionID] = sw
	p.mu.Unlock()

	go p.watchFilesystem(ctx, sw)
	return nil
}

// Unsubscribe cancels pending debounce timers and closes the session's
// watcher.
func (p *Pool) Unsubscribe(sessionID string) error {
	p.mu.Lock()
	sw, ok := p.sessions[sessionID]
	if ok {
		delete(p.sessions, sessionID)
	}
	p.mu.Unlock()
	if !ok {
		return ErrNotSubscribed
	}

	sw.cancel()
	sw.timersMu.Lock()
	for _, t := range sw.timers {
		t.Stop()
	}
	sw.timers = nil
	sw.timersMu.Unlock()
	_ = sw.watcher.Close()
	<-sw.done
	return nil
}

func (p *Pool) addDirectoryRecursive(sw *sessionWatch, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel := p.relPath(sw, path)
		if rel != "" && ignoreEntry(d.Name(), rel, sw.sessionDrop, sw.agentDrop) {
			return filepath.SkipDir
		}
		if err := sw.watcher.Add(path); err != nil {
			p.logger.Debug("failed to watch directory", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
}

func (p *Pool) relPath(sw *sessionWatch, path string) string {
	rel, err := filepath.Rel(sw.worktreePath, path)
	if err != nil {
		return ""
	}
	return filepath.ToSlash(rel)
}

func (p *Pool) watchFilesystem(ctx context.Context, sw *sessionWatch) {
	defer close(sw.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			p.handleEvent(ctx, sw, ev)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Debug("filesystem watcher error", zap.String("session", sw.sessionID), zap.Error(err))
		}
	}
}

func (p *Pool) handleEvent(ctx context.Context, sw *sessionWatch, ev fsnotify.Event) {
	rel := p.relPath(sw, ev.Name)
	if rel == "" || rel == "." {
		return
	}
	name := filepath.Base(ev.Name)
	if ignoreEntry(name, rel, sw.sessionDrop, sw.agentDrop) {
		return
	}

	if ev.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := p.addDirectoryRecursive(sw, ev.Name); err != nil {
				p.logger.Debug("failed to watch new directory", zap.Error(err))
			}
			return
		}
	}

	kind := kindFor(ev.Op)
	p.debounce(ctx, sw, rel, kind)
}

func kindFor(op fsnotify.Op) Kind {
	switch {
	case op&fsnotify.Remove == fsnotify.Remove, op&fsnotify.Rename == fsnotify.Rename:
		return KindRemoved
	case op&fsnotify.Create == fsnotify.Create:
		return KindAdded
	default:
		return KindChanged
	}
}

// debounce resets a per-path timer on every event, firing settle after the
// configured stability threshold of quiet time.
func (p *Pool) debounce(ctx context.Context, sw *sessionWatch, rel string, kind Kind) {
	sw.timersMu.Lock()
	defer sw.timersMu.Unlock()
	if sw.timers == nil {
		return
	}
	if t, ok := sw.timers[rel]; ok {
		t.Stop()
	}
	threshold := p.cfg.StabilityThreshold()
	if threshold <= 0 {
		threshold = time.Second
	}
	sw.timers[rel] = time.AfterFunc(threshold, func() {
		sw.timersMu.Lock()
		delete(sw.timers, rel)
		sw.timersMu.Unlock()
		p.settle(ctx, sw, rel, kind)
	})
}

func (p *Pool) settle(ctx context.Context, sw *sessionWatch, rel string, kind Kind) {
	evt := FileEvent{SessionID: sw.sessionID, RelativePath: rel, Kind: kind}
	p.publish(ctx, evt)

	isAddOrChange := kind == KindAdded || kind == KindChanged
	if p.autoLockOn && p.autoLock != nil && isAddOrChange {
		if err := p.autoLock.AutoLock(ctx, sw.sessionID, sw.agentType, rel); err != nil {
			p.logger.Debug("auto-lock failed", zap.String("session", sw.sessionID), zap.String("path", rel), zap.Error(err))
		}
	}

	if isDropFile(rel, sw.sessionDrop, sw.agentDrop) && isAddOrChange {
		if sw.onDropFile != nil {
			sw.onDropFile(evt)
		}
	}
}

func (p *Pool) publish(ctx context.Context, evt FileEvent) {
	if p.bus == nil {
		return
	}
	data := map[string]interface{}{
		"sessionId":    evt.SessionID,
		"relativePath": evt.RelativePath,
		"kind":         string(evt.Kind),
	}
	e := bus.NewEvent(events.WatcherFileChanged, eventSource, data)
	if err := p.bus.Publish(ctx, events.WatcherFileChanged, e); err != nil {
		p.logger.Debug("failed to publish watcher event", zap.Error(err))
	}
}
