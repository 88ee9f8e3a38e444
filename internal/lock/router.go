package lock

import (
	"context"
	"sync"

	"github.com/sekondbrain/cs-devops-agent/internal/common/config"
	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/events/bus"
)

// RepoLocator resolves a session's repoPath, the only piece of session
// state Router needs. Kept narrow, mirroring activity.SessionLocator, so
// this package doesn't need to import internal/session.
type RepoLocator interface {
	RepoPathForSession(sessionID string) (string, error)
}

// Router lazily creates and caches one Registry per repoPath. A single
// Router is shared by WatcherPool (as an AutoLocker, keyed by sessionID)
// and SessionLifecycle (keyed directly by repoPath), so both ends of the
// engine always resolve to the same on-disk declaration registry for a
// given repository.
type Router struct {
	cfg      *config.Config
	sessions RepoLocator
	bus      bus.EventBus
	logger   *logger.Logger

	mu         sync.Mutex
	registries map[string]*Registry
}

// NewRouter constructs a Router. log may be nil.
func NewRouter(cfg *config.Config, sessions RepoLocator, eb bus.EventBus, log *logger.Logger) *Router {
	if log == nil {
		log = logger.Default()
	}
	return &Router{
		cfg:        cfg,
		sessions:   sessions,
		bus:        eb,
		logger:     log,
		registries: make(map[string]*Registry),
	}
}

// RegistryFor returns (creating on first use) the Registry rooted at
// repoPath's coordination directory.
func (r *Router) RegistryFor(repoPath string) (*Registry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.registries[repoPath]; ok {
		return reg, nil
	}
	reg, err := Provide(r.cfg, repoPath, r.bus, r.logger)
	if err != nil {
		return nil, err
	}
	r.registries[repoPath] = reg
	return reg, nil
}

// AutoLock implements watch.AutoLocker by resolving sessionID to its
// repoPath and delegating to that repository's Registry.
func (r *Router) AutoLock(ctx context.Context, sessionID, agent, path string) error {
	repoPath, err := r.sessions.RepoPathForSession(sessionID)
	if err != nil {
		return err
	}
	reg, err := r.RegistryFor(repoPath)
	if err != nil {
		return err
	}
	return reg.AutoLock(ctx, sessionID, agent, path)
}

// Release releases every declaration sessionID owns in repoPath's Registry.
func (r *Router) Release(ctx context.Context, sessionID, repoPath string) error {
	reg, err := r.RegistryFor(repoPath)
	if err != nil {
		return err
	}
	return reg.Release(ctx, sessionID)
}
