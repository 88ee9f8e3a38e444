package lock

import (
	"path/filepath"

	"github.com/sekondbrain/cs-devops-agent/internal/common/config"
	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/events/bus"
)

// Provide builds a Registry rooted at <repoPath>/<cfg.Coordination.Dir>.
func Provide(cfg *config.Config, repoPath string, eb bus.EventBus, log *logger.Logger) (*Registry, error) {
	root := filepath.Join(repoPath, cfg.Coordination.Dir)
	return NewRegistry(root, cfg.Engine.AutoLockTTL(), eb, log)
}
