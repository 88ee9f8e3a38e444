package activity

import (
	"github.com/sekondbrain/cs-devops-agent/internal/common/config"
	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
)

// Provide builds a Service rooted at cfg.Engine.ToolkitDir.
func Provide(cfg *config.Config, sessions SessionLocator, log *logger.Logger) *Service {
	return NewService(sessions, cfg.Engine.ToolkitDir, log)
}
