package recovery

import (
	"github.com/sekondbrain/cs-devops-agent/internal/common/config"
	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/events/bus"
	"github.com/sekondbrain/cs-devops-agent/internal/gitdriver"
	"github.com/sekondbrain/cs-devops-agent/internal/session"
)

// Provide builds a Scanner wired to the shared GitDriver and SessionStore.
// analyzer may be nil.
func Provide(cfg *config.Config, driver *gitdriver.Driver, sessions *session.Store, analyzer Analyzer, eb bus.EventBus, log *logger.Logger) *Scanner {
	return NewScanner(driver, sessions, analyzer, cfg.Engine.ToolkitDir, eb, log)
}
