package commit

import (
	"github.com/sekondbrain/cs-devops-agent/internal/common/config"
	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/events/bus"
	"github.com/sekondbrain/cs-devops-agent/internal/gitdriver"
	"github.com/sekondbrain/cs-devops-agent/internal/session"
)

// Provide builds a Pipeline wired to the shared GitDriver and SessionStore.
// activity is optional and may be nil.
func Provide(cfg *config.Config, driver *gitdriver.Driver, sessions *session.Store, eb bus.EventBus, log *logger.Logger, activity ActivityAttributor) *Pipeline {
	return NewPipeline(driver, sessions, eb, log, activity, cfg.Engine.PushOnCommit)
}
