package watch

import (
	"github.com/sekondbrain/cs-devops-agent/internal/common/config"
	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/events/bus"
)

// Provide builds a Pool tuned from cfg.Watch. autoLocker
// may be nil; in that case auto-lock synthesis is skipped regardless of
// cfg.Engine.AutoLock.
func Provide(cfg *config.Config, eb bus.EventBus, log *logger.Logger, autoLocker AutoLocker) *Pool {
	return NewPool(cfg.Watch, eb, log, autoLocker, cfg.Engine.AutoLock)
}
