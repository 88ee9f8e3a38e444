package session

import (
	"github.com/sekondbrain/cs-devops-agent/internal/common/config"
	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/events/bus"
)

// Provide opens the SessionStore at the location configured in cfg.Session.
func Provide(cfg *config.Config, eb bus.EventBus, log *logger.Logger) (*Store, error) {
	dir, err := cfg.Session.ExpandedProfileDir()
	if err != nil {
		return nil, err
	}
	return Open(dir, cfg.Session.ProfileName, cfg.Session.RecentReposCap, eb, log)
}
