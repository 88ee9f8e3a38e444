package rebase

import (
	"time"

	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/events/bus"
	"github.com/sekondbrain/cs-devops-agent/internal/gitdriver"
)

// Provide builds a Supervisor bound to the shared GitDriver.
func Provide(driver *gitdriver.Driver, eb bus.EventBus, log *logger.Logger) *Supervisor {
	return NewSupervisor(driver, eb, log)
}

// IntervalFromHours converts a session's configured rebaseIntervalHours
// into a time.Duration. 0 or negative means disabled.
func IntervalFromHours(hours float64) time.Duration {
	if hours <= 0 {
		return 0
	}
	return time.Duration(hours * float64(time.Hour))
}
