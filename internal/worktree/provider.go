package worktree

import (
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/sekondbrain/cs-devops-agent/internal/common/config"
	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/events/bus"
	"github.com/sekondbrain/cs-devops-agent/internal/gitdriver"
)

// Provide wires a Manager from the shared database connection, the
// repository-serializing GitDriver, and (optionally) the event bus used to
// surface remote-rebind warnings.
func Provide(db *sql.DB, cfg *config.Config, driver *gitdriver.Driver, eb bus.EventBus, log *logger.Logger) (*Manager, error) {
	store, err := NewSQLiteStore(sqlx.NewDb(db, "sqlite3"))
	if err != nil {
		return nil, err
	}
	return NewManager(Config{
		Root:          cfg.Worktree.Root,
		BranchPrefix:  cfg.Worktree.BranchPrefix,
		DefaultBranch: cfg.Worktree.DefaultBranch,
	}, store, driver, eb, log)
}
