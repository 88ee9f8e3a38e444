// Command enginectl is the operator CLI for the coding-agent coordination
// engine: it wires every component (SessionStore, WorkspaceProvisioner,
// WatcherPool, CommitPipeline, LockRegistry, RebaseSupervisor,
// RecoveryScanner, ActivityService) into one process and exposes session,
// lock, rebase, and recovery operations as subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sekondbrain/cs-devops-agent/cmd/enginectl/cli"
	"github.com/sekondbrain/cs-devops-agent/internal/activity"
	"github.com/sekondbrain/cs-devops-agent/internal/commit"
	"github.com/sekondbrain/cs-devops-agent/internal/common/config"
	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/db"
	"github.com/sekondbrain/cs-devops-agent/internal/events"
	"github.com/sekondbrain/cs-devops-agent/internal/gitdriver"
	"github.com/sekondbrain/cs-devops-agent/internal/lifecycle"
	"github.com/sekondbrain/cs-devops-agent/internal/lock"
	"github.com/sekondbrain/cs-devops-agent/internal/rebase"
	"github.com/sekondbrain/cs-devops-agent/internal/recovery"
	"github.com/sekondbrain/cs-devops-agent/internal/session"
	"github.com/sekondbrain/cs-devops-agent/internal/watch"
	"github.com/sekondbrain/cs-devops-agent/internal/worktree"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	lc, cleanup, err := wire(cfg, log)
	if err != nil {
		log.Fatal("failed to wire engine components", zap.Error(err))
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	defer cancel()

	if _, err := lc.Recover(ctx); err != nil {
		log.Warn("startup recovery sweep failed", zap.Error(err))
	}

	rootCmd := cli.NewRootCmd(lc, log)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// wire constructs every collaborator package and returns the assembled
// Lifecycle plus a cleanup func releasing shared resources (event bus,
// database connection).
func wire(cfg *config.Config, log *logger.Logger) (*lifecycle.Lifecycle, func(), error) {
	providedBus, busCleanup, err := events.Provide(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("provisioning event bus: %w", err)
	}
	eb := providedBus.Bus

	dbPath, err := cfg.Database.ExpandedDatabasePath()
	if err != nil {
		return nil, nil, fmt.Errorf("resolving database path: %w", err)
	}
	sqlDB, err := db.OpenSQLite(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	cleanup := func() {
		_ = sqlDB.Close()
		_ = busCleanup()
	}

	driver := gitdriver.New(log)

	sessions, err := session.Provide(cfg, eb, log)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("provisioning session store: %w", err)
	}

	worktrees, err := worktree.Provide(sqlDB, cfg, driver, eb, log)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("provisioning worktree manager: %w", err)
	}

	activitySvc := activity.Provide(cfg, sessions, log)
	lockRouter := lock.NewRouter(cfg, sessions, eb, log)
	commits := commit.Provide(cfg, driver, sessions, eb, log, activitySvc)
	watchers := watch.Provide(cfg, eb, log, lockRouter)
	rebaseSup := rebase.Provide(driver, eb, log)
	recoveryScanner := recovery.Provide(cfg, driver, sessions, nil, eb, log)

	lc := lifecycle.Provide(cfg, driver, sessions, worktrees, watchers, commits, rebaseSup, recoveryScanner, activitySvc, lockRouter, eb, log)
	return lc, cleanup, nil
}
