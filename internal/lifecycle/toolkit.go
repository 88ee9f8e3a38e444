package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sekondbrain/cs-devops-agent/internal/common/config"
)

var toolkitSubdirs = []string{"agents", "sessions", "activity", "commands", "heartbeats"}

// ensureToolkit creates the per-repo toolkit directory tree if absent and
// seeds config.json describing the initialization, per spec §4.6 Create
// step 2 and the persisted layout in §6.
func (l *Lifecycle) ensureToolkit(repoPath string) error {
	toolkitRoot := filepath.Join(repoPath, l.cfg.Engine.ToolkitDir)
	configPath := filepath.Join(toolkitRoot, "config.json")

	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	for _, sub := range toolkitSubdirs {
		if err := os.MkdirAll(filepath.Join(toolkitRoot, sub), 0o755); err != nil {
			return fmt.Errorf("creating toolkit dir %s: %w", sub, err)
		}
	}
	coordRoot := filepath.Join(repoPath, l.cfg.Coordination.Dir)
	for _, sub := range []string{"active-edits", "completed-edits"} {
		if err := os.MkdirAll(filepath.Join(coordRoot, sub), 0o755); err != nil {
			return fmt.Errorf("creating coordination dir %s: %w", sub, err)
		}
	}

	tkConfig := ToolkitConfig{
		Version:     1,
		RepoPath:    repoPath,
		Initialized: time.Now().UTC(),
		Settings:    settingsFromConfig(l.cfg),
	}
	return writeJSONAtomic(configPath, tkConfig)
}

func settingsFromConfig(cfg *config.Config) ToolkitSettings {
	return ToolkitSettings{
		AutoCommit:         cfg.Engine.AutoCommit,
		CommitIntervalMs:   cfg.Engine.CommitIntervalMs,
		WatchPatterns:      cfg.Engine.WatchPatterns,
		IgnorePatterns:     cfg.Engine.IgnorePatterns,
		AutoLock:           cfg.Engine.AutoLock,
		RebaseDefaultHours: cfg.Engine.RebaseDefaultHours,
		WorktreeRoot:       cfg.Worktree.Root,
		ToolkitDir:         cfg.Engine.ToolkitDir,
		CoordinationDir:    cfg.Coordination.Dir,
	}
}

func writeJSONAtomic(path string, v interface{}) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
