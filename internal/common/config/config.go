// Package config provides configuration management for the coordination engine.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the engine.
type Config struct {
	Engine       EngineConfig       `mapstructure:"engine"`
	Session      SessionConfig      `mapstructure:"session"`
	Worktree     WorktreeConfig     `mapstructure:"worktree"`
	Watch        WatchConfig        `mapstructure:"watch"`
	Coordination CoordinationConfig `mapstructure:"coordination"`
	Events       EventsConfig       `mapstructure:"events"`
	NATS         NATSConfig         `mapstructure:"nats"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// EngineConfig holds top-level engine behavior toggles.
type EngineConfig struct {
	// AutoCommit enables the CommitPipeline's debounced commit-on-drop-file behavior.
	AutoCommit bool `mapstructure:"autoCommit"`
	// CommitIntervalMs is the debounce window, in milliseconds, after the last
	// drop-file write before a commit is attempted.
	CommitIntervalMs int `mapstructure:"commitInterval"`
	// PushOnCommit controls whether a successful commit is immediately pushed.
	// Defaults to true.
	PushOnCommit bool `mapstructure:"pushOnCommit"`
	// WatchPatterns is recorded in each repo's toolkit config.json. The
	// WatcherPool does not read it and watches every non-ignored path.
	WatchPatterns []string `mapstructure:"watchPatterns"`
	// IgnorePatterns is recorded in each repo's toolkit config.json. The
	// WatcherPool does not read it; its ignore predicate is built in.
	IgnorePatterns []string `mapstructure:"ignorePatterns"`
	// AutoLock enables LockRegistry auto-locking on watched file changes.
	AutoLock bool `mapstructure:"autoLock"`
	// AutoLockTTLSec bounds how long an auto-lock declaration stays live
	// without a refreshing write before LockRegistry treats it as expired.
	AutoLockTTLSec int `mapstructure:"autoLockTTLSec"`
	// RebaseDefaultHours is applied to sessions that don't specify their own interval. 0 disables.
	RebaseDefaultHours float64 `mapstructure:"rebaseDefaultHours"`
	// ToolkitDir is the per-repo directory name holding agents/sessions/activity/etc.
	ToolkitDir string `mapstructure:"toolkitDir"`
}

// CommitInterval returns the debounce window as a time.Duration.
func (e *EngineConfig) CommitInterval() time.Duration {
	return time.Duration(e.CommitIntervalMs) * time.Millisecond
}

// AutoLockTTL returns the auto-lock expiry as a time.Duration.
func (e *EngineConfig) AutoLockTTL() time.Duration {
	return time.Duration(e.AutoLockTTLSec) * time.Second
}

// SessionConfig holds the SessionStore's JSON profile store configuration.
type SessionConfig struct {
	ProfileDir     string `mapstructure:"profileDir"`
	ProfileName    string `mapstructure:"profileName"`
	RecentReposCap int    `mapstructure:"recentReposCap"`
}

// ExpandedProfileDir expands a leading ~ in the configured profile directory.
func (s *SessionConfig) ExpandedProfileDir() (string, error) {
	if strings.HasPrefix(s.ProfileDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, s.ProfileDir[2:]), nil
	}
	return s.ProfileDir, nil
}

// WorktreeConfig holds Git worktree configuration for concurrent agent execution.
type WorktreeConfig struct {
	Root          string `mapstructure:"root"`          // worktree root, relative to repoPath, default ".worktrees"
	BranchPrefix  string `mapstructure:"branchPrefix"`   // default "agent/"
	DefaultBranch string `mapstructure:"defaultBranch"`  // default "main"
}

// WatchConfig holds file-watcher debounce tuning.
type WatchConfig struct {
	StabilityThresholdMs int `mapstructure:"stabilityThresholdMs"` // default 1000
	PollIntervalMs       int `mapstructure:"pollIntervalMs"`       // default 500
}

func (w *WatchConfig) StabilityThreshold() time.Duration {
	return time.Duration(w.StabilityThresholdMs) * time.Millisecond
}

func (w *WatchConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalMs) * time.Millisecond
}

// CoordinationConfig holds LockRegistry directory configuration.
type CoordinationConfig struct {
	Dir string `mapstructure:"dir"` // coordination root, relative to repoPath, default ".agent-coordination"
}

// EventsConfig holds event bus namespace configuration.
type EventsConfig struct {
	// Namespace isolates queue-group subscribers across deployments/instances.
	Namespace string `mapstructure:"namespace"`
}

// NATSConfig holds NATS messaging configuration, used only when a non-empty URL
// opts the engine into the distributed event bus instead of the in-memory one.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClusterID     string `mapstructure:"clusterId"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// DatabaseConfig holds the SQLite backing file shared by components that
// need relational persistence (currently the WorkspaceProvisioner's worktree
// records). The SessionStore itself is a JSON profile store, not SQLite
// — see internal/session.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// detectDefaultLogFormat returns "json" in non-interactive/production environments
// and "text" for terminal/development use.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("ENGINE_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.autoCommit", true)
	v.SetDefault("engine.commitInterval", 1000)
	v.SetDefault("engine.pushOnCommit", true)
	v.SetDefault("engine.watchPatterns", []string{})
	v.SetDefault("engine.ignorePatterns", []string{"node_modules", ".git", "dist", "build", "target", "vendor"})
	v.SetDefault("engine.autoLock", true)
	v.SetDefault("engine.autoLockTTLSec", 120)
	v.SetDefault("engine.rebaseDefaultHours", 0)
	v.SetDefault("engine.toolkitDir", ".agent-toolkit")

	v.SetDefault("session.profileDir", "~/.agent-engine/profiles")
	v.SetDefault("session.profileName", "default")
	v.SetDefault("session.recentReposCap", 10)

	v.SetDefault("worktree.root", ".worktrees")
	v.SetDefault("worktree.branchPrefix", "agent/")
	v.SetDefault("worktree.defaultBranch", "main")

	v.SetDefault("watch.stabilityThresholdMs", 1000)
	v.SetDefault("watch.pollIntervalMs", 500)

	v.SetDefault("coordination.dir", ".agent-coordination")

	v.SetDefault("events.namespace", "")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clusterId", "engine-cluster")
	v.SetDefault("nats.clientId", "engine-client")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("database.path", "./engine-state.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix ENGINE_ with snake_case naming.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("logging.level", "ENGINE_LOG_LEVEL")
	_ = v.BindEnv("events.namespace", "ENGINE_EVENTS_NAMESPACE")
	_ = v.BindEnv("database.path", "ENGINE_DB_PATH")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agent-engine/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Engine.CommitIntervalMs <= 0 {
		errs = append(errs, "engine.commitInterval must be positive")
	}
	if cfg.Engine.ToolkitDir == "" {
		errs = append(errs, "engine.toolkitDir must not be empty")
	}
	if cfg.Worktree.Root == "" {
		errs = append(errs, "worktree.root must not be empty")
	}
	if cfg.Session.ProfileName == "" {
		errs = append(errs, "session.profileName must not be empty")
	}
	if cfg.Session.RecentReposCap <= 0 {
		errs = append(errs, "session.recentReposCap must be positive")
	}
	if cfg.Coordination.Dir == "" {
		errs = append(errs, "coordination.dir must not be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// ExpandedDatabasePath expands a leading ~ in the configured database path.
func (d *DatabaseConfig) ExpandedDatabasePath() (string, error) {
	if strings.HasPrefix(d.Path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, d.Path[2:]), nil
	}
	return d.Path, nil
}
