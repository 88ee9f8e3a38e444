// Package lifecycle implements SessionLifecycle: Create, Close, Restart,
// Recover, and Heartbeat, the orchestration layer that sequences every
// other component (GitDriver, SessionStore, WorkspaceProvisioner,
// WatcherPool, CommitPipeline, LockRegistry, RebaseSupervisor,
// RecoveryScanner) into the operations spec §4.6 describes.
package lifecycle

import "time"

// CreateRequest describes the session a caller wants provisioned.
type CreateRequest struct {
	AgentType           string
	Task                string
	RepoPath            string
	BaseBranch          string
	RebaseIntervalHours float64
	AgentPID            int
}

// RestartRequest accepts either a stored session (SessionID set) or an
// externally provided descriptor carrying the fields needed to recreate
// one, per spec §4.6 Restart: "Accepts either a stored session or an
// externally provided descriptor."
type RestartRequest struct {
	SessionID string // if set, the stored session is looked up
	CreateRequest
}

// SessionDescriptor mirrors the stable subset of Session persisted under
// sessions/<sessionId>.json (spec §6).
type SessionDescriptor struct {
	SessionID    string    `json:"sessionId"`
	AgentID      string    `json:"agentId"`
	AgentType    string    `json:"agentType"`
	Task         string    `json:"task"`
	BranchName   string    `json:"branchName"`
	BaseBranch   string    `json:"baseBranch"`
	WorktreePath string    `json:"worktreePath"`
	RepoPath     string    `json:"repoPath"`
	Status       string    `json:"status"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
	CommitCount  int       `json:"commitCount"`
}

// AgentDescriptor is the per-agent record under agents/<agentId>.json.
type AgentDescriptor struct {
	AgentID      string    `json:"agentId"`
	AgentType    string    `json:"agentType"`
	SessionID    string    `json:"sessionId"`
	PID          int       `json:"pid,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// AgentConfig is the YAML identity/environment file written into the
// worktree as .agent-config (spec §6 persisted layout).
type AgentConfig struct {
	SessionID    string `yaml:"sessionId"`
	AgentID      string `yaml:"agentId"`
	AgentType    string `yaml:"agentType"`
	Task         string `yaml:"task"`
	BranchName   string `yaml:"branchName"`
	BaseBranch   string `yaml:"baseBranch"`
	WorktreePath string `yaml:"worktreePath"`
	RepoPath     string `yaml:"repoPath"`
}

// ToolkitSettings mirrors the engine Settings structure named in spec §6,
// seeded into config.json at toolkit initialization so the on-disk record
// reflects what the engine was configured with at the time.
type ToolkitSettings struct {
	AutoCommit         bool     `json:"autoCommit"`
	CommitIntervalMs   int      `json:"commitInterval"`
	WatchPatterns      []string `json:"watchPatterns"`
	IgnorePatterns     []string `json:"ignorePatterns"`
	AutoLock           bool     `json:"autoLock"`
	RebaseDefaultHours float64  `json:"rebaseDefaultHours"`
	WorktreeRoot       string   `json:"worktreeRoot"`
	ToolkitDir         string   `json:"toolkitDir"`
	CoordinationDir    string   `json:"coordinationDir"`
}

// ToolkitConfig is the per-repo config.json seeded on first initialization.
type ToolkitConfig struct {
	Version     int             `json:"version"`
	RepoPath    string          `json:"repoPath"`
	Initialized time.Time       `json:"initialized"`
	Settings    ToolkitSettings `json:"settings"`
}
