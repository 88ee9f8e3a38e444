// Package session implements the SessionStore: the durable, profile-keyed
// record of sessions, their crash-recovery state, and recently used
// repositories.
package session

import "time"

// AgentType enumerates the coding agents the engine can coordinate.
type AgentType string

const (
	AgentClaude AgentType = "claude"
	AgentCline  AgentType = "cline"
	AgentCursor AgentType = "cursor"
	AgentCopilot AgentType = "copilot"
	AgentWarp   AgentType = "warp"
	AgentCustom AgentType = "custom"
)

// Status is a Session's lifecycle state.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusActive  Status = "active"
	StatusIdle    Status = "idle"
	StatusStopped Status = "stopped"
	StatusClosed  Status = "closed"
)

// AutoMergeConfig is a session's stored auto-merge setting. It is persisted
// with the Session record; no component in this module reads it, and
// RebaseSupervisor never merges a session's branch.
type AutoMergeConfig struct {
	Enabled    bool   `json:"enabled"`
	TargetRef  string `json:"targetRef,omitempty"`
	SquashOnly bool   `json:"squashOnly,omitempty"`
}

// Session is one agent's unit of work against a worktree.
type Session struct {
	SessionID           string           `json:"sessionId"`
	AgentID             string           `json:"agentId"`
	AgentType           AgentType        `json:"agentType"`
	Task                string           `json:"task"`
	RepoPath            string           `json:"repoPath"`
	WorktreePath        string           `json:"worktreePath"`
	BranchName          string           `json:"branchName"`
	BaseBranch          string           `json:"baseBranch"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
	Status              Status           `json:"status"`
	CommitCount         int              `json:"commitCount"`
	LastCommitHash      string           `json:"lastCommitHash,omitempty"`
	AgentPID            int              `json:"agentPid,omitempty"`
	RebaseIntervalHours float64          `json:"rebaseIntervalHours,omitempty"`
	AutoMergeConfig     *AutoMergeConfig `json:"autoMergeConfig,omitempty"`
}

// ProcessingState is the per-session crash-recovery watermark.
type ProcessingState struct {
	LastProcessedCommit  string    `json:"lastProcessedCommit,omitempty"`
	LastProcessedAt      time.Time `json:"lastProcessedAt,omitempty"`
	ContractChangesCount int       `json:"contractChangesCount"`
	BreakingChangesCount int       `json:"breakingChangesCount"`
}

// RecentRepo tracks a repository recently used by any session.
type RecentRepo struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	LastUsed   time.Time `json:"lastUsed"`
	AgentCount int       `json:"agentCount"`
}
