// Package events provides event types and utilities for the coordination engine's event bus.
package events

// Event channels for sessions.
const (
	SessionReported = "session:reported"
	SessionClosed   = "session:closed"
)

// Event channels for the recent-repo tracker.
const (
	RecentReposUpdated = "recent-repos:updated"
)

// Event channels for agents and instances.
const (
	AgentRegistered = "agent:registered"
	AgentHeartbeat  = "agent:heartbeat"
	InstanceDeleted = "instance:deleted"
)

// Event channels for the file watcher.
const (
	WatcherFileChanged = "watcher:file-changed"
)

// Event channels for the commit pipeline.
const (
	CommitTriggered = "commit:triggered"
	CommitCompleted = "commit:completed"
)

// Event channels for the workspace provisioner.
const (
	WorktreeRemoteRebindFailed = "worktree:remote-rebind-failed"
)

// Event channels for file-level coordination (LockRegistry).
const (
	LockChanged = "lock:changed"
)

// Event channels for the rebase supervisor.
const (
	RebaseWatcherCompleted = "rebase-watcher:completed"
)

// Event channels for the recovery scanner.
const (
	RecoveryOrphansFound = "recovery:orphans-found"
)

// BuildSessionSubject namespaces a session-scoped channel, e.g. for per-session
// queue-group subscribers on a distributed bus.
func BuildSessionSubject(channel, sessionID string) string {
	return channel + "." + sessionID
}
