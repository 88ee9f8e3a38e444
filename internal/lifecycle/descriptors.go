package lifecycle

import (
	"encoding/json"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sekondbrain/cs-devops-agent/internal/session"
	"github.com/sekondbrain/cs-devops-agent/internal/watch"
)

func sessionDescriptorPath(repoPath, toolkitDir, sessionID string) string {
	return filepath.Join(repoPath, toolkitDir, "sessions", sessionID+".json")
}

func agentDescriptorPath(repoPath, toolkitDir, agentID string) string {
	return filepath.Join(repoPath, toolkitDir, "agents", agentID+".json")
}

func agentConfigPath(worktreePath string) string {
	return filepath.Join(worktreePath, ".agent-config")
}

func descriptorFromSession(sess session.Session) SessionDescriptor {
	return SessionDescriptor{
		SessionID:    sess.SessionID,
		AgentID:      sess.AgentID,
		AgentType:    string(sess.AgentType),
		Task:         sess.Task,
		BranchName:   sess.BranchName,
		BaseBranch:   sess.BaseBranch,
		WorktreePath: sess.WorktreePath,
		RepoPath:     sess.RepoPath,
		Status:       string(sess.Status),
		Created:      sess.CreatedAt,
		Updated:      sess.UpdatedAt,
		CommitCount:  sess.CommitCount,
	}
}

// writeSessionArtifacts writes the session descriptor, agent descriptor,
// and in-worktree .agent-config file, per spec §4.6 Create step 5.
func (l *Lifecycle) writeSessionArtifacts(sess session.Session) error {
	desc := descriptorFromSession(sess)
	if err := writeJSONAtomic(sessionDescriptorPath(sess.RepoPath, l.cfg.Engine.ToolkitDir, sess.SessionID), desc); err != nil {
		return err
	}

	agentDesc := AgentDescriptor{
		AgentID:      sess.AgentID,
		AgentType:    string(sess.AgentType),
		SessionID:    sess.SessionID,
		PID:          sess.AgentPID,
		RegisteredAt: sess.CreatedAt,
	}
	if err := writeJSONAtomic(agentDescriptorPath(sess.RepoPath, l.cfg.Engine.ToolkitDir, sess.AgentID), agentDesc); err != nil {
		return err
	}

	agentCfg := AgentConfig{
		SessionID:    sess.SessionID,
		AgentID:      sess.AgentID,
		AgentType:    string(sess.AgentType),
		Task:         sess.Task,
		BranchName:   sess.BranchName,
		BaseBranch:   sess.BaseBranch,
		WorktreePath: sess.WorktreePath,
		RepoPath:     sess.RepoPath,
	}
	encoded, err := yaml.Marshal(agentCfg)
	if err != nil {
		return err
	}
	return os.WriteFile(agentConfigPath(sess.WorktreePath), encoded, 0o644)
}

// removeSessionArtifacts deletes the session descriptor, agent descriptor,
// heartbeat file, and both drop files the session owns, per spec §4.6 Close
// and Restart step 2. Lock declarations are not touched here.
func (l *Lifecycle) removeSessionArtifacts(sess session.Session) {
	_ = os.Remove(sessionDescriptorPath(sess.RepoPath, l.cfg.Engine.ToolkitDir, sess.SessionID))
	_ = os.Remove(agentDescriptorPath(sess.RepoPath, l.cfg.Engine.ToolkitDir, sess.AgentID))
	_ = os.Remove(heartbeatPath(sess.RepoPath, l.cfg.Engine.ToolkitDir, sess.AgentID))

	sessionDrop, agentDrop := watch.DropFileNames(sess.SessionID, string(sess.AgentType))
	_ = os.Remove(filepath.Join(sess.WorktreePath, sessionDrop))
	_ = os.Remove(filepath.Join(sess.WorktreePath, agentDrop))
}

func readSessionDescriptor(path string) (*SessionDescriptor, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var desc SessionDescriptor
	if err := json.Unmarshal(content, &desc); err != nil {
		return nil, err
	}
	return &desc, nil
}
