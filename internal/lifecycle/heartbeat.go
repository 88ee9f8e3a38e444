package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sekondbrain/cs-devops-agent/internal/events"
	"github.com/sekondbrain/cs-devops-agent/internal/events/bus"
)

func heartbeatPath(repoPath, toolkitDir, agentID string) string {
	return filepath.Join(repoPath, toolkitDir, "heartbeats", agentID+".beat")
}

// Heartbeat writes the current timestamp to sessionID's agent's heartbeat
// file and emits agent:heartbeat. It is the sub-component spec §6 names a
// directory for but the distilled spec never populates on its own
// (see SPEC_FULL.md's Supplemented features).
func (l *Lifecycle) Heartbeat(ctx context.Context, sessionID string) error {
	sess, err := l.sessions.GetSession(sessionID)
	if err != nil {
		return ErrSessionNotFound
	}

	path := heartbeatPath(sess.RepoPath, l.cfg.Engine.ToolkitDir, sess.AgentID)
	now := time.Now().UTC()
	if err := os.WriteFile(path, []byte(now.Format(time.RFC3339Nano)), 0o644); err != nil {
		return err
	}

	if l.bus != nil {
		evt := bus.NewEvent(events.AgentHeartbeat, eventSource, map[string]interface{}{
			"sessionId": sessionID,
			"agentId":   sess.AgentID,
			"at":        now,
		})
		_ = l.bus.Publish(ctx, events.AgentHeartbeat, evt)
	}
	return nil
}
