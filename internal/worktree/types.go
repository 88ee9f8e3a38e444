package worktree

import "time"

// Status is the lifecycle state of a provisioned worktree record.
type Status string

const (
	StatusActive  Status = "active"
	StatusRemoved Status = "removed"
)

// Worktree is the persisted record for a session's provisioned workspace,
// extended with session ownership and bookkeeping.
type Worktree struct {
	ID         string     `db:"id"`
	SessionID  string     `db:"session_id"`
	RepoPath   string     `db:"repo_path"`
	Path       string     `db:"path"`
	Branch     string     `db:"branch"`
	BaseBranch string     `db:"base_branch"`
	Head       string     `db:"head"`
	Bare       bool       `db:"bare"`
	Status     Status     `db:"status"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
	RemovedAt  *time.Time `db:"removed_at"`
}

// CreateRequest describes the workspace a session needs provisioned.
type CreateRequest struct {
	SessionID  string
	RepoPath   string
	BaseBranch string
}

func (r CreateRequest) Validate() error {
	if r.SessionID == "" {
		return ErrInvalidSession
	}
	if r.RepoPath == "" {
		return ErrRepoNotGit
	}
	return nil
}
