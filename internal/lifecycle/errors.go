package lifecycle

import "errors"

var (
	// ErrRepoInvalid is returned by Create when repoPath isn't a usable
	// Git working tree (no .git, unresolvable current branch).
	ErrRepoInvalid = errors.New("repository is not a usable git working tree")

	// ErrSessionNotFound is returned by Close/Restart/Heartbeat when
	// sessionID has no stored session.
	ErrSessionNotFound = errors.New("session not found")
)
