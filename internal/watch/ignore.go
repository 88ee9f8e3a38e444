package watch

import "strings"

// ignoredDirs are skipped entirely when registering recursive watches:
// worktree-root and build-output directories that never need file events.
var ignoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".next":        true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"vendor":       true,
}

func isIgnoredDir(name string) bool {
	return ignoredDirs[name]
}

// shortSessionID is the drop-file-naming truncation of a sessionId,
// resolved as the first 8 characters, falling back to the full id when
// shorter (see DESIGN.md).
func shortSessionID(sessionID string) string {
	if len(sessionID) <= 8 {
		return sessionID
	}
	return sessionID[:8]
}

// dropFileNames returns the two filenames (relative to worktreePath) that
// trigger a commit for this session: the session-scoped drop file and the
// shared per-agent fallback.
func dropFileNames(sessionID, agentType string) (sessionDrop, agentDrop string) {
	sessionDrop = ".devops-commit-" + shortSessionID(sessionID) + ".msg"
	agentDrop = "." + agentType + "-commit-msg"
	return sessionDrop, agentDrop
}

// DropFileNames is the exported form of dropFileNames, used by callers that
// need to clean up a session's drop files without subscribing a watcher.
func DropFileNames(sessionID, agentType string) (sessionDrop, agentDrop string) {
	return dropFileNames(sessionID, agentType)
}

// isDropFile reports whether relPath (forward-slash, relative to
// worktreePath) is one of the two drop files for this session.
func isDropFile(relPath, sessionDrop, agentDrop string) bool {
	return relPath == sessionDrop || relPath == agentDrop
}

// ignoreEntry reports whether a directory entry (file or dir) named `name`
// at relative path `relPath` should be excluded from watching, except for
// the session's own drop files which are dotfiles that must still be seen.
func ignoreEntry(name, relPath, sessionDrop, agentDrop string) bool {
	if isDropFile(relPath, sessionDrop, agentDrop) {
		return false
	}
	if strings.HasPrefix(name, ".") {
		return true
	}
	return isIgnoredDir(name)
}
