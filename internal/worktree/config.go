package worktree

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultRoot is the directory name, relative to repoPath, under which all
// session worktrees live.
const DefaultRoot = ".worktrees"

// DefaultBranchPrefix is used when no session-specific prefix is configured.
const DefaultBranchPrefix = "agent/"

// Config holds configuration for the WorkspaceProvisioner.
type Config struct {
	// Root is the worktree root directory name, relative to each repoPath.
	Root string `mapstructure:"root"`

	// BranchPrefix is prepended to every derived branch name.
	BranchPrefix string `mapstructure:"branchPrefix"`

	// DefaultBranch is used as BaseBranch when a session doesn't specify one.
	DefaultBranch string `mapstructure:"defaultBranch"`
}

// Validate fills in defaults for any empty fields.
func (c *Config) Validate() error {
	if c.Root == "" {
		c.Root = DefaultRoot
	}
	if c.BranchPrefix == "" {
		c.BranchPrefix = DefaultBranchPrefix
	}
	if c.DefaultBranch == "" {
		c.DefaultBranch = "main"
	}
	return nil
}

var branchSanitizeRe = regexp.MustCompile(`-+`)

// SanitizeForBranch converts arbitrary text into a safe branch/directory name
// component: lowercase, non-alphanumerics collapsed to single hyphens,
// truncated to maxLen, with no leading/trailing hyphen.
func SanitizeForBranch(text string, maxLen int) string {
	if text == "" {
		return ""
	}
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune('-')
		}
	}
	result := branchSanitizeRe.ReplaceAllString(sb.String(), "-")
	result = strings.Trim(result, "-")
	if len(result) > maxLen {
		result = strings.TrimRight(result[:maxLen], "-")
	}
	return result
}

// DeriveName derives the branch name and worktree directory name for a
// session. branchName derives from sessionID: prefix + the first 12
// characters of the session id, used as-is (not sanitized). dirName is
// that same truncated id.
func (c *Config) DeriveName(sessionID string) (branchName, dirName string) {
	short := sessionID
	if len(short) > 12 {
		short = short[:12]
	}
	branchName = c.BranchPrefix + short
	dirName = short
	return branchName, dirName
}
