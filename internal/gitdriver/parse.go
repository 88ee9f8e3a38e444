package gitdriver

import (
	"regexp"
	"strconv"
	"strings"
)

// parseStatus parses `git status --porcelain=v1 -b` output. Tolerant of
// paths containing tabs: everything after the two-character status code and
// the following space is treated as the path, rejoined verbatim.
func parseStatus(output string) *StatusResult {
	result := &StatusResult{Clean: true}
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		if line == "" {
			continue
		}
		if i == 0 && strings.HasPrefix(line, "## ") {
			parseBranchLine(line[3:], result)
			continue
		}
		if len(line) < 3 {
			continue
		}
		code := line[:2]
		path := line[3:]
		change := FileChange{Status: strings.TrimSpace(code), Path: path}
		if strings.Contains(code, "R") {
			if parts := strings.SplitN(path, " -> ", 2); len(parts) == 2 {
				change.OrigPath = parts[0]
				change.Path = parts[1]
			}
		}
		result.Changes = append(result.Changes, change)
		result.Clean = false
	}
	return result
}

var aheadBehindRe = regexp.MustCompile(`ahead (\d+)`)
var behindRe = regexp.MustCompile(`behind (\d+)`)

func parseBranchLine(line string, result *StatusResult) {
	// Formats: "main", "main...origin/main", "main...origin/main [ahead 1, behind 2]"
	branchPart := line
	if idx := strings.Index(line, "..."); idx >= 0 {
		branchPart = line[:idx]
	} else if idx := strings.Index(line, " "); idx >= 0 {
		branchPart = line[:idx]
	}
	result.Branch = branchPart

	if m := aheadBehindRe.FindStringSubmatch(line); m != nil {
		result.Ahead, _ = strconv.Atoi(m[1])
	}
	if m := behindRe.FindStringSubmatch(line); m != nil {
		result.Behind, _ = strconv.Atoi(m[1])
	}
}

// parseShortstat parses a line like " 3 files changed, 10 insertions(+), 2 deletions(-)".
func parseShortstat(output string) (files, adds, dels int) {
	line := strings.TrimSpace(output)
	if line == "" {
		return 0, 0, 0
	}
	if m := regexp.MustCompile(`(\d+) files? changed`).FindStringSubmatch(line); m != nil {
		files, _ = strconv.Atoi(m[1])
	}
	if m := regexp.MustCompile(`(\d+) insertions?\(\+\)`).FindStringSubmatch(line); m != nil {
		adds, _ = strconv.Atoi(m[1])
	}
	if m := regexp.MustCompile(`(\d+) deletions?\(-\)`).FindStringSubmatch(line); m != nil {
		dels, _ = strconv.Atoi(m[1])
	}
	return files, adds, dels
}

// parseNumstat parses `git show --numstat --format=` lines of the form
// "<adds>\t<dels>\t<path>", tolerant of tabs embedded in the path by
// rejoining everything after the second tab-delimited column.
func parseNumstat(output string) map[string][2]int {
	stats := make(map[string][2]int)
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) < 3 {
			continue
		}
		adds, _ := strconv.Atoi(parts[0])
		dels, _ := strconv.Atoi(parts[1])
		stats[parts[2]] = [2]int{adds, dels}
	}
	return stats
}

// parseNameStatus parses `git show --name-status --format=` lines of the
// form "<status>\t<path>" (or "<status>\t<old>\t<new>" for renames).
func parseNameStatus(output string) map[string]string {
	statuses := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) < 2 {
			continue
		}
		status := parts[0]
		path := parts[1]
		if strings.HasPrefix(status, "R") {
			if fields := strings.Split(path, "\t"); len(fields) == 2 {
				path = fields[1]
			}
		}
		statuses[path] = status
	}
	return statuses
}

// stripRemotePrefix strips a "remotes/origin/" prefix for display.
func stripRemotePrefix(branch string) string {
	return strings.TrimPrefix(strings.TrimPrefix(branch, "remotes/"), "origin/")
}
