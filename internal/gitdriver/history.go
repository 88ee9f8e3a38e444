package gitdriver

import (
	"context"
	"strconv"
	"strings"
	"time"
)

const (
	historyFallbackCount = 10
)

// History returns commits since the merge-base with baseBranch, falling back
// to `base` itself, then to the last `limit` commits if neither ref resolves.
func (d *Driver) History(ctx context.Context, repo, baseBranch string, limit int) ([]CommitRecord, error) {
	var records []CommitRecord
	err := d.withRepoLock(repo, func() error {
		revRange := d.resolveHistoryRange(ctx, repo, baseBranch, limit)
		out, err := d.run(ctx, "log", repo, append([]string{"log", "--format=%H|%h|%an|%aI|%s"}, revRange...)...)
		if err != nil {
			return err
		}
		records = parseLogLines(out)
		for i := range records {
			statOut, _ := d.run(ctx, "show", repo, "show", "--shortstat", "--format=", records[i].Hash)
			records[i].FilesChanged, records[i].Additions, records[i].Deletions = parseShortstat(statOut)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// resolveHistoryRange must run while holding the repo lock.
func (d *Driver) resolveHistoryRange(ctx context.Context, repo, baseBranch string, limit int) []string {
	if mergeBase, err := d.run(ctx, "merge-base", repo, "merge-base", baseBranch, "HEAD"); err == nil {
		mb := strings.TrimSpace(mergeBase)
		if mb != "" {
			return []string{mb + "..HEAD"}
		}
	}
	if d.branchExistsLocked(ctx, repo, baseBranch) {
		return []string{baseBranch + "..HEAD"}
	}
	n := limit
	if n <= 0 {
		n = historyFallbackCount
	}
	return []string{"-n", strconv.Itoa(n), "HEAD"}
}

func parseLogLines(out string) []CommitRecord {
	var records []CommitRecord
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 5)
		if len(parts) < 5 {
			continue
		}
		date, _ := time.Parse(time.RFC3339, parts[3])
		records = append(records, CommitRecord{
			Hash:      parts[0],
			ShortHash: parts[1],
			Author:    parts[2],
			Date:      date,
			Message:   parts[4],
		})
	}
	return records
}

// CommitsSince enumerates commits strictly after `since` (exclusive) up to
// HEAD on the current branch, or the last `fallbackLimit` commits if since
// is empty.
func (d *Driver) CommitsSince(ctx context.Context, repo, since string, fallbackLimit int) ([]CommitRecord, error) {
	var records []CommitRecord
	err := d.withRepoLock(repo, func() error {
		var revRange string
		if since != "" {
			revRange = since + "..HEAD"
		}
		args := []string{"log", "--format=%H|%h|%an|%aI|%s", "--reverse"}
		if revRange != "" {
			args = append(args, revRange)
		} else {
			n := fallbackLimit
			if n <= 0 {
				n = historyFallbackCount
			}
			args = append(args, "-n", strconv.Itoa(n), "HEAD")
		}
		out, err := d.run(ctx, "log", repo, args...)
		if err != nil {
			return err
		}
		records = parseLogLines(out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
