package gitdriver

import "context"

// CommitDiff returns per-file numstat + name-status + truncated patch for
// one commit. Diffs are capped at diffByteCap with a marker.
func (d *Driver) CommitDiff(ctx context.Context, repo, hash string) ([]FileDiff, error) {
	var diffs []FileDiff
	err := d.withRepoLock(repo, func() error {
		numstatOut, err := d.run(ctx, "numstat", repo, "show", "--numstat", "--format=", hash)
		if err != nil {
			return err
		}
		nameStatusOut, err := d.run(ctx, "name-status", repo, "show", "--name-status", "--format=", hash)
		if err != nil {
			return err
		}
		stats := parseNumstat(numstatOut)
		statuses := parseNameStatus(nameStatusOut)

		for path, stat := range stats {
			patchOut, _ := d.run(ctx, "patch", repo, "show", "--format=", hash, "--", path)
			patch, truncated := truncateDiff(patchOut)
			diffs = append(diffs, FileDiff{
				Path:      path,
				Status:    statuses[path],
				Additions: stat[0],
				Deletions: stat[1],
				Patch:     patch,
				Truncated: truncated,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return diffs, nil
}

func truncateDiff(patch string) (string, bool) {
	if len(patch) <= diffByteCap {
		return patch, false
	}
	return patch[:diffByteCap] + "\n... [diff truncated]", true
}
