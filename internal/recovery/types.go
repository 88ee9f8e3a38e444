// Package recovery implements the startup sweep that re-runs contract
// analysis over commits a session hasn't processed yet, and separately
// flags session descriptor files left behind by sessions no longer known
// to the SessionStore.
package recovery

import (
	"context"

	"github.com/sekondbrain/cs-devops-agent/internal/gitdriver"
)

// ContractResult is the external analyzer's verdict on one commit.
type ContractResult struct {
	ContractChanges int
	BreakingChanges int
}

// Analyzer is the external contract-change-counter collaborator; the
// contract-generation pipeline itself lives outside this module, only
// the hook it exposes is part of this contract. A nil Analyzer is a
// no-op: commits are enumerated but never analyzed or watermarked.
type Analyzer interface {
	AnalyzeCommit(ctx context.Context, sessionID string, commit gitdriver.CommitRecord) (ContractResult, error)
}

// OrphanSession is a session descriptor file found on disk with no
// corresponding entry in the SessionStore.
type OrphanSession struct {
	RepoPath       string
	DescriptorPath string
	SessionID      string
}
