package session

import (
	"context"
	"testing"
)

func TestStore_CreateAndGetSession(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, "default", 10, nil, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	sess := Session{
		SessionID:  "sess-1",
		AgentType:  AgentClaude,
		RepoPath:   "/repo",
		BranchName: "agent/sess-1",
		BaseBranch: "main",
		Status:     StatusWaiting,
	}
	if err := store.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := store.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.AgentType != AgentClaude {
		t.Errorf("unexpected agent type: %s", got.AgentType)
	}
}

func TestStore_GetSessionNotFound(t *testing.T) {
	store, err := Open(t.TempDir(), "default", 10, nil, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := store.GetSession("missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_CreateSessionDuplicateRejected(t *testing.T) {
	store, _ := Open(t.TempDir(), "default", 10, nil, nil)
	ctx := context.Background()
	sess := Session{SessionID: "dup", RepoPath: "/repo"}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if err := store.CreateSession(ctx, sess); err == nil {
		t.Fatal("expected error creating duplicate session")
	}
}

func TestStore_UpdateSessionPersists(t *testing.T) {
	dir := t.TempDir()
	store, _ := Open(dir, "default", 10, nil, nil)
	ctx := context.Background()
	if err := store.CreateSession(ctx, Session{SessionID: "s1", RepoPath: "/repo", Status: StatusWaiting}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateSession(ctx, "s1", func(s *Session) { s.Status = StatusActive }); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	reopened, err := Open(dir, "default", 10, nil, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, err := reopened.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession after reopen failed: %v", err)
	}
	if got.Status != StatusActive {
		t.Errorf("expected status active after reopen, got %s", got.Status)
	}
}

func TestStore_CloseSessionRecomputesAgentCount(t *testing.T) {
	dir := t.TempDir()
	store, _ := Open(dir, "default", 10, nil, nil)
	ctx := context.Background()

	if err := store.CreateSession(ctx, Session{SessionID: "a", RepoPath: "/repo", Status: StatusActive}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateSession(ctx, Session{SessionID: "b", RepoPath: "/repo", Status: StatusActive}); err != nil {
		t.Fatal(err)
	}
	if err := store.TouchRecentRepo(ctx, "/repo", "repo"); err != nil {
		t.Fatal(err)
	}
	if err := store.RecomputeAgentCounts(ctx); err != nil {
		t.Fatal(err)
	}
	repos := store.ListRecentRepos()
	if len(repos) != 1 || repos[0].AgentCount != 2 {
		t.Fatalf("expected agentCount 2, got %+v", repos)
	}

	if err := store.CloseSession(ctx, "a"); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}
	repos = store.ListRecentRepos()
	if repos[0].AgentCount != 1 {
		t.Errorf("expected agentCount 1 after close, got %d", repos[0].AgentCount)
	}
}

func TestStore_TouchRecentRepoEnforcesCap(t *testing.T) {
	store, _ := Open(t.TempDir(), "default", 2, nil, nil)
	ctx := context.Background()
	for _, p := range []string{"/a", "/b", "/c"} {
		if err := store.TouchRecentRepo(ctx, p, p); err != nil {
			t.Fatal(err)
		}
	}
	repos := store.ListRecentRepos()
	if len(repos) != 2 {
		t.Fatalf("expected cap 2, got %d", len(repos))
	}
	if repos[0].Path != "/c" || repos[1].Path != "/b" {
		t.Errorf("unexpected ordering: %+v", repos)
	}
}

func TestStore_ProcessingStateRoundTrip(t *testing.T) {
	store, _ := Open(t.TempDir(), "default", 10, nil, nil)
	ctx := context.Background()
	if err := store.UpdateProcessingState(ctx, "s1", func(ps *ProcessingState) {
		ps.LastProcessedCommit = "abc123"
		ps.ContractChangesCount = 1
	}); err != nil {
		t.Fatalf("UpdateProcessingState failed: %v", err)
	}
	ps, ok := store.GetProcessingState("s1")
	if !ok {
		t.Fatal("expected processing state to exist")
	}
	if ps.LastProcessedCommit != "abc123" {
		t.Errorf("unexpected watermark: %s", ps.LastProcessedCommit)
	}
}
