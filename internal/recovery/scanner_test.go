package recovery

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/gitdriver"
	"github.com/sekondbrain/cs-devops-agent/internal/session"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

func setupRepoWithCommits(t *testing.T, messages []string) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "--initial-branch=main")
	runGit(t, dir, "config", "user.email", "test@test.com")
	runGit(t, dir, "config", "user.name", "Test User")
	for i, msg := range messages {
		fname := filepath.Join(dir, "f"+string(rune('a'+i))+".txt")
		if err := os.WriteFile(fname, []byte(msg), 0o644); err != nil {
			t.Fatal(err)
		}
		runGit(t, dir, "add", "-A")
		runGit(t, dir, "commit", "-m", msg)
	}
	return dir
}

type recordingAnalyzer struct {
	mu   sync.Mutex
	seen []string
}

func (a *recordingAnalyzer) AnalyzeCommit(ctx context.Context, sessionID string, commit gitdriver.CommitRecord) (ContractResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = append(a.seen, sessionID+":"+commit.ShortHash)
	return ContractResult{ContractChanges: 1}, nil
}

func TestScanner_RecoversUnprocessedCommits(t *testing.T) {
	dir := setupRepoWithCommits(t, []string{"c1", "c2"})

	store, err := session.Open(t.TempDir(), "default", 10, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.CreateSession(context.Background(), session.Session{
		SessionID: "s1", RepoPath: dir, WorktreePath: dir, Status: session.StatusActive,
	}); err != nil {
		t.Fatal(err)
	}

	analyzer := &recordingAnalyzer{}
	log := logger.Default()
	scanner := NewScanner(gitdriver.New(log), store, analyzer, ".agent-toolkit", nil, log)

	if _, err := scanner.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(analyzer.seen) != 2 {
		t.Fatalf("expected 2 commits analyzed, got %d: %+v", len(analyzer.seen), analyzer.seen)
	}

	ps, ok := store.GetProcessingState("s1")
	if !ok {
		t.Fatal("expected processing state to exist")
	}
	if ps.ContractChangesCount != 2 {
		t.Errorf("expected additive contractChangesCount 2, got %d", ps.ContractChangesCount)
	}
	if ps.LastProcessedCommit == "" {
		t.Error("expected lastProcessedCommit to be set")
	}
}

func TestScanner_ScanOrphansFindsUntrackedDescriptor(t *testing.T) {
	repoDir := t.TempDir()
	toolkitDir := ".agent-toolkit"
	sessionsDir := filepath.Join(repoDir, toolkitDir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sessionsDir, "ghost-session.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := session.Open(t.TempDir(), "default", 10, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.TouchRecentRepo(context.Background(), repoDir, "repo"); err != nil {
		t.Fatal(err)
	}

	log := logger.Default()
	scanner := NewScanner(gitdriver.New(log), store, nil, toolkitDir, nil, log)

	orphans, err := scanner.ScanOrphans(context.Background())
	if err != nil {
		t.Fatalf("ScanOrphans failed: %v", err)
	}
	if len(orphans) != 1 || orphans[0].SessionID != "ghost-session" {
		t.Errorf("unexpected orphans: %+v", orphans)
	}
}

func TestScanner_ScanOrphansSkipsKnownSessions(t *testing.T) {
	repoDir := t.TempDir()
	toolkitDir := ".agent-toolkit"
	sessionsDir := filepath.Join(repoDir, toolkitDir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sessionsDir, "known.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := session.Open(t.TempDir(), "default", 10, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.CreateSession(context.Background(), session.Session{SessionID: "known", RepoPath: repoDir}); err != nil {
		t.Fatal(err)
	}
	if err := store.TouchRecentRepo(context.Background(), repoDir, "repo"); err != nil {
		t.Fatal(err)
	}

	log := logger.Default()
	scanner := NewScanner(gitdriver.New(log), store, nil, toolkitDir, nil, log)
	orphans, err := scanner.ScanOrphans(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(orphans) != 0 {
		t.Errorf("expected no orphans for a known session, got %+v", orphans)
	}
}
