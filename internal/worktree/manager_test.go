package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/gitdriver"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json"})
	return log
}

func newTestConfig() Config {
	return Config{BranchPrefix: "agent/", DefaultBranch: "main"}
}

// mockStore implements Store in memory for manager tests.
type mockStore struct {
	bySession map[string]*Worktree
}

func newMockStore() *mockStore {
	return &mockStore{bySession: make(map[string]*Worktree)}
}

func (s *mockStore) Create(ctx context.Context, wt *Worktree) error {
	s.bySession[wt.SessionID] = wt
	return nil
}

func (s *mockStore) GetBySessionID(ctx context.Context, sessionID string) (*Worktree, error) {
	return s.bySession[sessionID], nil
}

func (s *mockStore) GetByID(ctx context.Context, id string) (*Worktree, error) {
	for _, wt := range s.bySession {
		if wt.ID == id {
			return wt, nil
		}
	}
	return nil, nil
}

func (s *mockStore) Update(ctx context.Context, wt *Worktree) error {
	s.bySession[wt.SessionID] = wt
	return nil
}

func (s *mockStore) Delete(ctx context.Context, id string) error {
	for sid, wt := range s.bySession {
		if wt.ID == id {
			delete(s.bySession, sid)
		}
	}
	return nil
}

func (s *mockStore) ListActive(ctx context.Context) ([]*Worktree, error) {
	var result []*Worktree
	for _, wt := range s.bySession {
		if wt.Status == StatusActive {
			result = append(result, wt)
		}
	}
	return result, nil
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
	return string(out)
}

func setupTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "--initial-branch=main")
	runGit(t, dir, "config", "user.email", "test@test.com")
	runGit(t, dir, "config", "user.name", "Test User")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# test"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial commit")
	return dir
}

func newTestManager(t *testing.T) (*Manager, Store) {
	store := newMockStore()
	driver := gitdriver.New(newTestLogger())
	mgr, err := NewManager(newTestConfig(), store, driver, nil, newTestLogger())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return mgr, store
}

func TestManager_CreateProvisionsWorktree(t *testing.T) {
	repo := setupTestRepo(t)
	mgr, _ := newTestManager(t)

	wt, err := mgr.Create(context.Background(), CreateRequest{
		SessionID:  "session-one",
		RepoPath:   repo,
		BaseBranch: "main",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !isValidWorktreeDir(wt.Path) {
		t.Fatalf("expected valid worktree dir at %s", wt.Path)
	}
	if wt.Branch != "agent/session-one" {
		t.Errorf("unexpected branch name: %s", wt.Branch)
	}
	if wt.BaseBranch != "main" {
		t.Errorf("expected base branch main, got %s", wt.BaseBranch)
	}
}

func TestManager_CreateIsIdempotent(t *testing.T) {
	repo := setupTestRepo(t)
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	first, err := mgr.Create(ctx, CreateRequest{SessionID: "session-two", RepoPath: repo, BaseBranch: "main"})
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	second, err := mgr.Create(ctx, CreateRequest{SessionID: "session-two", RepoPath: repo, BaseBranch: "main"})
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	if first.Path != second.Path {
		t.Errorf("expected idempotent reuse, got %s then %s", first.Path, second.Path)
	}
}

func TestManager_CreateRejectsMissingBaseBranch(t *testing.T) {
	repo := setupTestRepo(t)
	mgr, _ := newTestManager(t)

	_, err := mgr.Create(context.Background(), CreateRequest{
		SessionID:  "session-three",
		RepoPath:   repo,
		BaseBranch: "does-not-exist",
	})
	if err == nil {
		t.Fatal("expected error for missing base branch")
	}
}

func TestManager_RemoveDeletesWorktree(t *testing.T) {
	repo := setupTestRepo(t)
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	wt, err := mgr.Create(ctx, CreateRequest{SessionID: "session-four", RepoPath: repo, BaseBranch: "main"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := mgr.Remove(ctx, "session-four", false); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(wt.Path); !os.IsNotExist(err) {
		t.Errorf("expected worktree directory removed, stat err = %v", err)
	}

	if _, err := mgr.GetBySessionID(ctx, "session-four"); err != nil {
		t.Fatalf("GetBySessionID after remove: %v", err)
	}
}

func TestManager_RemoveUnknownSession(t *testing.T) {
	mgr, _ := newTestManager(t)
	if err := mgr.Remove(context.Background(), "no-such-session", false); err != ErrWorktreeNotFound {
		t.Errorf("expected ErrWorktreeNotFound, got %v", err)
	}
}

func TestConfig_DeriveName(t *testing.T) {
	cfg := Config{BranchPrefix: "agent/"}
	branch, dir := cfg.DeriveName("abcdefghijklmnop")
	if branch != "agent/abcdefghijkl" {
		t.Errorf("unexpected branch: %s", branch)
	}
	if dir != "abcdefghijkl" {
		t.Errorf("unexpected dir: %s", dir)
	}
}

func TestSanitizeForBranch(t *testing.T) {
	got := SanitizeForBranch("Fix Bug #123!!", 20)
	want := "fix-bug-123"
	if got != want {
		t.Errorf("SanitizeForBranch() = %q, want %q", got, want)
	}
}
