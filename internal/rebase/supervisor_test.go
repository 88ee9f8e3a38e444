package rebase

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/sekondbrain/cs-devops-agent/internal/common/logger"
	"github.com/sekondbrain/cs-devops-agent/internal/gitdriver"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

// setupRemoteAndClone builds a bare "origin" repo and a clone with a
// divergent base branch, so a rebase has real work to do.
func setupRemoteAndClone(t *testing.T) (clone, base string) {
	t.Helper()
	remote := t.TempDir()
	runGit(t, remote, "init", "--bare", "--initial-branch=main")

	seed := t.TempDir()
	runGit(t, seed, "init", "--initial-branch=main")
	runGit(t, seed, "config", "user.email", "test@test.com")
	runGit(t, seed, "config", "user.name", "Test User")
	if err := os.WriteFile(filepath.Join(seed, "a.txt"), []byte("base\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, seed, "add", "-A")
	runGit(t, seed, "commit", "-m", "initial")
	runGit(t, seed, "remote", "add", "origin", remote)
	runGit(t, seed, "push", "origin", "main")

	clone = t.TempDir()
	runGit(t, clone, "clone", remote, clone)
	runGit(t, clone, "config", "user.email", "test@test.com")
	runGit(t, clone, "config", "user.name", "Test User")

	// Advance origin/main past the clone's HEAD.
	if err := os.WriteFile(filepath.Join(seed, "b.txt"), []byte("upstream change\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, seed, "add", "-A")
	runGit(t, seed, "commit", "-m", "upstream commit")
	runGit(t, seed, "push", "origin", "main")

	return clone, "main"
}

func newTestSupervisor() *Supervisor {
	log := logger.Default()
	return NewSupervisor(gitdriver.New(log), nil, log)
}

func TestSupervisor_ForceCheckRebasesSuccessfully(t *testing.T) {
	clone, base := setupRemoteAndClone(t)
	s := newTestSupervisor()
	if err := s.Schedule("sess-1", clone, base, 0); err != nil {
		t.Fatalf("Schedule with 0 interval should be a no-op, got: %v", err)
	}

	// ForceCheck on an unscheduled session should fail.
	if _, err := s.ForceCheck(context.Background(), "sess-1"); err != ErrNotScheduled {
		t.Fatalf("expected ErrNotScheduled for a 0-interval (never registered) session, got %v", err)
	}

	if err := s.Schedule("sess-1", clone, base, time.Hour); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	defer s.Cancel("sess-1")

	out, err := s.ForceCheck(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("ForceCheck failed: %v", err)
	}
	if out.Code != OutcomeOK {
		t.Errorf("expected OutcomeOK, got %s: %s", out.Code, out.Message)
	}
}

func TestSupervisor_PauseAndResumeToggleSchedule(t *testing.T) {
	clone, base := setupRemoteAndClone(t)
	s := newTestSupervisor()
	if err := s.Schedule("sess-2", clone, base, time.Hour); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	defer s.Cancel("sess-2")

	sch, err := s.get("sess-2")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if err := s.Pause("sess-2"); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if !sch.paused.Load() {
		t.Error("expected schedule to be paused after Pause")
	}
	if err := s.Resume("sess-2"); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if sch.paused.Load() {
		t.Error("expected schedule to be running after Resume")
	}
}

func TestSupervisor_CancelUnknownSession(t *testing.T) {
	s := newTestSupervisor()
	if err := s.Cancel("missing"); err != ErrNotScheduled {
		t.Errorf("expected ErrNotScheduled, got %v", err)
	}
}

func TestIntervalFromHours(t *testing.T) {
	if got := IntervalFromHours(0); got != 0 {
		t.Errorf("expected 0 for disabled interval, got %v", got)
	}
	if got := IntervalFromHours(1.5); got != 90*time.Minute {
		t.Errorf("expected 90m, got %v", got)
	}
}
