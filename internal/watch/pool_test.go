package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sekondbrain/cs-devops-agent/internal/common/config"
)

type fakeAutoLocker struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeAutoLocker) AutoLock(ctx context.Context, sessionID, agent, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
	return nil
}

func (f *fakeAutoLocker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func fastConfig() config.WatchConfig {
	return config.WatchConfig{StabilityThresholdMs: 50, PollIntervalMs: 10}
}

func TestPool_SubscribeDetectsDropFileChange(t *testing.T) {
	dir := t.TempDir()
	pool := NewPool(fastConfig(), nil, nil, nil, false)

	events := make(chan FileEvent, 4)
	err := pool.Subscribe("sess-1", "claude", dir, func(evt FileEvent) {
		events <- evt
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer pool.Unsubscribe("sess-1")

	dropPath := filepath.Join(dir, ".devops-commit-sess-1.msg")
	if err := os.WriteFile(dropPath, []byte("feat: x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-events:
		if evt.SessionID != "sess-1" {
			t.Errorf("unexpected session id: %s", evt.SessionID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for drop file event")
	}
}

func TestPool_SubscribeRejectsDuplicate(t *testing.T) {
	dir := t.TempDir()
	pool := NewPool(fastConfig(), nil, nil, nil, false)
	if err := pool.Subscribe("sess-2", "claude", dir, nil); err != nil {
		t.Fatalf("first subscribe failed: %v", err)
	}
	defer pool.Unsubscribe("sess-2")
	if err := pool.Subscribe("sess-2", "claude", dir, nil); err != ErrAlreadySubscribed {
		t.Errorf("expected ErrAlreadySubscribed, got %v", err)
	}
}

func TestPool_UnsubscribeUnknownSession(t *testing.T) {
	pool := NewPool(fastConfig(), nil, nil, nil, false)
	if err := pool.Unsubscribe("missing"); err != ErrNotSubscribed {
		t.Errorf("expected ErrNotSubscribed, got %v", err)
	}
}

func TestIgnoreEntry_ExcludesDotfilesButKeepsDropFiles(t *testing.T) {
	sessionDrop, agentDrop := dropFileNames("sess-1", "claude")
	if !ignoreEntry(".env", ".env", sessionDrop, agentDrop) {
		t.Error("expected .env to be ignored")
	}
	if ignoreEntry(sessionDrop, sessionDrop, sessionDrop, agentDrop) {
		t.Error("expected session drop file not to be ignored")
	}
	if ignoreEntry(agentDrop, agentDrop, sessionDrop, agentDrop) {
		t.Error("expected agent drop file not to be ignored")
	}
	if !ignoreEntry("node_modules", "node_modules", sessionDrop, agentDrop) {
		t.Error("expected node_modules to be ignored")
	}
}

func TestShortSessionID_TruncatesLongIDs(t *testing.T) {
	if got := shortSessionID("abcdefghijklmnop"); got != "abcdefgh" {
		t.Errorf("unexpected truncation: %s", got)
	}
	if got := shortSessionID("short"); got != "short" {
		t.Errorf("unexpected passthrough: %s", got)
	}
}

func TestPool_AutoLocksOnFileChangeWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	locker := &fakeAutoLocker{}
	pool := NewPool(fastConfig(), nil, nil, locker, true)

	if err := pool.Subscribe("sess-3", "claude", dir, nil); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer pool.Unsubscribe("sess-3")

	if err := os.WriteFile(filepath.Join(dir, "work.go"), []byte("package x"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && locker.callCount() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if locker.callCount() == 0 {
		t.Fatal("expected AutoLock to be invoked for a tracked file change")
	}
}
