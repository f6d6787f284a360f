// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jllopis/heuris/pkg/agent"
	"github.com/jllopis/heuris/pkg/llm"
	"github.com/jllopis/heuris/pkg/skills"
	"github.com/jllopis/heuris/pkg/workspace"
)

func testFactory(t *testing.T) Factory {
	t.Helper()
	skillsDir := t.TempDir()
	dir := filepath.Join(skillsDir, "answer")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	doc := "---\nname: answer\ndescription: Compose the final answer.\n---\nAnswer directly.\n"
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return func(id string, ws *workspace.Workspace) (*agent.Agent, error) {
		registry, err := skills.NewRegistry(skillsDir)
		if err != nil {
			return nil, err
		}
		provider := &llm.MockProvider{Response: "answer for " + id}
		return agent.New(provider, registry, ws)
	}
}

func newManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()
	root, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	m, err := NewManager(root, testFactory(t), opts...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(m.Stop)
	return m
}

func TestGetCreatesOnce(t *testing.T) {
	m := newManager(t)
	a, err := m.Get("alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := m.Get("alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a != b {
		t.Error("same id yielded different sessions")
	}
	if m.Len() != 1 {
		t.Errorf("len = %d, want 1", m.Len())
	}
}

func TestSessionsGetDisjointWorkspaces(t *testing.T) {
	m := newManager(t)
	a, err := m.Get("alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := m.Get("bob")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.Workspace.Root() == b.Workspace.Root() {
		t.Errorf("sessions share scratch: %s", a.Workspace.Root())
	}
}

func TestRunRoutesToSessionAgent(t *testing.T) {
	m := newManager(t)
	got, err := m.Run(context.Background(), "alice", "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "answer for alice" {
		t.Errorf("answer = %q", got)
	}
}

func TestReaperEvictsIdleSessions(t *testing.T) {
	m := newManager(t,
		WithIdleTimeout(30*time.Millisecond),
		WithReapInterval(10*time.Millisecond),
	)
	if _, err := m.Get("stale"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	m.StartReaper()

	deadline := time.Now().Add(2 * time.Second)
	for m.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if m.Len() != 0 {
		t.Fatal("idle session was not reaped")
	}

	// A fresh session after eviction works normally.
	if _, err := m.Get("fresh"); err != nil {
		t.Fatalf("Get after reap: %v", err)
	}
}

func TestRemove(t *testing.T) {
	m := newManager(t)
	if _, err := m.Get("alice"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	m.Remove("alice")
	if m.Len() != 0 {
		t.Errorf("len = %d, want 0", m.Len())
	}
	if ids := m.List(); len(ids) != 0 {
		t.Errorf("ids = %v", ids)
	}
}
