// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jllopis/heuris/pkg/errors"
)

const planningSkill = `---
name: planning
description: Break a request into ordered tasks.
scripts:
  - name: create_tasks
    description: Create tasks from a plan.
    parameters:
      - name: tasks
        type: list
        required: true
---
# Planning

Split the user request into small, verifiable tasks.
`

func newTestRegistry(t *testing.T, opts ...RegistryOption) (*Registry, string) {
	t.Helper()
	root := t.TempDir()
	writeSkill(t, root, "web", webSkill)
	writeSkill(t, root, "planning", planningSkill)
	r, err := NewRegistry(root, opts...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, root
}

func TestListSorted(t *testing.T) {
	r, _ := newTestRegistry(t)
	list := r.List()
	if len(list) != 2 {
		t.Fatalf("list = %d, want 2", len(list))
	}
	if list[0].Name != "planning" || list[1].Name != "web" {
		t.Errorf("order = %q, %q", list[0].Name, list[1].Name)
	}
	if list[0].Description == "" {
		t.Error("description missing from metadata")
	}
}

func TestEnabledFilter(t *testing.T) {
	r, _ := newTestRegistry(t, WithEnabledSkills([]string{"web"}))
	if r.Has("planning") {
		t.Error("planning should be filtered out")
	}
	if !r.Has("web") {
		t.Error("web should be discoverable")
	}
	if _, err := r.Activate("planning"); !errors.IsCode(err, errors.CodeNotFound) {
		t.Errorf("Activate(planning) err = %v, want NOT_FOUND", err)
	}
}

func TestAlwaysIncludeBypassesFilter(t *testing.T) {
	r, _ := newTestRegistry(t,
		WithEnabledSkills([]string{"web"}),
		WithAlwaysInclude("planning"),
	)
	if !r.Has("planning") {
		t.Error("always-included skill should be discoverable")
	}
}

func TestActivateIdempotent(t *testing.T) {
	r, root := newTestRegistry(t)
	first, err := r.Activate("web")
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if first == "" {
		t.Fatal("instructions are empty")
	}

	// Rewrite the file; a repeated activation must return the memoized text.
	path := filepath.Join(root, "web", "SKILL.md")
	if err := os.WriteFile(path, []byte(`---
name: web
description: Changed on disk.
---
Different body.
`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	second, err := r.Activate("web")
	if err != nil {
		t.Fatalf("Activate again: %v", err)
	}
	if second != first {
		t.Errorf("activation not idempotent: %q vs %q", second, first)
	}
}

func TestActivateUnknown(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Activate("nope")
	if !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
	if !strings.Contains(err.Error(), "Skill 'nope' not found") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestToolsForMergesRegistered(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.RegisterTool("web", "fetch_page",
		ToolDecl{Name: "fetch_page", Description: "Fetch a URL."},
		func(ctx context.Context, inv Invocation, args map[string]any) (any, error) {
			return map[string]any{"ok": true}, nil
		},
	)
	// search_web is already declared in the manifest; registering its
	// implementation must not produce a duplicate schema.
	r.RegisterTool("web", "search_web",
		ToolDecl{Name: "search_web"},
		func(ctx context.Context, inv Invocation, args map[string]any) (any, error) {
			return nil, nil
		},
	)

	tools, err := r.ToolsFor(context.Background(), "web")
	if err != nil {
		t.Fatalf("ToolsFor: %v", err)
	}
	var names []string
	for _, tool := range tools {
		names = append(names, tool.Function.Name)
	}
	if len(names) != 2 || names[0] != "search_web" || names[1] != "fetch_page" {
		t.Errorf("tools = %v, want [search_web fetch_page]", names)
	}
}

func TestToolsForUnknown(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.ToolsFor(context.Background(), "nope"); !errors.IsCode(err, errors.CodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestRescanAddsAndRemoves(t *testing.T) {
	r, root := newTestRegistry(t)
	writeSkill(t, root, "answer", `---
name: answer
description: Compose the final answer.
---
Write the answer.
`)
	if err := r.Rescan(); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	if !r.Has("answer") {
		t.Error("answer should be discoverable after rescan")
	}

	if err := os.RemoveAll(filepath.Join(root, "web")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := r.Rescan(); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	if r.Has("web") {
		t.Error("web should be gone after rescan")
	}
}

func TestRescanKeepsRegisteredTools(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.RegisterTool("web", "fetch_page",
		ToolDecl{Name: "fetch_page"},
		func(ctx context.Context, inv Invocation, args map[string]any) (any, error) {
			return map[string]any{"ok": true}, nil
		},
	)
	if err := r.Rescan(); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	result := r.Invoke(context.Background(), "web", "fetch_page", nil, Invocation{})
	if result["ok"] != true {
		t.Errorf("result = %v, want ok", result)
	}
}
