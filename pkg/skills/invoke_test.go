// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestInvokeUnknownSkill(t *testing.T) {
	r, _ := newTestRegistry(t)
	result := r.Invoke(context.Background(), "nope", "anything", nil, Invocation{})
	if result["error"] != "Skill 'nope' not found" {
		t.Errorf("result = %v", result)
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	r, _ := newTestRegistry(t)
	result := r.Invoke(context.Background(), "web", "no_such_tool", nil, Invocation{})
	if result["error"] != "Script 'no_such_tool' not found for skill 'web'" {
		t.Errorf("result = %v", result)
	}
}

func TestInvokeSuccess(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.RegisterTool("web", "search_web",
		ToolDecl{Name: "search_web"},
		func(ctx context.Context, inv Invocation, args map[string]any) (any, error) {
			if inv.Skill != "web" || inv.Tool != "search_web" {
				t.Errorf("invocation = %+v", inv)
			}
			return map[string]any{"results": []string{"a", "b"}, "query": args["query"]}, nil
		},
	)
	result := r.Invoke(context.Background(), "web", "search_web",
		map[string]any{"query": "go generics"}, Invocation{WorkspaceDir: "/tmp/ws"})
	if result["query"] != "go generics" {
		t.Errorf("result = %v", result)
	}
	if _, ok := result["error"]; ok {
		t.Errorf("unexpected error: %v", result)
	}
}

func TestInvokeErrorNormalized(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.RegisterTool("web", "search_web",
		ToolDecl{Name: "search_web"},
		func(ctx context.Context, inv Invocation, args map[string]any) (any, error) {
			return nil, fmt.Errorf("connection refused")
		},
	)
	result := r.Invoke(context.Background(), "web", "search_web", nil, Invocation{})
	if result["error"] != "connection refused" {
		t.Errorf("result = %v", result)
	}
}

func TestInvokePanicRecovered(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.RegisterTool("web", "search_web",
		ToolDecl{Name: "search_web"},
		func(ctx context.Context, inv Invocation, args map[string]any) (any, error) {
			panic("index out of range")
		},
	)
	result := r.Invoke(context.Background(), "web", "search_web", nil, Invocation{})
	errMsg, _ := result["error"].(string)
	if !strings.Contains(errMsg, "Execution error") || !strings.Contains(errMsg, "index out of range") {
		t.Errorf("error = %q", errMsg)
	}
	if tb, _ := result["traceback"].(string); tb == "" {
		t.Error("traceback missing")
	}
}

func TestInvokeTimeout(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "slow", `---
name: slow
description: A deliberately slow skill.
timeout_seconds: 1
---
Body.
`)
	r, err := NewRegistry(root)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer r.Close()

	r.RegisterTool("slow", "sleep",
		ToolDecl{Name: "sleep"},
		func(ctx context.Context, inv Invocation, args map[string]any) (any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(10 * time.Second):
				return map[string]any{"slept": true}, nil
			}
		},
	)
	start := time.Now()
	result := r.Invoke(context.Background(), "slow", "sleep", nil, Invocation{})
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("invoke took %s, timeout not applied", elapsed)
	}
	errMsg, _ := result["error"].(string)
	if !strings.Contains(errMsg, "timed out after 1s") {
		t.Errorf("error = %q", errMsg)
	}
}

func TestInvokeCrossSkillFallback(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.RegisterTool("planning", "create_tasks",
		ToolDecl{Name: "create_tasks"},
		func(ctx context.Context, inv Invocation, args map[string]any) (any, error) {
			if inv.Skill != "planning" {
				t.Errorf("fallback invocation skill = %q, want planning", inv.Skill)
			}
			return map[string]any{"created": 3}, nil
		},
	)
	// Model called the tool against the wrong skill.
	result := r.Invoke(context.Background(), "web", "create_tasks", nil, Invocation{})
	if result["created"] != 3 {
		t.Errorf("result = %v", result)
	}
	note, _ := result["note"].(string)
	want := "Tool 'create_tasks' belongs to skill 'planning', not 'web'. Activate 'planning' to use it directly."
	if note != want {
		t.Errorf("note = %q, want %q", note, want)
	}
}

func TestCoerceResult(t *testing.T) {
	if m := coerceResult(nil); m["result"] != nil {
		t.Errorf("nil: %v", m)
	}
	if m := coerceResult("plain"); m["result"] != "plain" {
		t.Errorf("string: %v", m)
	}
	in := map[string]any{"x": 1}
	if m := coerceResult(in); m["x"] != 1 {
		t.Errorf("map: %v", m)
	}
}
