// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package agent_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/jllopis/heuris/pkg/agent"
	"github.com/jllopis/heuris/pkg/core"
	"github.com/jllopis/heuris/pkg/llm"
	"github.com/jllopis/heuris/pkg/skills"
	heuristesting "github.com/jllopis/heuris/pkg/testing"
	"github.com/jllopis/heuris/pkg/workspace"
)

func writeDoc(t *testing.T, root, name, doc string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write skill: %v", err)
	}
}

func toolCall(name, args string) llm.ToolCall {
	return llm.ToolCall{
		ID:       "call-" + name,
		Type:     llm.ToolTypeFunction,
		Function: llm.FunctionCall{Name: name, Arguments: args},
	}
}

func hasTools(names ...string) func(req llm.ChatRequest) bool {
	return func(req llm.ChatRequest) bool {
		offered := heuristesting.ToolNames(req)
		for _, name := range names {
			if !slices.Contains(offered, name) {
				return false
			}
		}
		return true
	}
}

// The model's tool surface must track the active skill turn by turn:
// planning tools at the start, web tools after a switch, answer tools
// once the queue drains.
func TestRunToolSurfaceFollowsActiveSkill(t *testing.T) {
	skillsRoot := t.TempDir()
	writeDoc(t, skillsRoot, "planning",
		"---\nname: planning\ndescription: Break the request into tasks.\n---\nPlan first.\n")
	writeDoc(t, skillsRoot, "answer",
		"---\nname: answer\ndescription: Compose the final answer.\n---\nAnswer now.\n")
	writeDoc(t, skillsRoot, "web",
		"---\nname: web\ndescription: Search the web.\nscripts:\n"+
			"  - name: search_web\n    description: Search.\n    parameters:\n"+
			"      - name: query\n        type: string\n        required: true\n"+
			"---\nSearch, then read.\n")

	registry, err := skills.NewRegistry(skillsRoot)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	defer registry.Close()

	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}

	provider := heuristesting.NewScenarioProvider()
	provider.Add(heuristesting.ScriptedResponse{
		Condition: hasTools("create_task", "create_tasks", "activate_web", "list_skills"),
		ToolCalls: []llm.ToolCall{toolCall("create_task", `{"description": "find the facts"}`)},
	})
	provider.AddToolCalls(toolCall("skill_switch", `{"skill_name": "web"}`))
	provider.Add(heuristesting.ScriptedResponse{
		Condition: func(req llm.ChatRequest) bool {
			offered := heuristesting.ToolNames(req)
			return slices.Contains(offered, "search_web") && !slices.Contains(offered, "create_task")
		},
		ToolCalls: []llm.ToolCall{toolCall("complete_task", `{"task_number": 1, "result": "found the facts"}`)},
	})
	provider.Add(heuristesting.ScriptedResponse{
		Condition: hasTools("get_completed_tasks", "submit_final_answer"),
		ToolCalls: []llm.ToolCall{toolCall("submit_final_answer", `{"answer": "All set."}`)},
	})

	collector := &heuristesting.EventCollector{}
	a, err := agent.New(provider, registry, ws,
		agent.WithModel("test-model"),
		agent.WithEmitter(collector),
	)
	if err != nil {
		t.Fatalf("agent: %v", err)
	}

	answer := a.Run(context.Background(), "what are the facts?")
	if answer != "All set." {
		t.Fatalf("unexpected answer: %q", answer)
	}

	if n := collector.Count(core.EventSkillSwitched); n != 1 {
		t.Errorf("expected 1 skill switch event, got %d", n)
	}
	if n := collector.Count(core.EventTaskCompleted); n != 1 {
		t.Errorf("expected 1 task completed event, got %d", n)
	}
	if n := collector.Count(core.EventQueueEmpty); n != 1 {
		t.Errorf("expected 1 queue empty event, got %d", n)
	}
	if got := len(provider.Requests()); got != 4 {
		t.Fatalf("expected 4 model calls, got %d", got)
	}

	// The final turn ran with the answer skill active.
	last := provider.LastRequest()
	if last == nil {
		t.Fatal("no requests captured")
	}
	if !hasTools("submit_final_answer")(*last) {
		t.Errorf("final turn missing answer tools: %v", heuristesting.ToolNames(*last))
	}
}
