// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"context"
	"testing"

	"github.com/jllopis/heuris/pkg/core"
	"github.com/jllopis/heuris/pkg/llm"
)

func TestScenarioProviderCapturesRequests(t *testing.T) {
	p := NewScenarioProvider().
		AddResponse("first").
		AddToolCalls(llm.ToolCall{
			Type:     llm.ToolTypeFunction,
			Function: llm.FunctionCall{Name: "search_web", Arguments: `{"query":"x"}`},
		})

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
		Tools:    []llm.Tool{{Type: llm.ToolTypeFunction, Function: llm.FunctionDef{Name: "list_skills"}}},
	})
	if err != nil || resp.Content != "first" {
		t.Fatalf("resp = %+v, err = %v", resp, err)
	}
	resp, err = p.Chat(context.Background(), llm.ChatRequest{})
	if err != nil || len(resp.ToolCalls) != 1 {
		t.Fatalf("resp = %+v, err = %v", resp, err)
	}

	reqs := p.Requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}
	if names := ToolNames(reqs[0]); len(names) != 1 || names[0] != "list_skills" {
		t.Errorf("tool names = %v", names)
	}

	if _, err := p.Chat(context.Background(), llm.ChatRequest{}); err == nil {
		t.Error("exhausted script should error")
	}
}

func TestScenarioProviderCondition(t *testing.T) {
	p := NewScenarioProvider().Add(ScriptedResponse{
		Content: "gated",
		Condition: func(req llm.ChatRequest) bool {
			return len(req.Messages) > 0
		},
	})
	if _, err := p.Chat(context.Background(), llm.ChatRequest{}); err == nil {
		t.Error("condition mismatch should error")
	}
}

func TestEventCollector(t *testing.T) {
	c := &EventCollector{}
	c.Emit(context.Background(), core.Event{Type: core.EventToolCall})
	c.Emit(context.Background(), core.Event{Type: core.EventToolCall})
	c.Emit(context.Background(), core.Event{Type: core.EventRunFinished})
	if c.Count(core.EventToolCall) != 2 {
		t.Errorf("count = %d, want 2", c.Count(core.EventToolCall))
	}
	if len(c.Events()) != 3 {
		t.Errorf("events = %d, want 3", len(c.Events()))
	}
}
