// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

// Package testing provides helpers for exercising the run-loop in tests:
// a scripted provider that captures every request, and an event collector.
package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/jllopis/heuris/pkg/core"
	"github.com/jllopis/heuris/pkg/llm"
)

// ScriptedResponse is one turn of a scenario. A Condition, when set,
// must match the request for the response to be consumed.
type ScriptedResponse struct {
	Content   string
	ToolCalls []llm.ToolCall
	Error     error
	Condition func(req llm.ChatRequest) bool
}

// ScenarioProvider returns scripted responses in order and records every
// request so tests can assert on the tool surface and conversation the
// loop presented to the model.
type ScenarioProvider struct {
	mu        sync.Mutex
	responses []ScriptedResponse
	requests  []llm.ChatRequest
}

// NewScenarioProvider creates an empty scenario provider.
func NewScenarioProvider() *ScenarioProvider {
	return &ScenarioProvider{}
}

// AddResponse queues a plain-text turn.
func (p *ScenarioProvider) AddResponse(content string) *ScenarioProvider {
	return p.Add(ScriptedResponse{Content: content})
}

// AddToolCalls queues a tool-call turn.
func (p *ScenarioProvider) AddToolCalls(calls ...llm.ToolCall) *ScenarioProvider {
	return p.Add(ScriptedResponse{ToolCalls: calls})
}

// AddError queues a failing turn.
func (p *ScenarioProvider) AddError(err error) *ScenarioProvider {
	return p.Add(ScriptedResponse{Error: err})
}

// Add queues a fully specified turn.
func (p *ScenarioProvider) Add(resp ScriptedResponse) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, resp)
	return p
}

// Chat implements llm.Provider.
func (p *ScenarioProvider) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return nil, fmt.Errorf("scenario provider: no response scripted for turn %d", len(p.requests))
	}
	next := p.responses[0]
	if next.Condition != nil && !next.Condition(req) {
		return nil, fmt.Errorf("scenario provider: turn %d did not match its condition", len(p.requests))
	}
	p.responses = p.responses[1:]
	if next.Error != nil {
		return nil, next.Error
	}
	return &llm.ChatResponse{
		Content:   next.Content,
		ToolCalls: next.ToolCalls,
		Usage:     llm.Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}, nil
}

// Requests returns a copy of every captured request.
func (p *ScenarioProvider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.ChatRequest(nil), p.requests...)
}

// LastRequest returns the most recent request, or nil.
func (p *ScenarioProvider) LastRequest() *llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	req := p.requests[len(p.requests)-1]
	return &req
}

// ToolNames lists the function names offered in the given request.
func ToolNames(req llm.ChatRequest) []string {
	names := make([]string, 0, len(req.Tools))
	for _, tool := range req.Tools {
		names = append(names, tool.Function.Name)
	}
	return names
}

// EventCollector records emitted events for assertions.
type EventCollector struct {
	mu     sync.Mutex
	events []core.Event
}

// Emit implements core.EventEmitter.
func (c *EventCollector) Emit(_ context.Context, event core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns a copy of everything collected.
func (c *EventCollector) Events() []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Event(nil), c.events...)
}

// Count returns how many events of the given type were collected.
func (c *EventCollector) Count(eventType core.EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}
