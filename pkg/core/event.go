// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

// Package core holds the shared types exchanged between the orchestrator
// and its collaborators: events, run identity, and context helpers.
package core

import (
	"context"
	"time"
)

// EventType identifies a semantic event emitted during a run.
type EventType string

const (
	EventRunStarted      EventType = "run.started"
	EventRunFinished     EventType = "run.finished"
	EventModelCall       EventType = "model.call"
	EventModelResponse   EventType = "model.response"
	EventModelRateLimit  EventType = "model.rate_limited"
	EventSkillActivated  EventType = "skill.activated"
	EventSkillSwitched   EventType = "skill.switched"
	EventToolCall        EventType = "tool.call"
	EventToolResult      EventType = "tool.result"
	EventToolError       EventType = "tool.error"
	EventTaskCreated     EventType = "task.created"
	EventTaskCompleted   EventType = "task.completed"
	EventQueueEmpty      EventType = "task.queue_empty"
	EventAnswerCandidate EventType = "answer.candidate"
	EventAnswerVerified  EventType = "answer.verified"
	EventAnswerRejected  EventType = "answer.rejected"
	EventReasoningTrace  EventType = "reasoning.trace"
)

// Event captures a single structured log entry for a run.
type Event struct {
	Type      EventType      `json:"type"`
	RunID     string         `json:"run_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// EventEmitter receives semantic events. Implementations must never
// propagate failures back into the run that emitted the event.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is the default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// NewEvent builds an event stamped with the current time and the run id
// carried by ctx, if any.
func NewEvent(ctx context.Context, eventType EventType, payload map[string]any) Event {
	ev := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if id, ok := RunID(ctx); ok {
		ev.RunID = id
	}
	if id, ok := SessionID(ctx); ok {
		ev.SessionID = id
	}
	return ev
}
