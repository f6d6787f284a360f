// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the run-loop orchestrator: a state machine
// that moves between skill discovery and an active skill, dispatches the
// model's tool calls, gates completion on the task queue, and routes
// candidate answers through citation verification.
package agent

import (
	stderrors "errors"
	"time"

	"github.com/jllopis/heuris/pkg/core"
	"github.com/jllopis/heuris/pkg/llm"
	"github.com/jllopis/heuris/pkg/skills"
	"github.com/jllopis/heuris/pkg/tasks"
	"github.com/jllopis/heuris/pkg/verify"
	"github.com/jllopis/heuris/pkg/workspace"
)

const defaultSystemMessage = "You are a research agent. Work through skills: " +
	"activate a skill to gain its tools, break the request into tasks, and " +
	"complete every task before submitting a final answer with citations."

// Agent orchestrates a model conversation over the skill registry and
// task queue. One Agent serves one caller at a time; give concurrent
// sessions their own Agent over disjoint workspace partitions.
type Agent struct {
	provider llm.Provider
	registry *skills.Registry
	ws       *workspace.Workspace
	emitter  core.EventEmitter

	transcripts *workspace.TranscriptStore

	system           string
	model            string
	planningSkill    string
	answerSkill      string
	maxIterations    int
	rateLimitRetries int
	rateLimitBackoff time.Duration

	// sleep is swapped out in tests.
	sleep func(time.Duration)

	// per-run state
	messages    []llm.Message
	activeSkill string
	queue       *tasks.Queue
}

// Option configures an Agent instance.
type Option func(*Agent) error

// New creates an agent over a provider, skill registry, and workspace.
func New(provider llm.Provider, registry *skills.Registry, ws *workspace.Workspace, opts ...Option) (*Agent, error) {
	if provider == nil {
		return nil, stderrors.New("provider is required")
	}
	if registry == nil {
		return nil, stderrors.New("skill registry is required")
	}
	if ws == nil {
		return nil, stderrors.New("workspace is required")
	}
	a := &Agent{
		provider:         provider,
		registry:         registry,
		ws:               ws,
		emitter:          core.NoopEventEmitter{},
		system:           defaultSystemMessage,
		planningSkill:    "planning",
		answerSkill:      "answer",
		maxIterations:    20,
		rateLimitRetries: 3,
		rateLimitBackoff: 5 * time.Second,
		sleep:            time.Sleep,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// WithSystemMessage overrides the system prompt.
func WithSystemMessage(msg string) Option {
	return func(a *Agent) error {
		if msg != "" {
			a.system = msg
		}
		return nil
	}
}

// WithModel sets the model identifier passed to the provider.
func WithModel(model string) Option {
	return func(a *Agent) error {
		a.model = model
		return nil
	}
}

// WithPlanningSkill names the skill auto-activated at run start.
func WithPlanningSkill(name string) Option {
	return func(a *Agent) error {
		if name != "" {
			a.planningSkill = name
		}
		return nil
	}
}

// WithAnswerSkill names the skill force-activated once the queue empties.
func WithAnswerSkill(name string) Option {
	return func(a *Agent) error {
		if name != "" {
			a.answerSkill = name
		}
		return nil
	}
}

// WithMaxIterations bounds the run loop.
func WithMaxIterations(n int) Option {
	return func(a *Agent) error {
		if n > 0 {
			a.maxIterations = n
		}
		return nil
	}
}

// WithRateLimitRetry sets the bounded retry budget and fixed backoff used
// when the provider reports rate limiting. Retries do not consume
// iteration slots.
func WithRateLimitRetry(retries int, backoff time.Duration) Option {
	return func(a *Agent) error {
		if retries >= 0 {
			a.rateLimitRetries = retries
		}
		if backoff > 0 {
			a.rateLimitBackoff = backoff
		}
		return nil
	}
}

// WithEmitter attaches an event sink for the run's structured log.
func WithEmitter(emitter core.EventEmitter) Option {
	return func(a *Agent) error {
		if emitter != nil {
			a.emitter = emitter
		}
		return nil
	}
}

// WithTranscripts persists each run's conversation to the given store.
func WithTranscripts(store *workspace.TranscriptStore) Option {
	return func(a *Agent) error {
		a.transcripts = store
		return nil
	}
}

// Queue returns the current run's task queue. Nil outside a run.
func (a *Agent) Queue() *tasks.Queue {
	return a.queue
}

// ActiveSkill returns the currently active skill name, "" in discovery.
func (a *Agent) ActiveSkill() string {
	return a.activeSkill
}

func (a *Agent) verifier() *verify.Pipeline {
	return verify.NewPipeline(a.provider, a.ws)
}
