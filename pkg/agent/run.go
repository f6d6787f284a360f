// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/heuris/pkg/core"
	"github.com/jllopis/heuris/pkg/errors"
	"github.com/jllopis/heuris/pkg/llm"
	"github.com/jllopis/heuris/pkg/skills"
	"github.com/jllopis/heuris/pkg/tasks"
	"github.com/jllopis/heuris/pkg/telemetry"
	"github.com/jllopis/heuris/pkg/workspace"
)

// statusFinalAnswer is the tool-result status that short-circuits the
// loop into the finalization pipeline.
const statusFinalAnswer = "FINAL_ANSWER_SUBMITTED"

const exhaustedMessage = "Maximum iterations reached. Unable to complete the request."

// Run executes the full loop for one user input. The caller always
// receives a string: the verified answer, a best-effort answer after
// iteration exhaustion, or an "Error: ..." string. Run never panics past
// its own boundary.
func (a *Agent) Run(ctx context.Context, input string) string {
	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := otel.Tracer("heuris/agent").Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("run.id", runID),
	))
	defer span.End()

	started := time.Now()
	if err := a.startRun(ctx, input); err != nil {
		return "Error: " + err.Error()
	}
	answer := a.loop(ctx)
	a.finishRun(ctx, input, answer, started)
	return answer
}

// startRun resets per-run state: scratch cleared, queue reopened, the
// conversation reduced to the system message, and the planning skill
// activated when present.
func (a *Agent) startRun(ctx context.Context, input string) error {
	if err := a.ws.Clear(); err != nil {
		return err
	}
	queue, err := tasks.New(a.ws.Root())
	if err != nil {
		return err
	}
	a.queue = queue
	a.activeSkill = ""
	a.messages = []llm.Message{
		llm.SystemMessage(a.system),
		llm.UserMessage(input),
	}
	if err := a.ws.SaveUserQuery(input); err != nil {
		slog.Warn("agent.save_query.failed", slog.String("error", err.Error()))
	}
	a.emitter.Emit(ctx, core.NewEvent(ctx, core.EventRunStarted, map[string]any{
		"input": input,
	}))
	if a.registry.Has(a.planningSkill) {
		if err := a.forceActivate(ctx, a.planningSkill); err != nil {
			slog.Warn("agent.planning.activation.failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (a *Agent) loop(ctx context.Context) string {
	for iteration := 1; iteration <= a.maxIterations; iteration++ {
		telemetry.Metrics().RecordIteration(ctx)

		resp, err := a.chat(ctx)
		if err != nil {
			return "Error: " + err.Error()
		}
		if resp.Reasoning != "" {
			a.emitter.Emit(ctx, core.NewEvent(ctx, core.EventReasoningTrace, map[string]any{
				"trace": resp.Reasoning,
			}))
		}

		if len(resp.ToolCalls) > 0 {
			a.messages = append(a.messages, llm.Message{
				Role:      llm.RoleAssistant,
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
			})
			final, submitted := a.dispatchToolCalls(ctx, resp.ToolCalls)
			if submitted {
				answer, retry := a.finalize(ctx, final)
				if !retry {
					return answer
				}
			}
			continue
		}

		// No tool calls: the model wants to finish. Refuse while tasks
		// remain, steer through the answer skill, then finalize. A queue
		// read failure counts as tasks remaining.
		if empty, err := a.queue.IsEmpty(); err != nil || !empty {
			a.messages = append(a.messages, llm.UserMessage(a.outstandingReminder()))
			continue
		}
		if a.activeSkill != a.answerSkill && a.registry.Has(a.answerSkill) {
			if err := a.forceActivate(ctx, a.answerSkill); err == nil {
				continue
			}
		}
		candidate := strings.TrimSpace(resp.Content)
		if candidate == "" {
			a.messages = append(a.messages, llm.UserMessage("Provide your final answer."))
			continue
		}
		a.messages = append(a.messages, llm.AssistantMessage(candidate))
		answer, retry := a.finalize(ctx, candidate)
		if !retry {
			return answer
		}
	}

	if best := a.bestEffortAnswer(); best != "" {
		answer, _ := a.finalize(ctx, best)
		if answer != "" {
			return answer
		}
		return best
	}
	return exhaustedMessage
}

// chat calls the provider with the current conversation and tool surface.
// Rate-limited calls are retried with a fixed backoff up to the
// configured budget; retries do not consume loop iterations.
func (a *Agent) chat(ctx context.Context) (*llm.ChatResponse, error) {
	req := llm.ChatRequest{
		Model:    a.model,
		Messages: append([]llm.Message(nil), a.messages...),
		Tools:    a.visibleTools(ctx),
	}
	for attempt := 0; ; attempt++ {
		a.emitter.Emit(ctx, core.NewEvent(ctx, core.EventModelCall, map[string]any{
			"messages": len(req.Messages),
			"tools":    len(req.Tools),
		}))
		start := time.Now()
		resp, err := a.provider.Chat(ctx, req)
		telemetry.Metrics().RecordModelLatency(ctx, float64(time.Since(start).Milliseconds()))
		if err == nil {
			a.emitter.Emit(ctx, core.NewEvent(ctx, core.EventModelResponse, map[string]any{
				"tool_calls":    len(resp.ToolCalls),
				"total_tokens":  resp.Usage.TotalTokens,
				"prompt_tokens": resp.Usage.PromptTokens,
			}))
			return resp, nil
		}
		if errors.IsCode(err, errors.CodeRateLimit) && attempt < a.rateLimitRetries {
			telemetry.Metrics().RecordRateLimit(ctx)
			a.emitter.Emit(ctx, core.NewEvent(ctx, core.EventModelRateLimit, map[string]any{
				"attempt": attempt + 1,
				"backoff": a.rateLimitBackoff.String(),
			}))
			a.sleep(a.rateLimitBackoff)
			continue
		}
		return nil, err
	}
}

// dispatchToolCalls executes the turn's tool calls in order. It returns
// the submitted final answer, if any. All argument payloads are parsed
// up front: a single malformed one voids the whole turn with a
// corrective message instead of executing anything.
func (a *Agent) dispatchToolCalls(ctx context.Context, calls []llm.ToolCall) (string, bool) {
	parsed := make([]map[string]any, len(calls))
	for i, call := range calls {
		args, err := parseArgs(call.Function.Arguments)
		if err != nil {
			a.messages[len(a.messages)-1] = llm.AssistantMessage(
				"I attempted a tool call but its arguments were malformed.")
			a.messages = append(a.messages, llm.UserMessage(fmt.Sprintf(
				"The arguments for tool '%s' were not valid JSON. Call the tool again with valid JSON arguments.",
				call.Function.Name)))
			return "", false
		}
		parsed[i] = args
	}

	for i, call := range calls {
		result := a.dispatchOne(ctx, call, parsed[i])
		if status, ok := result["status"].(string); ok && status == statusFinalAnswer {
			// Every call in the turn still gets a tool-role response,
			// or the next model call is rejected as unanswered.
			for _, later := range calls[i+1:] {
				a.appendTool(later.ID, "Skipped: a final answer was already submitted in this turn.")
			}
			answer, _ := result["answer"].(string)
			return answer, true
		}
	}
	return "", false
}

func (a *Agent) dispatchOne(ctx context.Context, call llm.ToolCall, args map[string]any) map[string]any {
	name := call.Function.Name
	switch {
	case name == "list_skills":
		a.appendTool(call.ID, a.formatSkillList())
		return nil

	case strings.HasPrefix(name, "activate_"):
		a.activateForCall(ctx, call.ID, strings.TrimPrefix(name, "activate_"), core.EventSkillActivated)
		return nil

	case name == "skill_switch":
		target, _ := args["skill_name"].(string)
		if target == "" {
			a.appendTool(call.ID, "Error: skill_name parameter is required")
			return nil
		}
		a.activateForCall(ctx, call.ID, target, core.EventSkillSwitched)
		return nil

	case name == "complete_task":
		a.completeTaskCall(ctx, call.ID, args)
		return nil

	default:
		return a.executeSkillTool(ctx, call, args)
	}
}

// activateForCall performs activation (or switch) requested through a
// tool call. Unknown skills leave the active skill untouched.
func (a *Agent) activateForCall(ctx context.Context, callID, name string, event core.EventType) {
	instructions, err := a.registry.Activate(name)
	if err != nil {
		a.appendTool(callID, fmt.Sprintf("Error: Skill '%s' not found", name))
		return
	}
	previous := a.activeSkill
	a.activeSkill = name
	a.emitter.Emit(ctx, core.NewEvent(ctx, event, map[string]any{
		"skill":    name,
		"previous": previous,
	}))
	a.appendTool(callID, a.activationBanner(name, instructions))
}

func (a *Agent) completeTaskCall(ctx context.Context, callID string, args map[string]any) {
	number, ok := intArg(args, "task_number")
	if !ok {
		a.appendTool(callID, "Error: task_number parameter is required")
		return
	}
	result, _ := args["result"].(string)

	next, err := a.queue.Complete(number, result)
	if err != nil {
		a.appendTool(callID, "Error: "+err.Error())
		return
	}
	a.emitter.Emit(ctx, core.NewEvent(ctx, core.EventTaskCompleted, map[string]any{
		"task_number": number,
	}))
	if next != nil {
		a.appendTool(callID, fmt.Sprintf(
			"Task %d completed. Now working on task %d: %s", number, next.Number, next.Description))
		return
	}

	a.emitter.Emit(ctx, core.NewEvent(ctx, core.EventQueueEmpty, nil))
	msg := fmt.Sprintf("Task %d completed. All tasks are done.", number)
	if instructions, err := a.registry.Activate(a.answerSkill); err == nil {
		previous := a.activeSkill
		a.activeSkill = a.answerSkill
		a.emitter.Emit(ctx, core.NewEvent(ctx, core.EventSkillActivated, map[string]any{
			"skill":    a.answerSkill,
			"previous": previous,
			"forced":   true,
		}))
		msg += "\n\n" + a.activationBanner(a.answerSkill, instructions) +
			"\n\nYou may now compose and submit the final answer."
	} else {
		msg += " You may now provide the final answer."
	}
	a.appendTool(callID, msg)
}

// executeSkillTool runs a script tool against the active skill, with
// cross-skill fallback handled by the registry.
func (a *Agent) executeSkillTool(ctx context.Context, call llm.ToolCall, args map[string]any) map[string]any {
	name := call.Function.Name
	if a.activeSkill == "" {
		a.appendTool(call.ID, fmt.Sprintf(
			"Error: no skill is active. Activate a skill before calling '%s'.", name))
		return nil
	}

	a.emitter.Emit(ctx, core.NewEvent(ctx, core.EventToolCall, map[string]any{
		"skill": a.activeSkill,
		"tool":  name,
	}))
	var result map[string]any
	if fn, ok := a.builtinFor(a.activeSkill, name); ok {
		result = fn(ctx, args)
	} else {
		inv := skills.Invocation{
			WorkspaceDir: a.ws.Root(),
			Conversation: append([]llm.Message(nil), a.messages...),
		}
		result = a.registry.Invoke(ctx, a.activeSkill, name, args, inv)
	}

	_, failed := result["error"]
	telemetry.Metrics().RecordToolCall(ctx, a.activeSkill, name, failed)
	eventType := core.EventToolResult
	if failed {
		eventType = core.EventToolError
	}
	a.emitter.Emit(ctx, core.NewEvent(ctx, eventType, map[string]any{
		"skill": a.activeSkill,
		"tool":  name,
		"error": result["error"],
	}))

	a.appendTool(call.ID, marshalResult(result))
	return result
}

// forceActivate activates a skill without a model tool call, appending
// the banner as a user-role message.
func (a *Agent) forceActivate(ctx context.Context, name string) error {
	instructions, err := a.registry.Activate(name)
	if err != nil {
		return err
	}
	previous := a.activeSkill
	a.activeSkill = name
	a.emitter.Emit(ctx, core.NewEvent(ctx, core.EventSkillActivated, map[string]any{
		"skill":    name,
		"previous": previous,
		"forced":   true,
	}))
	a.messages = append(a.messages, llm.UserMessage(a.activationBanner(name, instructions)))
	return nil
}

// finalize runs a candidate through citation verification. On rejection
// the report is fed back into the conversation and the loop continues.
func (a *Agent) finalize(ctx context.Context, candidate string) (string, bool) {
	a.emitter.Emit(ctx, core.NewEvent(ctx, core.EventAnswerCandidate, map[string]any{
		"length": len(candidate),
	}))
	result, err := a.verifier().Verify(ctx, candidate)
	if err != nil {
		slog.Warn("agent.verify.failed", slog.String("error", err.Error()))
		return candidate, false
	}
	if result.ShouldRetry {
		a.emitter.Emit(ctx, core.NewEvent(ctx, core.EventAnswerRejected, map[string]any{
			"unsupported": result.Unsupported,
		}))
		a.messages = append(a.messages,
			llm.UserMessage(result.Report+"\nRevise the answer before submitting again."))
		return "", true
	}
	a.emitter.Emit(ctx, core.NewEvent(ctx, core.EventAnswerVerified, map[string]any{
		"total_urls": result.TotalURLs,
	}))
	return result.FinalAnswer, false
}

func (a *Agent) outstandingReminder() string {
	remaining, err := a.queue.Incomplete()
	if err != nil || len(remaining) == 0 {
		return "There are incomplete tasks remaining. Complete them before answering."
	}
	var b strings.Builder
	b.WriteString("You cannot finish yet. Incomplete tasks remain:\n")
	for _, t := range remaining {
		fmt.Fprintf(&b, "- task %d: %s\n", t.Number, t.Description)
	}
	b.WriteString("Work through each task and mark it done with complete_task.")
	return b.String()
}

// bestEffortAnswer scans the conversation backwards for the last
// substantive assistant message, skipping tool-call turns and the
// malformed-call placeholder.
func (a *Agent) bestEffortAnswer() string {
	for i := len(a.messages) - 1; i >= 0; i-- {
		msg := a.messages[i]
		if msg.Role != llm.RoleAssistant || len(msg.ToolCalls) > 0 {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" || strings.HasPrefix(content, "I attempted a tool call") {
			continue
		}
		return content
	}
	return ""
}

func (a *Agent) finishRun(ctx context.Context, input, answer string, started time.Time) {
	a.emitter.Emit(ctx, core.NewEvent(ctx, core.EventRunFinished, map[string]any{
		"answer_length": len(answer),
		"duration_ms":   time.Since(started).Milliseconds(),
	}))
	if a.transcripts == nil {
		return
	}
	runID, _ := core.RunID(ctx)
	err := a.transcripts.Save(workspace.Transcript{
		RunID:     runID,
		Input:     input,
		Answer:    answer,
		Messages:  append([]llm.Message(nil), a.messages...),
		StartedAt: started,
	})
	if err != nil {
		slog.Warn("agent.transcript.save.failed", slog.String("error", err.Error()))
	}
}

func (a *Agent) appendTool(callID, content string) {
	a.messages = append(a.messages, llm.ToolMessage(callID, content))
}

func parseArgs(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}

func marshalResult(result map[string]any) string {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"error": "unserializable tool result: %v"}`, err)
	}
	return string(data)
}
