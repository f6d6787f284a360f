// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/jllopis/heuris/pkg/core"
	"github.com/jllopis/heuris/pkg/llm"
	"github.com/jllopis/heuris/pkg/skills"
)

// globalTools are visible in every state: one activation tool per
// discoverable skill, plus discovery and queue management.
func (a *Agent) globalTools() []llm.Tool {
	var tools []llm.Tool
	for _, meta := range a.registry.List() {
		tools = append(tools, skills.ToolDecl{
			Name:        "activate_" + meta.Name,
			Description: fmt.Sprintf("Activate the '%s' skill. %s", meta.Name, meta.Description),
		}.ToolDefinition())
	}
	tools = append(tools,
		skills.ToolDecl{
			Name:        "list_skills",
			Description: "List all available skills with their descriptions.",
		}.ToolDefinition(),
		skills.ToolDecl{
			Name:        "skill_switch",
			Description: "Deactivate the current skill and activate another one.",
			Params: []skills.ParamSpec{
				{Name: "skill_name", Type: "string", Description: "Name of the skill to switch to.", Required: true},
			},
		}.ToolDefinition(),
		skills.ToolDecl{
			Name:        "complete_task",
			Description: "Mark the given task as completed, recording its result. Advances to the next incomplete task.",
			Params: []skills.ParamSpec{
				{Name: "task_number", Type: "integer", Description: "Number of the task to complete.", Required: true},
				{Name: "result", Type: "string", Description: "The task's result or findings.", Required: true},
			},
		}.ToolDefinition(),
	)
	return tools
}

// visibleTools is the model's tool surface for this turn: the active
// skill's tools, if any, plus the global set.
func (a *Agent) visibleTools(ctx context.Context) []llm.Tool {
	var tools []llm.Tool
	if a.activeSkill != "" {
		skillTools, err := a.registry.ToolsFor(ctx, a.activeSkill)
		if err == nil {
			tools = append(tools, skillTools...)
		}
		for _, decl := range a.builtinDecls(a.activeSkill) {
			tools = append(tools, decl.ToolDefinition())
		}
	}
	return append(tools, a.globalTools()...)
}

func (a *Agent) formatSkillList() string {
	var b strings.Builder
	b.WriteString("Available skills:\n")
	for _, meta := range a.registry.List() {
		fmt.Fprintf(&b, "- %s: %s\n", meta.Name, meta.Description)
	}
	return b.String()
}

// activationBanner is the text appended to the conversation when a skill
// becomes active: its instructions plus a reminder of the current task.
func (a *Agent) activationBanner(name, instructions string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Skill '%s' activated.\n\n%s", name, instructions)
	if a.queue != nil {
		if cur, err := a.queue.Current(); err == nil && cur != nil {
			fmt.Fprintf(&b, "\n\nCurrent task (#%d): %s", cur.Number, cur.Description)
		}
	}
	return b.String()
}

// builtinDecls lists the queue-backed tools the given skill contributes
// to the model's surface. Their implementations live on the agent, not
// in the registry, so agents sharing one registry still work against
// their own queues.
func (a *Agent) builtinDecls(skill string) []skills.ToolDecl {
	var decls []skills.ToolDecl
	if skill == a.planningSkill {
		decls = append(decls,
			skills.ToolDecl{
				Name:        "create_task",
				Description: "Add one task to the queue.",
				Params: []skills.ParamSpec{
					{Name: "description", Type: "string", Description: "What the task should accomplish.", Required: true},
				},
			},
			skills.ToolDecl{
				Name:        "create_tasks",
				Description: "Add several tasks to the queue in order.",
				Params: []skills.ParamSpec{
					{Name: "descriptions", Type: "array", Description: "Task descriptions, in execution order.", Required: true},
				},
			},
		)
	}
	if skill == a.answerSkill {
		decls = append(decls,
			skills.ToolDecl{
				Name:        "get_completed_tasks",
				Description: "Read the results of all completed tasks, keyed by task number.",
			},
			skills.ToolDecl{
				Name:        "submit_final_answer",
				Description: "Submit the final answer for verification and delivery.",
				Params: []skills.ParamSpec{
					{Name: "answer", Type: "string", Description: "The complete final answer, with citations.", Required: true},
				},
			},
		)
	}
	return decls
}

type builtinFunc func(ctx context.Context, args map[string]any) map[string]any

// builtinFor resolves a builtin tool against the skill that owns it.
// Builtins are never reachable through cross-skill fallback: the owning
// skill must be active.
func (a *Agent) builtinFor(skill, tool string) (builtinFunc, bool) {
	switch {
	case skill == a.planningSkill && tool == "create_task":
		return a.createTaskTool, true
	case skill == a.planningSkill && tool == "create_tasks":
		return a.createTasksTool, true
	case skill == a.answerSkill && tool == "get_completed_tasks":
		return a.completedTasksTool, true
	case skill == a.answerSkill && tool == "submit_final_answer":
		return a.submitFinalAnswerTool, true
	}
	return nil, false
}

func (a *Agent) createTaskTool(ctx context.Context, args map[string]any) map[string]any {
	if a.queue == nil {
		return map[string]any{"error": "no active run"}
	}
	description, _ := args["description"].(string)
	if strings.TrimSpace(description) == "" {
		return map[string]any{"error": "description parameter is required"}
	}
	num, err := a.queue.Create(description)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	a.emitter.Emit(ctx, core.NewEvent(ctx, core.EventTaskCreated, map[string]any{
		"task_number": num,
		"description": description,
	}))
	return map[string]any{
		"status":      "success",
		"task_number": num,
		"description": description,
		"is_active":   num == 1,
	}
}

func (a *Agent) createTasksTool(ctx context.Context, args map[string]any) map[string]any {
	if a.queue == nil {
		return map[string]any{"error": "no active run"}
	}
	raw, _ := args["descriptions"].([]any)
	if len(raw) == 0 {
		return map[string]any{"error": "descriptions parameter is required"}
	}
	descriptions := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			descriptions = append(descriptions, s)
		}
	}
	numbers, err := a.queue.CreateBatch(descriptions)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	for i, num := range numbers {
		a.emitter.Emit(ctx, core.NewEvent(ctx, core.EventTaskCreated, map[string]any{
			"task_number": num,
			"description": descriptions[i],
		}))
	}
	return map[string]any{
		"status":       "success",
		"task_numbers": numbers,
		"count":        len(numbers),
	}
}

func (a *Agent) completedTasksTool(_ context.Context, _ map[string]any) map[string]any {
	if a.queue == nil {
		return map[string]any{"error": "no active run"}
	}
	results, err := a.queue.Results()
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	if len(results) == 0 {
		return map[string]any{
			"status":  "error",
			"message": "No completed tasks found. Complete tasks before synthesizing.",
		}
	}
	byNumber := make(map[string]any, len(results))
	for num, text := range results {
		byNumber[fmt.Sprintf("%d", num)] = text
	}
	return byNumber
}

// submitFinalAnswerTool signals the run-loop to short-circuit into the
// finalization pipeline. Submission is refused while incomplete tasks
// remain; a queue read failure also refuses, never unlocks.
func (a *Agent) submitFinalAnswerTool(_ context.Context, args map[string]any) map[string]any {
	answer, _ := args["answer"].(string)
	if strings.TrimSpace(answer) == "" {
		return map[string]any{"error": "answer parameter is required"}
	}
	if a.queue == nil {
		return map[string]any{"error": "no active run"}
	}
	if empty, err := a.queue.IsEmpty(); err != nil || !empty {
		return map[string]any{"error": a.outstandingReminder()}
	}
	return map[string]any{
		"status": statusFinalAnswer,
		"answer": answer,
	}
}
