// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"fmt"
	"runtime/debug"
)

// Invoke resolves and executes a tool against a skill. It never returns a
// Go error: failures are normalized into the result map, which the
// run-loop relays to the model as the tool's response content.
//
// Resolution order: the skill's own registered implementation, the
// skill's MCP tool set, then a cross-skill fallback scan. Fallback
// results carry a note naming the true owning skill so the model can
// switch context.
func (r *Registry) Invoke(ctx context.Context, skill, tool string, args map[string]any, inv Invocation) map[string]any {
	r.mu.RLock()
	e, ok := r.skills[skill]
	discoverable := ok && r.discoverable(skill)
	r.mu.RUnlock()
	if !discoverable {
		return map[string]any{"error": fmt.Sprintf("Skill '%s' not found", skill)}
	}

	inv.Skill = skill
	inv.Tool = tool

	if reg, ok := r.lookup(skill, tool); ok {
		return r.execute(ctx, skill, reg, args, inv)
	}

	if fn := r.lookupMCP(e, tool); fn != nil {
		return r.execute(ctx, skill, fn, args, inv)
	}

	if owner, fn, ok := r.FindToolElsewhere(tool, skill); ok {
		inv.Skill = owner
		result := r.execute(ctx, owner, fn, args, inv)
		result["note"] = fmt.Sprintf(
			"Tool '%s' belongs to skill '%s', not '%s'. Activate '%s' to use it directly.",
			tool, owner, skill, owner,
		)
		return result
	}

	return map[string]any{"error": fmt.Sprintf("Script '%s' not found for skill '%s'", tool, skill)}
}

func (r *Registry) lookup(skill, tool string) (ToolFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.funcs[skill][tool]
	if !ok {
		return nil, false
	}
	return reg.fn, true
}

func (r *Registry) lookupMCP(e *entry, tool string) ToolFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e == nil || e.mcp == nil {
		return nil
	}
	for _, d := range e.mcpTools {
		if d.Name == tool {
			return r.mcpToolFunc(e.mcp, tool)
		}
	}
	return nil
}

// execute runs fn under the skill's timeout, recovering panics into
// structured error payloads and coercing non-map results.
func (r *Registry) execute(ctx context.Context, skill string, fn ToolFunc, args map[string]any, inv Invocation) map[string]any {
	timeout := r.timeoutFor(skill)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: panicError{value: rec, stack: string(debug.Stack())}}
			}
		}()
		value, err := fn(ctx, inv, args)
		done <- outcome{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return map[string]any{
				"error": fmt.Sprintf("Script '%s' timed out after %s", inv.Tool, timeout),
			}
		}
		return map[string]any{"error": fmt.Sprintf("Script '%s' cancelled", inv.Tool)}
	case out := <-done:
		if out.err != nil {
			if pe, ok := out.err.(panicError); ok {
				return map[string]any{
					"error":     fmt.Sprintf("Execution error: %v", pe.value),
					"traceback": pe.stack,
				}
			}
			return map[string]any{"error": out.err.Error()}
		}
		return coerceResult(out.value)
	}
}

type panicError struct {
	value any
	stack string
}

func (p panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// coerceResult guarantees the tool result contract: every invocation
// yields a JSON-serializable mapping.
func coerceResult(value any) map[string]any {
	switch v := value.(type) {
	case nil:
		return map[string]any{"result": nil}
	case map[string]any:
		return v
	default:
		return map[string]any{"result": v}
	}
}
