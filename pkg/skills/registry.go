// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jllopis/heuris/pkg/errors"
	"github.com/jllopis/heuris/pkg/llm"
)

// ToolFunc is the signature for in-process tool implementations. Tools
// receive their context explicitly through the Invocation handle; there is
// no ambient process-wide state.
type ToolFunc func(ctx context.Context, inv Invocation, args map[string]any) (any, error)

// Invocation carries the per-call context handed to tool implementations.
type Invocation struct {
	Skill        string
	Tool         string
	WorkspaceDir string
	Conversation []llm.Message // read-only snapshot of the run's messages
}

// Metadata is the cheap discovery view of a skill.
type Metadata struct {
	Name        string
	Description string
}

type registered struct {
	decl ToolDecl
	fn   ToolFunc
}

type entry struct {
	spec         Spec
	instructions string
	activated    bool
	mcp          MCPCaller
	mcpTools     []ToolDecl
}

// Registry owns skill discovery, activation, and tool resolution.
// It is safe for concurrent use.
type Registry struct {
	mu             sync.RWMutex
	dir            string
	enabled        map[string]bool // nil means all skills are enabled
	always         map[string]bool
	defaultTimeout time.Duration
	skills         map[string]*entry
	funcs          map[string]map[string]registered
	dial           MCPDialFunc
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithEnabledSkills restricts discovery to the named skills. Skills marked
// always-included remain discoverable regardless.
func WithEnabledSkills(names []string) RegistryOption {
	return func(r *Registry) {
		if len(names) == 0 {
			return
		}
		r.enabled = make(map[string]bool, len(names))
		for _, n := range names {
			r.enabled[n] = true
		}
	}
}

// WithAlwaysInclude marks skills that bypass the allow-list, such as the
// verification skill that runs automatically rather than by model choice.
func WithAlwaysInclude(names ...string) RegistryOption {
	return func(r *Registry) {
		for _, n := range names {
			r.always[n] = true
		}
	}
}

// WithToolTimeout sets the default per-invocation timeout.
func WithToolTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

// WithMCPDialer replaces the MCP connection factory. Intended for tests.
func WithMCPDialer(dial MCPDialFunc) RegistryOption {
	return func(r *Registry) {
		if dial != nil {
			r.dial = dial
		}
	}
}

// NewRegistry scans dir for skills and builds the registry. Skills that
// fail to parse are logged and skipped; other skills still load.
func NewRegistry(dir string, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		dir:            dir,
		always:         make(map[string]bool),
		defaultTimeout: 30 * time.Second,
		skills:         make(map[string]*entry),
		funcs:          make(map[string]map[string]registered),
		dial:           dialMCP,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Rescan(); err != nil {
		return nil, err
	}
	return r, nil
}

// Rescan re-reads the skills directory, rebuilding metadata. Registered
// tool functions and memoized instructions survive a rescan; skills
// removed from disk are dropped and their MCP connections closed.
func (r *Registry) Rescan() error {
	specs, failed, err := LoadDir(r.dir)
	if err != nil {
		return err
	}
	for name, loadErr := range failed {
		slog.Warn("skills.load.failed",
			slog.String("skill", name),
			slog.String("error", loadErr.Error()),
		)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]*entry, len(specs))
	for _, spec := range specs {
		if prev, ok := r.skills[spec.Name]; ok {
			prev.spec = spec
			next[spec.Name] = prev
			continue
		}
		next[spec.Name] = &entry{spec: spec}
	}
	for name, prev := range r.skills {
		if _, ok := next[name]; !ok && prev.mcp != nil {
			prev.mcp.Close()
		}
	}
	r.skills = next
	return nil
}

// RegisterTool binds an in-process implementation to (skill, tool). The
// declaration supplies the schema shown to the model when the manifest
// does not declare the tool itself.
func (r *Registry) RegisterTool(skill, tool string, decl ToolDecl, fn ToolFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if decl.Name == "" {
		decl.Name = tool
	}
	byTool, ok := r.funcs[skill]
	if !ok {
		byTool = make(map[string]registered)
		r.funcs[skill] = byTool
	}
	byTool[tool] = registered{decl: decl, fn: fn}
}

// List returns metadata for all discoverable skills, sorted by name.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.skills))
	for name, e := range r.skills {
		if !r.discoverable(name) {
			continue
		}
		out = append(out, Metadata{Name: name, Description: e.spec.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Has reports whether a discoverable skill with the given name exists.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.skills[name]
	return ok && r.discoverable(name)
}

func (r *Registry) discoverable(name string) bool {
	if r.always[name] {
		return true
	}
	if r.enabled == nil {
		return true
	}
	return r.enabled[name]
}

// Activate loads and memoizes the skill's full instructions. Idempotent:
// repeated calls return the identical text without re-reading the file.
func (r *Registry) Activate(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.skills[name]
	if !ok || !r.discoverable(name) {
		return "", errors.NotFound(fmt.Sprintf("Skill '%s' not found", name))
	}
	if e.activated {
		return e.instructions, nil
	}
	instructions, err := e.spec.Instructions()
	if err != nil {
		return "", errors.New(errors.CodeInternal, fmt.Sprintf("load instructions for skill '%s'", name), err)
	}
	e.instructions = instructions
	e.activated = true
	return instructions, nil
}

// ToolsFor derives the tool schemas exposed to the model for a skill:
// manifest declarations first, then registered implementations not named
// in the manifest, then MCP-discovered tools.
func (r *Registry) ToolsFor(ctx context.Context, name string) ([]llm.Tool, error) {
	r.mu.Lock()
	e, ok := r.skills[name]
	if !ok || !r.discoverable(name) {
		r.mu.Unlock()
		return nil, errors.NotFound(fmt.Sprintf("Skill '%s' not found", name))
	}
	decls := append([]ToolDecl(nil), e.spec.Tools...)
	seen := make(map[string]bool, len(decls))
	for _, d := range decls {
		seen[d.Name] = true
	}
	var extra []ToolDecl
	for _, reg := range r.funcs[name] {
		if !seen[reg.decl.Name] {
			extra = append(extra, reg.decl)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].Name < extra[j].Name })
	decls = append(decls, extra...)
	needMCP := e.spec.MCP != nil && e.mcp == nil
	r.mu.Unlock()

	if needMCP {
		if err := r.connectMCP(ctx, name); err != nil {
			slog.Warn("skills.mcp.connect.failed",
				slog.String("skill", name),
				slog.String("error", err.Error()),
			)
		}
	}

	r.mu.RLock()
	for _, d := range e.mcpTools {
		if !seen[d.Name] {
			decls = append(decls, d)
			seen[d.Name] = true
		}
	}
	r.mu.RUnlock()

	tools := make([]llm.Tool, 0, len(decls))
	for _, d := range decls {
		tools = append(tools, d.ToolDefinition())
	}
	return tools, nil
}

// FindToolElsewhere scans every skill other than exclude for a tool with
// the given name. Best-effort convenience, not a guarantee: only
// registered implementations and already-connected MCP sets are searched.
func (r *Registry) FindToolElsewhere(tool, exclude string) (string, ToolFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == exclude || !r.discoverable(name) {
			continue
		}
		if reg, ok := r.funcs[name][tool]; ok {
			return name, reg.fn, true
		}
		e := r.skills[name]
		if e.mcp != nil {
			for _, d := range e.mcpTools {
				if d.Name == tool {
					return name, r.mcpToolFunc(e.mcp, tool), true
				}
			}
		}
	}
	return "", nil, false
}

// timeoutFor returns the invocation timeout for a skill.
func (r *Registry) timeoutFor(name string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.skills[name]; ok && e.spec.TimeoutSeconds > 0 {
		return time.Duration(e.spec.TimeoutSeconds) * time.Second
	}
	return r.defaultTimeout
}

// Close releases MCP connections.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, e := range r.skills {
		if e.mcp != nil {
			if err := e.mcp.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			e.mcp = nil
		}
	}
	return firstErr
}
