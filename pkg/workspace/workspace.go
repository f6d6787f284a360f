// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

// Package workspace manages the scratch directory tree that backs a run:
// the task-queue partitions, tool-produced artifacts, the fetched-page
// cache, and persisted transcripts. Sessions get disjoint partitions so
// concurrent runs never share scratch state.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Workspace is a rooted scratch directory. Clear removes its contents at
// the start of a run except for sub-paths named in the preserve list.
type Workspace struct {
	root     string
	preserve map[string]bool
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithPreserve names direct children that survive Clear, such as the
// fetched-page cache when a session spans multiple runs.
func WithPreserve(names ...string) Option {
	return func(w *Workspace) {
		for _, n := range names {
			w.preserve[n] = true
		}
	}
}

// New opens (creating if needed) a workspace rooted at dir.
func New(dir string, opts ...Option) (*Workspace, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	w := &Workspace{root: dir, preserve: make(map[string]bool)}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return w.root
}

// Path joins parts under the workspace root.
func (w *Workspace) Path(parts ...string) string {
	return filepath.Join(append([]string{w.root}, parts...)...)
}

// Session returns a child workspace under sessions/<id>, creating it if
// needed. The id is sanitized against path traversal. The child inherits
// the preserve list.
func (w *Workspace) Session(id string) (*Workspace, error) {
	safe := sanitizeName(id)
	if safe == "" {
		return nil, fmt.Errorf("invalid session id %q", id)
	}
	child, err := New(filepath.Join(w.root, "sessions", safe))
	if err != nil {
		return nil, err
	}
	for n := range w.preserve {
		child.preserve[n] = true
	}
	return child, nil
}

// Clear removes the workspace contents, skipping preserved sub-paths.
func (w *Workspace) Clear() error {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(w.root, 0o755)
		}
		return fmt.Errorf("list workspace: %w", err)
	}
	for _, entry := range entries {
		if w.preserve[entry.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(w.root, entry.Name())); err != nil {
			return fmt.Errorf("clear workspace: %w", err)
		}
	}
	return nil
}

// SaveUserQuery records the run's input where skill tools can read it.
func (w *Workspace) SaveUserQuery(query string) error {
	return os.WriteFile(w.Path("USER_QUERY.txt"), []byte(query), 0o644)
}

// UserQuery returns the recorded run input, or "" when absent.
func (w *Workspace) UserQuery() string {
	data, err := os.ReadFile(w.Path("USER_QUERY.txt"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizeName(name string) string {
	safe := filepath.Base(strings.TrimSpace(name))
	safe = unsafeChars.ReplaceAllString(safe, "_")
	safe = strings.Trim(safe, "._")
	return safe
}
