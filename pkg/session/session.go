// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

// Package session multiplexes agents across callers. Each session owns an
// agent over its own workspace partition; an optional reaper evicts
// sessions idle past a timeout.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/heuris/pkg/agent"
	"github.com/jllopis/heuris/pkg/core"
	"github.com/jllopis/heuris/pkg/workspace"
)

// Session binds one caller to an agent and its workspace partition.
type Session struct {
	ID        string
	Agent     *agent.Agent
	Workspace *workspace.Workspace

	mu       sync.Mutex
	lastUsed time.Time
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Factory builds the agent for a new session over its partition.
type Factory func(id string, ws *workspace.Workspace) (*agent.Agent, error)

// Manager owns the session map and the idle reaper.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	root    *workspace.Workspace
	factory Factory

	idleTimeout  time.Duration
	reapInterval time.Duration
	stopCh       chan struct{}
	doneCh       chan struct{}
	started      bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithIdleTimeout sets how long a session may sit unused before the
// reaper evicts it. Zero disables eviction.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.idleTimeout = d
	}
}

// WithReapInterval sets the reaper's polling interval.
func WithReapInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.reapInterval = d
		}
	}
}

// NewManager creates a session manager partitioning root per session.
func NewManager(root *workspace.Workspace, factory Factory, opts ...ManagerOption) (*Manager, error) {
	if root == nil {
		return nil, fmt.Errorf("root workspace is required")
	}
	if factory == nil {
		return nil, fmt.Errorf("session factory is required")
	}
	m := &Manager{
		sessions:     make(map[string]*Session),
		root:         root,
		factory:      factory,
		reapInterval: time.Minute,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Get returns the session with the given id, creating it on first use.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	ws, err := m.root.Session(id)
	if err != nil {
		return nil, err
	}
	a, err := m.factory(id, ws)
	if err != nil {
		return nil, err
	}
	s = &Session{ID: id, Agent: a, Workspace: ws, lastUsed: time.Now()}
	m.sessions[id] = s
	return s, nil
}

// Run executes one input against a session's agent, stamping the session
// id into the context so events carry it.
func (m *Manager) Run(ctx context.Context, id, input string) (string, error) {
	s, err := m.Get(id)
	if err != nil {
		return "", err
	}
	s.touch()
	ctx = core.WithSessionID(ctx, id)
	answer := s.Agent.Run(ctx, input)
	s.touch()
	return answer, nil
}

// Remove drops a session from the map. Its workspace partition stays on
// disk.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// List returns the active session ids, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartReaper launches the idle-eviction goroutine. No-op when the idle
// timeout is zero or the reaper already runs.
func (m *Manager) StartReaper() {
	m.mu.Lock()
	if m.started || m.idleTimeout <= 0 {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go func() {
		defer close(m.doneCh)
		ticker := time.NewTicker(m.reapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.reap()
			}
		}
	}()
}

// Stop halts the reaper and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
	if started {
		<-m.doneCh
	}
}

// reap evicts sessions idle past the timeout.
func (m *Manager) reap() {
	ctx, span := otel.Tracer("heuris/session").Start(context.Background(), "session.reap",
		trace.WithAttributes(
			attribute.String("idle_timeout", m.idleTimeout.String()),
		))
	defer span.End()

	cutoff := time.Now().Add(-m.idleTimeout)

	m.mu.Lock()
	var evicted []string
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			delete(m.sessions, id)
			evicted = append(evicted, id)
		}
	}
	m.mu.Unlock()

	span.SetAttributes(attribute.Int("evicted", len(evicted)))
	for _, id := range evicted {
		slog.InfoContext(ctx, "session.reaped", slog.String("session", id))
	}
}
