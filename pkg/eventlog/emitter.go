// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"context"
	"log/slog"

	"github.com/jllopis/heuris/pkg/core"
)

// Callback is a user-supplied progress hook, invoked synchronously once
// per event.
type Callback func(event core.Event)

// CallbackEmitter adapts a Callback into a core.EventEmitter. A panicking
// callback is recovered and logged; it never aborts the run.
type CallbackEmitter struct {
	fn Callback
}

// NewCallbackEmitter wraps fn. A nil fn yields a no-op emitter.
func NewCallbackEmitter(fn Callback) *CallbackEmitter {
	return &CallbackEmitter{fn: fn}
}

// Emit implements core.EventEmitter.
func (c *CallbackEmitter) Emit(_ context.Context, event core.Event) {
	if c.fn == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("eventlog.callback.panic",
				slog.String("event", string(event.Type)),
				slog.Any("panic", rec),
			)
		}
	}()
	c.fn(event)
}

// MultiEmitter fans one event out to several sinks in order.
type MultiEmitter struct {
	sinks []core.EventEmitter
}

// NewMultiEmitter composes sinks, skipping nils.
func NewMultiEmitter(sinks ...core.EventEmitter) *MultiEmitter {
	m := &MultiEmitter{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Emit implements core.EventEmitter.
func (m *MultiEmitter) Emit(ctx context.Context, event core.Event) {
	for _, s := range m.sinks {
		s.Emit(ctx, event)
	}
}
