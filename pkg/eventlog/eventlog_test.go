// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jllopis/heuris/pkg/core"
)

func testEvent(eventType core.EventType, runID string) core.Event {
	return core.Event{
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Payload:   map[string]any{"iteration": float64(1)},
	}
}

func TestJSONLSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	sink, err := NewJSONLSink(path)
	if err != nil {
		t.Fatalf("NewJSONLSink: %v", err)
	}
	sink.Emit(context.Background(), testEvent(core.EventRunStarted, "run-1"))
	sink.Emit(context.Background(), testEvent(core.EventToolCall, "run-1"))
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var lines []jsonlRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec jsonlRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line not JSON: %v", err)
		}
		lines = append(lines, rec)
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0].Type != core.EventRunStarted || lines[1].Type != core.EventToolCall {
		t.Errorf("types = %q, %q", lines[0].Type, lines[1].Type)
	}
	if lines[0].ID == "" || lines[0].ID == lines[1].ID {
		t.Error("events should carry distinct ids")
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	store.Emit(ctx, testEvent(core.EventRunStarted, "run-a"))
	store.Emit(ctx, testEvent(core.EventToolCall, "run-a"))
	store.Emit(ctx, testEvent(core.EventRunStarted, "run-b"))

	events, err := store.List(ctx, Filter{RunID: "run-a"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Type != core.EventRunStarted {
		t.Errorf("first type = %q", events[0].Type)
	}
	if events[0].Payload["iteration"] != float64(1) {
		t.Errorf("payload = %v", events[0].Payload)
	}

	byType, err := store.List(ctx, Filter{Type: core.EventRunStarted})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(byType) != 2 {
		t.Errorf("by type = %d, want 2", len(byType))
	}

	limited, err := store.List(ctx, Filter{Limit: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited = %d, want 1", len(limited))
	}
}

func TestCallbackEmitterRecoversPanic(t *testing.T) {
	calls := 0
	emitter := NewCallbackEmitter(func(event core.Event) {
		calls++
		panic("ui hook exploded")
	})
	emitter.Emit(context.Background(), testEvent(core.EventRunStarted, "run-1"))
	emitter.Emit(context.Background(), testEvent(core.EventRunFinished, "run-1"))
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (panic must not disable the hook)", calls)
	}
}

func TestMultiEmitterFansOut(t *testing.T) {
	var got []core.EventType
	a := NewCallbackEmitter(func(e core.Event) { got = append(got, e.Type) })
	b := NewCallbackEmitter(func(e core.Event) { got = append(got, e.Type) })
	m := NewMultiEmitter(a, nil, b)
	m.Emit(context.Background(), testEvent(core.EventToolResult, "run-1"))
	if len(got) != 2 {
		t.Fatalf("fan-out = %d, want 2", len(got))
	}
}
