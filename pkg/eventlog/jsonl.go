// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventlog provides event sinks for the run-loop's structured
// log: an append-only JSONL file, a SQLite audit store, a synchronous
// callback adapter, and a fan-out composer.
package eventlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/heuris/pkg/core"
)

type jsonlRecord struct {
	ID        string         `json:"id"`
	Type      core.EventType `json:"type"`
	RunID     string         `json:"run_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// JSONLSink appends one JSON object per event to a log file.
type JSONLSink struct {
	mu sync.Mutex
	f  *os.File
}

// NewJSONLSink opens (appending) the log file at path.
func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{f: f}, nil
}

// Emit implements core.EventEmitter. Write failures are logged, never
// surfaced to the run.
func (s *JSONLSink) Emit(_ context.Context, event core.Event) {
	rec := jsonlRecord{
		ID:        uuid.New().String(),
		Type:      event.Type,
		RunID:     event.RunID,
		SessionID: event.SessionID,
		Timestamp: event.Timestamp,
		Payload:   event.Payload,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		slog.Warn("eventlog.encode.failed", slog.String("error", err.Error()))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(append(data, '\n')); err != nil {
		slog.Warn("eventlog.write.failed", slog.String("error", err.Error()))
	}
}

// Close closes the underlying file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
