// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/heuris/pkg/llm"
)

// Transcript is one run's persisted conversation.
type Transcript struct {
	ID         string        `json:"id"`
	RunID      string        `json:"run_id"`
	Input      string        `json:"input"`
	Answer     string        `json:"answer"`
	Messages   []llm.Message `json:"messages"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// TranscriptStore persists transcripts as one JSON file per run.
type TranscriptStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewTranscriptStore creates a file-based transcript store under dir.
func NewTranscriptStore(dir string) (*TranscriptStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}
	return &TranscriptStore{baseDir: dir}, nil
}

func (s *TranscriptStore) runFile(runID string) string {
	safe := sanitizeName(runID)
	return filepath.Join(s.baseDir, safe+".json")
}

// Save writes a transcript, assigning an ID and finish time if unset.
func (s *TranscriptStore) Save(t Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.RunID == "" {
		t.RunID = t.ID
	}
	if t.FinishedAt.IsZero() {
		t.FinishedAt = time.Now()
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return os.WriteFile(s.runFile(t.RunID), data, 0o644)
}

// Load reads the transcript for a run. Returns nil when none exists.
func (s *TranscriptStore) Load(runID string) (*Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.runFile(runID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return &t, nil
}

// List returns the run IDs with stored transcripts, sorted.
func (s *TranscriptStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
