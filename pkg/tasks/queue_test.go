// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package tasks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jllopis/heuris/pkg/errors"
)

func newQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return q
}

func TestCreateFirstTaskBecomesActive(t *testing.T) {
	q := newQueue(t)
	n, err := q.Create("find the population of Reykjavik")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n != 1 {
		t.Errorf("number = %d, want 1", n)
	}
	cur, err := q.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur == nil || cur.Number != 1 || cur.Status != "active" {
		t.Errorf("current = %+v", cur)
	}
}

func TestCreateBatchOnlyFirstActive(t *testing.T) {
	q := newQueue(t)
	nums, err := q.CreateBatch([]string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if len(nums) != 3 || nums[0] != 1 || nums[2] != 3 {
		t.Fatalf("numbers = %v", nums)
	}
	cur, err := q.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur == nil || cur.Number != 1 {
		t.Errorf("current = %+v, want task 1", cur)
	}
}

func TestNumbersNeverReused(t *testing.T) {
	q := newQueue(t)
	if _, err := q.Create("first"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := q.Create("second"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := q.Complete(1, "done"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	n, err := q.Create("third")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n != 3 {
		t.Errorf("number = %d, want 3 (1 completed, not reusable)", n)
	}
}

func TestCompleteAdvancesToLowest(t *testing.T) {
	q := newQueue(t)
	if _, err := q.CreateBatch([]string{"a", "b", "c"}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	next, err := q.Complete(1, "result a")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if next == nil || next.Number != 2 || next.Description != "b" {
		t.Fatalf("next = %+v, want task 2", next)
	}
	cur, _ := q.Current()
	if cur == nil || cur.Number != 2 || cur.Status != "active" {
		t.Errorf("current = %+v", cur)
	}

	// Completing out of order still advances to the lowest remaining.
	next, err = q.Complete(3, "result c")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if next == nil || next.Number != 2 {
		t.Errorf("next = %+v, want task 2 still", next)
	}
}

func TestCompleteLastClearsCurrent(t *testing.T) {
	q := newQueue(t)
	if _, err := q.Create("only"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	next, err := q.Complete(1, "answer text")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if next != nil {
		t.Errorf("next = %+v, want nil", next)
	}
	cur, err := q.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur != nil {
		t.Errorf("current = %+v, want nil", cur)
	}
	empty, err := q.IsEmpty()
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if !empty {
		t.Error("queue should be empty")
	}
}

func TestCompleteUnknownIsNotFound(t *testing.T) {
	q := newQueue(t)
	if _, err := q.Create("a"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := q.Complete(99, "x"); !errors.IsCode(err, errors.CodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
	// Double-completion is the same error and mutates nothing.
	if _, err := q.Complete(1, "done"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := q.Complete(1, "again"); !errors.IsCode(err, errors.CodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
	results, err := q.Results()
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if results[1] != "done" {
		t.Errorf("artifact = %q, want first result kept", results[1])
	}
}

func TestTwoTaskScenario(t *testing.T) {
	// create A, create B, complete A: B active; complete B: queue empty.
	q := newQueue(t)
	if _, err := q.Create("A"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := q.Create("B"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	next, err := q.Complete(1, "ra")
	if err != nil {
		t.Fatalf("Complete A: %v", err)
	}
	if next == nil || next.Description != "B" {
		t.Fatalf("next = %+v, want B", next)
	}
	next, err = q.Complete(2, "rb")
	if err != nil {
		t.Fatalf("Complete B: %v", err)
	}
	if next != nil {
		t.Errorf("next = %+v, want nil", next)
	}
	empty, _ := q.IsEmpty()
	if !empty {
		t.Error("queue should be empty")
	}
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	q, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := q.CreateBatch([]string{"a", "b"}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	q2, err := New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	tasks, err := q2.Incomplete()
	if err != nil {
		t.Fatalf("Incomplete: %v", err)
	}
	if len(tasks) != 2 || tasks[0].Description != "a" {
		t.Fatalf("tasks = %+v", tasks)
	}
	n, err := q2.Create("c")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n != 3 {
		t.Errorf("number = %d, want 3", n)
	}
}

func TestOnDiskLayout(t *testing.T) {
	dir := t.TempDir()
	q, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := q.Create("inspect me"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "incomplete_tasks", "task_1.txt"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "inspect me" {
		t.Errorf("content = %q", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "CURRENT_TASK.json")); err != nil {
		t.Errorf("CURRENT_TASK.json missing: %v", err)
	}
	if _, err := q.Complete(1, "seen"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "completed_tasks", "task_1.txt")); err != nil {
		t.Errorf("completed file missing: %v", err)
	}
}
