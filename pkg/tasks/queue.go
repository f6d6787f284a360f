// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

// Package tasks implements the durable, directory-backed task queue the
// run-loop uses to gate completion. Tasks live as plain text files in two
// bins (incomplete, completed) under a workspace partition, with a single
// JSON marker for the active task. The layout survives process restarts.
package tasks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/jllopis/heuris/pkg/errors"
)

const (
	incompleteDir   = "incomplete_tasks"
	completedDir    = "completed_tasks"
	currentTaskFile = "CURRENT_TASK.json"
)

var taskFilePattern = regexp.MustCompile(`^task_(\d+)\.txt$`)

// Task is one unit of work in the queue.
type Task struct {
	Number      int    `json:"task_number"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// Queue is a directory-backed task queue. At most one task is active at a
// time; numbers are assigned by scanning both bins and are never reused,
// even after completion. Safe for concurrent use within a process.
type Queue struct {
	mu  sync.Mutex
	dir string
}

// New opens (creating if needed) a queue rooted at dir.
func New(dir string) (*Queue, error) {
	for _, sub := range []string{incompleteDir, completedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, errors.New(errors.CodeInternal, "create task queue directories", err)
		}
	}
	return &Queue{dir: dir}, nil
}

// Dir returns the queue's root directory.
func (q *Queue) Dir() string {
	return q.dir
}

// Create appends a task with the next unused number. The very first task
// ever created becomes immediately active.
func (q *Queue) Create(description string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.create(description)
}

// CreateBatch creates tasks in order. Only the first task of the first
// batch ever created becomes active.
func (q *Queue) CreateBatch(descriptions []string) ([]int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	numbers := make([]int, 0, len(descriptions))
	for _, d := range descriptions {
		n, err := q.create(d)
		if err != nil {
			return numbers, err
		}
		numbers = append(numbers, n)
	}
	return numbers, nil
}

func (q *Queue) create(description string) (int, error) {
	num := q.nextNumber()
	path := filepath.Join(q.dir, incompleteDir, taskFileName(num))
	if err := os.WriteFile(path, []byte(description), 0o644); err != nil {
		return 0, errors.New(errors.CodeInternal, "write task file", err)
	}
	if num == 1 {
		if err := q.setCurrent(&Task{Number: 1, Description: description, Status: "active"}); err != nil {
			return 0, err
		}
	}
	return num, nil
}

// Complete moves a task to the completed bin, storing result as its
// artifact, then advances to the lowest-numbered remaining incomplete
// task. It returns that task, or nil if the queue emptied. Completing an
// unknown or already-completed number fails with NotFound and changes
// nothing.
func (q *Queue) Complete(number int, result string) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	src := filepath.Join(q.dir, incompleteDir, taskFileName(number))
	if _, err := os.Stat(src); err != nil {
		return nil, errors.NotFound(fmt.Sprintf("Task %d not found in incomplete tasks", number))
	}
	dst := filepath.Join(q.dir, completedDir, taskFileName(number))
	if err := os.WriteFile(dst, []byte(result), 0o644); err != nil {
		return nil, errors.New(errors.CodeInternal, "write completed task", err)
	}
	if err := os.Remove(src); err != nil {
		return nil, errors.New(errors.CodeInternal, "remove incomplete task", err)
	}

	next, err := q.lowestIncomplete()
	if err != nil {
		return nil, err
	}
	if next == nil {
		if err := q.clearCurrent(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	next.Status = "active"
	if err := q.setCurrent(next); err != nil {
		return nil, err
	}
	return next, nil
}

// Current returns the active task, or nil when no task is active.
func (q *Queue) Current() (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	data, err := os.ReadFile(filepath.Join(q.dir, currentTaskFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "read current task", err)
	}
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, errors.New(errors.CodeInternal, "parse current task", err)
	}
	return &t, nil
}

// IsEmpty reports whether the incomplete bin has no tasks. The run-loop
// uses this to refuse final answers while work remains.
func (q *Queue) IsEmpty() (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	nums, err := q.numbersIn(incompleteDir)
	if err != nil {
		return false, err
	}
	return len(nums) == 0, nil
}

// Incomplete lists remaining tasks in number order.
func (q *Queue) Incomplete() ([]Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	nums, err := q.numbersIn(incompleteDir)
	if err != nil {
		return nil, err
	}
	sort.Ints(nums)
	out := make([]Task, 0, len(nums))
	for _, n := range nums {
		data, err := os.ReadFile(filepath.Join(q.dir, incompleteDir, taskFileName(n)))
		if err != nil {
			return nil, errors.New(errors.CodeInternal, "read task file", err)
		}
		out = append(out, Task{Number: n, Description: string(data), Status: "pending"})
	}
	return out, nil
}

// Results returns completed task artifacts keyed by task number.
func (q *Queue) Results() (map[int]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	nums, err := q.numbersIn(completedDir)
	if err != nil {
		return nil, err
	}
	out := make(map[int]string, len(nums))
	for _, n := range nums {
		data, err := os.ReadFile(filepath.Join(q.dir, completedDir, taskFileName(n)))
		if err != nil {
			return nil, errors.New(errors.CodeInternal, "read completed task", err)
		}
		out[n] = string(data)
	}
	return out, nil
}

// nextNumber scans both bins so completed numbers are never reassigned.
func (q *Queue) nextNumber() int {
	max := 0
	for _, sub := range []string{incompleteDir, completedDir} {
		nums, err := q.numbersIn(sub)
		if err != nil {
			continue
		}
		for _, n := range nums {
			if n > max {
				max = n
			}
		}
	}
	return max + 1
}

func (q *Queue) lowestIncomplete() (*Task, error) {
	nums, err := q.numbersIn(incompleteDir)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return nil, nil
	}
	sort.Ints(nums)
	n := nums[0]
	data, err := os.ReadFile(filepath.Join(q.dir, incompleteDir, taskFileName(n)))
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "read task file", err)
	}
	return &Task{Number: n, Description: string(data)}, nil
}

func (q *Queue) numbersIn(sub string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(q.dir, sub))
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "list task bin", err)
	}
	var nums []int
	for _, entry := range entries {
		m := taskFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	return nums, nil
}

func (q *Queue) setCurrent(t *Task) error {
	t.Status = "active"
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return errors.New(errors.CodeInternal, "encode current task", err)
	}
	if err := os.WriteFile(filepath.Join(q.dir, currentTaskFile), data, 0o644); err != nil {
		return errors.New(errors.CodeInternal, "write current task", err)
	}
	return nil
}

func (q *Queue) clearCurrent() error {
	err := os.Remove(filepath.Join(q.dir, currentTaskFile))
	if err != nil && !os.IsNotExist(err) {
		return errors.New(errors.CodeInternal, "clear current task", err)
	}
	return nil
}

func taskFileName(n int) string {
	return fmt.Sprintf("task_%d.txt", n)
}
