// Package taskqueue implements the bounded FIFO task queue that feeds
// the executor. Tasks are stored by value: the queue never hands out
// a pointer into its own backing storage, so a caller holding a
// popped task cannot observe or corrupt a later mutation of the slot
// it came from.
package taskqueue

import (
	"sync"

	"github.com/greenfield-labs/irrigctl/pkg/types"
)

// Capacity is the fixed size of the bounded queue.
const Capacity = 10

// Queue is a capacity-bounded FIFO of pending tasks.
type Queue struct {
	mu    sync.Mutex
	tasks []types.Task
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{tasks: make([]types.Task, 0, Capacity)}
}

// Enqueue appends a task to the back of the queue. It returns
// ErrQueueFull once Capacity tasks are pending.
func (q *Queue) Enqueue(t types.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) >= Capacity {
		return types.ErrQueueFull
	}
	q.tasks = append(q.tasks, t)
	return nil
}

// Pop removes and returns the task at the front of the queue. ok is
// false if the queue is empty.
func (q *Queue) Pop() (task types.Task, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return types.Task{}, false
	}
	task = q.tasks[0]
	q.tasks = q.tasks[1:]
	return task, true
}

// Peek returns the front task without removing it.
func (q *Queue) Peek() (task types.Task, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return types.Task{}, false
	}
	return q.tasks[0], true
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Snapshot returns a copy of the pending tasks, front first. Intended
// for status reporting; mutating the returned slice has no effect on
// the queue.
func (q *Queue) Snapshot() []types.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]types.Task, len(q.tasks))
	copy(out, q.tasks)
	return out
}

// RemoveForChannel drops all pending tasks for a channel and returns
// how many were removed.
func (q *Queue) RemoveForChannel(id types.ChannelID) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.tasks[:0]
	removed := 0
	for _, t := range q.tasks {
		if t.ChannelID == id {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	q.tasks = kept
	return removed
}
