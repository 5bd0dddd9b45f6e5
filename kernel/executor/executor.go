// Package executor implements the single-threaded, cooperative task
// scheduler that drives device I/O and other asynchronous work. Tasks are
// polled to completion via a Waker that re-queues them; the executor calls
// nucleus/kernel/hal.IdleIf between drains so the CPU halts rather than
// busy-spins when there is nothing runnable.
package executor

import "nucleus/kernel/hal"

// TaskID identifies a spawned task.
type TaskID uint64

// PollResult is returned by Future.Poll.
type PollResult uint8

const (
	// Pending indicates the future has not completed and will call
	// Waker.Wake once it becomes runnable again.
	Pending PollResult = iota
	// Ready indicates the future has completed; the task is removed.
	Ready
)

// Future is the suspendable unit of work a Task wraps. Poll is called with
// a Waker the future should retain and invoke once it wants to run again.
type Future interface {
	Poll(w *Waker) PollResult
}

// Waker re-queues a task onto the executor's ready queue. Wake takes no lock
// and does not mask interrupts, so it is not synchronized against a RunOnce
// that is in progress.
type Waker struct {
	id  TaskID
	exe *Executor
}

// Wake schedules the waker's task to run again on the next drain. Waking a
// task that has already completed (or was never spawned on this executor)
// is a no-op.
func (w *Waker) Wake() {
	w.exe.enqueue(w.id)
}

// readyQueueCapacity bounds the executor's ready queue; a task that wakes
// itself more often than the queue can hold between drains has its extra
// wakes coalesced (a woken task that is already queued is not re-added).
const readyQueueCapacity = 256

// Executor runs a fixed (but growable) set of cooperative tasks to
// completion, single-threaded.
type Executor struct {
	nextID   TaskID
	tasks    map[TaskID]Future
	wakers   map[TaskID]*Waker
	ready    []TaskID
	queued   map[TaskID]bool
}

// New constructs an empty Executor.
func New() *Executor {
	return &Executor{
		tasks:  make(map[TaskID]Future),
		wakers: make(map[TaskID]*Waker),
		queued: make(map[TaskID]bool),
	}
}

// Spawn registers a future as a new task and marks it immediately runnable.
func (e *Executor) Spawn(f Future) TaskID {
	id := e.nextID
	e.nextID++

	e.tasks[id] = f
	e.wakers[id] = &Waker{id: id, exe: e}
	e.enqueue(id)
	return id
}

func (e *Executor) enqueue(id TaskID) {
	if _, ok := e.tasks[id]; !ok {
		return
	}
	if e.queued[id] {
		return
	}
	if len(e.ready) >= readyQueueCapacity {
		// The ready queue is bounded; a task that floods wakes beyond
		// capacity simply won't be re-queued until the next drain frees
		// room. This mirrors the spec's bounded MPMC ready queue.
		return
	}

	e.ready = append(e.ready, id)
	e.queued[id] = true
}

// RunOnce drains every task id currently in the ready queue exactly once:
// ids woken during this call by a task's own Poll are picked up on the
// *next* RunOnce, not this one, so a single call always makes bounded
// progress.
func (e *Executor) RunOnce() {
	batch := e.ready
	e.ready = nil

	for _, id := range batch {
		e.queued[id] = false

		f, ok := e.tasks[id]
		if !ok {
			continue
		}

		if f.Poll(e.wakers[id]) == Ready {
			delete(e.tasks, id)
			delete(e.wakers, id)
			delete(e.queued, id)
		}
	}
}

// Run loops RunOnce forever, calling hal.IdleIf between drains whenever the
// ready queue is empty so the core halts until the next interrupt wakes a
// task.
func (e *Executor) Run() {
	for {
		e.RunOnce()
		hal.IdleIf(len(e.ready) == 0)
	}
}

// Len returns the number of tasks currently tracked (running or queued),
// for diagnostics/tests.
func (e *Executor) Len() int {
	return len(e.tasks)
}
