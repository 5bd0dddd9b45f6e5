// Package sched implements an optional, cooperative-by-default preemptive
// round-robin scheduler. It is a thin layer on top of kernel/gate's
// interrupt-gate mechanism: a timer interrupt handler saves the interrupted
// thread's register snapshot, picks the next runnable thread in ring order,
// and overwrites the snapshot in place so the CPU resumes into the new
// thread when the handler returns. There are no priorities and no SMP — one
// core, one ready ring, ticks decide when to rotate it.
package sched

import "nucleus/kernel/gate"

// ThreadID identifies a thread registered with the scheduler.
type ThreadID uint64

// ThreadState tracks whether a thread should still be considered for
// scheduling.
type ThreadState uint8

const (
	// Runnable threads participate in round-robin rotation.
	Runnable ThreadState = iota
	// Exited threads are skipped and pruned from the ring on next rotation.
	Exited
)

// Thread is a preemptible unit of execution: its register file is saved and
// restored wholesale across timer ticks.
type Thread struct {
	id    ThreadID
	regs  gate.Registers
	state ThreadState
}

// ID returns the thread's identifier.
func (t *Thread) ID() ThreadID { return t.id }

// Exit marks the thread as no longer runnable; it is removed from the ring
// on the next tick.
func (t *Thread) Exit() { t.state = Exited }

// Scheduler rotates a fixed ring of threads on each timer tick. It is not
// safe for concurrent use from more than one core; nucleus targets single
// core bring-up (see the multiprocessing non-goal).
type Scheduler struct {
	nextID  ThreadID
	ring    []*Thread
	current int
}

// New constructs an empty Scheduler. Call Spawn to populate it with at
// least one thread before arming the timer via ArmPreemption.
func New() *Scheduler {
	return &Scheduler{current: -1}
}

// Spawn registers a new thread with the given initial register state
// (typically an entry point address in RIP, a fresh stack in RSP/RBP and
// the kernel code/data selectors in CS/SS) and returns its id.
func (s *Scheduler) Spawn(initial gate.Registers) ThreadID {
	id := s.nextID
	s.nextID++

	t := &Thread{id: id, regs: initial, state: Runnable}
	s.ring = append(s.ring, t)
	if s.current < 0 {
		s.current = 0
	}
	return id
}

// Current returns the thread presently executing, or nil if none has been
// scheduled yet.
func (s *Scheduler) Current() *Thread {
	if s.current < 0 || s.current >= len(s.ring) {
		return nil
	}
	return s.ring[s.current]
}

// pruneExited drops exited threads from the ring, keeping current pointing
// at the same logical thread (or rolling over to 0 if it was pruned).
func (s *Scheduler) pruneExited() {
	if len(s.ring) == 0 {
		return
	}

	curID := ThreadID(0)
	hadCurrent := s.current >= 0 && s.current < len(s.ring)
	if hadCurrent {
		curID = s.ring[s.current].id
	}

	kept := s.ring[:0]
	for _, t := range s.ring {
		if t.state != Exited {
			kept = append(kept, t)
		}
	}
	s.ring = kept

	s.current = -1
	if hadCurrent {
		for i, t := range s.ring {
			if t.id == curID {
				s.current = i
				break
			}
		}
	}
	if s.current < 0 && len(s.ring) > 0 {
		s.current = 0
	}
}

// next returns the ring index to run after the current one, wrapping
// around and skipping nothing but exited entries (already pruned).
func (s *Scheduler) next() int {
	if len(s.ring) == 0 {
		return -1
	}
	return (s.current + 1) % len(s.ring)
}

// onTick is invoked on every timer interrupt. It saves the interrupted
// thread's registers, rotates to the next runnable thread and overwrites
// regs in place so the return-from-interrupt path resumes the new thread.
// A Scheduler with zero or one runnable threads leaves regs untouched.
func (s *Scheduler) onTick(regs *gate.Registers) {
	interrupted := s.Current()
	s.pruneExited()
	if len(s.ring) == 0 {
		return
	}

	if interrupted != nil && interrupted.state != Exited {
		interrupted.regs = *regs
	}

	s.current = s.next()
	*regs = s.ring[s.current].regs
}

// timerVector is the interrupt number the platform routes its periodic
// timer (e.g. PIT channel 0 or LAPIC timer) to. It mirrors the IRQ0 wiring
// already used by the platform's interrupt controller setup.
const timerVector = gate.InterruptNumber(32)

// ArmPreemption installs the scheduler's tick handler on the timer vector.
// Until this is called, Spawn'd threads are inert bookkeeping only — the
// preemptive path is entirely opt-in, consistent with nucleus running
// purely cooperatively by default.
func (s *Scheduler) ArmPreemption() {
	gate.HandleInterrupt(timerVector, 0, s.onTick)
}
