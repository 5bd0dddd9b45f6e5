package sync

import "nucleus/kernel/cpu"

var (
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts
)

// IRQSpinlock is a Spinlock variant for data shared between task context and
// an interrupt handler. Acquiring a plain Spinlock from an IRQ handler while
// the same lock is held by interrupted task-context code deadlocks the core
// (the handler can never yield back to the holder), so IRQSpinlock raises the
// IPL before attempting the acquire, preventing the interrupt that would
// re-enter the critical section from firing on this core in the first place.
//
// Callers that only ever touch a piece of state from task context should use
// Spinlock instead; promoting every lock to IRQSpinlock disables interrupts
// unnecessarily and widens the window during which the core is deaf to
// device/timer IRQs.
type IRQSpinlock struct {
	inner Spinlock
}

// Acquire disables interrupts on the current core and blocks until the lock
// is acquired.
func (l *IRQSpinlock) Acquire() {
	disableInterruptsFn()
	l.inner.Acquire()
}

// Release relinquishes the lock and re-enables interrupts on the current
// core. Calling Release while the lock is free has no effect beyond
// re-enabling interrupts.
func (l *IRQSpinlock) Release() {
	l.inner.Release()
	enableInterruptsFn()
}
