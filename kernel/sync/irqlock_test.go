package sync

import (
	"runtime"
	"testing"
)

func TestIRQSpinlock(t *testing.T) {
	defer func(origYieldFn func()) { yieldFn = origYieldFn }(yieldFn)
	yieldFn = runtime.Gosched

	defer func(origDisable, origEnable func()) {
		disableInterruptsFn = origDisable
		enableInterruptsFn = origEnable
	}(disableInterruptsFn, enableInterruptsFn)

	var disableCount, enableCount int
	disableInterruptsFn = func() { disableCount++ }
	enableInterruptsFn = func() { enableCount++ }

	var l IRQSpinlock
	l.Acquire()

	if disableCount != 1 {
		t.Errorf("expected Acquire to disable interrupts once; got %d calls", disableCount)
	}
	if enableCount != 0 {
		t.Errorf("expected interrupts to stay disabled while the lock is held; got %d enable calls", enableCount)
	}

	if l.inner.TryToAcquire() {
		l.inner.Release()
		t.Fatal("expected the underlying spinlock to be held after Acquire")
	}

	l.Release()

	if enableCount != 1 {
		t.Errorf("expected Release to re-enable interrupts once; got %d calls", enableCount)
	}
}
