// Package hal collects the small set of platform collaborators that the
// core cannot implement itself: the text display the panic path and early
// logger write to, the idle hook the executor calls between ready-queue
// drains, and the IRQ line router that device drivers attach to. Board
// bring-up (clocks, GPIO muxing, USART bit-banging, the VGA text back-end,
// LCD/DSI panels) lives outside the core and satisfies these interfaces.
package hal

import (
	"io"

	"nucleus/kernel/gate"
)

// irqBase is the interrupt vector the platform's interrupt controller is
// programmed to deliver IRQ line 0 on (pc64 remaps the legacy PIC past the
// CPU exception range, to vector 32).
const irqBase = 32

// AttachIRQ routes hardware interrupt line n to handler, letting device
// drivers (e.g. nucleus/kernel/net/e1000) register completion callbacks
// without reaching into gate/irq directly. handler runs with interrupts
// masked, as for any other interrupt gate.
func AttachIRQ(line uint8, handler func()) {
	gate.HandleInterrupt(gate.InterruptNumber(irqBase+line), 0, func(*gate.Registers) {
		handler()
	})
}

// TextDisplay is the narrow trait implemented by whatever console the
// platform exposes (VGA text mode on pc64, a board LCD/UART on the
// microcontroller target). The core never assumes more than "can accept a
// byte string".
type TextDisplay interface {
	WriteString(s string) (int, error)
}

// nullDisplay discards everything written to it. It is installed until a
// real display registers itself so that early boot code can always call
// ActiveDisplay() safely.
type nullDisplay struct{}

func (nullDisplay) WriteString(s string) (int, error) { return len(s), nil }

var activeDisplay TextDisplay = nullDisplay{}

// SetDisplay installs the platform's text display. Called once by board
// bring-up after the console is probed.
func SetDisplay(d TextDisplay) {
	if d == nil {
		activeDisplay = nullDisplay{}
		return
	}
	activeDisplay = d
}

// ActiveDisplay returns the currently installed text display.
func ActiveDisplay() TextDisplay {
	return activeDisplay
}

// displayWriter adapts a TextDisplay to io.Writer so it can be handed to
// kfmt.Fprintf/SetOutputSink and anything else in this tree that logs
// through the standard Writer interface instead of WriteString directly.
type displayWriter struct{}

func (displayWriter) Write(p []byte) (int, error) {
	return activeDisplay.WriteString(string(p))
}

// Writer returns an io.Writer backed by whatever display is currently
// active, tracking SetDisplay calls rather than snapshotting one display.
func Writer() io.Writer {
	return displayWriter{}
}

// IdleFn halts the CPU until the next interrupt arrives. The executor calls
// it between ready-queue drains when there is nothing runnable, so the core
// never busy-spins waiting for device or timer interrupts.
type IdleFn func()

var idle IdleFn = func() {}

// SetIdle installs the platform's wait-for-interrupt primitive (HLT on
// pc64, WFI on the Cortex-M target).
func SetIdle(fn IdleFn) {
	if fn == nil {
		fn = func() {}
	}
	idle = fn
}

// IdleIf calls the installed idle function only when empty is true. It is
// named after the executor's own idle_if(ready.is_empty) call so the two
// stay obviously paired when reading the scheduler loop.
func IdleIf(empty bool) {
	if empty {
		idle()
	}
}
