package kfmt

import (
	"nucleus/kernel"
	"nucleus/kernel/cpu"
)

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}

	panicBanner = "PANIC AT THE DISCO!\r\n"
)

// sourceLineWidth is the column width used when the panic path wraps the
// file/line location of the caller.
const sourceLineWidth = 70

// Panic outputs the supplied error (if not nil) to the console and halts the
// CPU. Calls to Panic never return. Panic also works as a redirection target
// for calls to panic() (resolved via runtime.gopanic).
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		panicString(t)
		return
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf(panicBanner)
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}

	cpuHaltFn()
}

// panicString serves as a redirect target for runtime.throw.
//go:redirect-from runtime.throw
func panicString(msg string) {
	errRuntimePanic.Message = msg
	Panic(errRuntimePanic)
}

// PanicAt behaves like Panic but additionally reports the call site,
// wrapping the file path at sourceLineWidth columns. Board bring-up code
// that cannot rely on runtime.Caller (it may run before the reflection
// machinery is safe to touch) passes its own file/line instead.
func PanicAt(e interface{}, file string, line int) {
	Printf(panicBanner)

	switch t := e.(type) {
	case *kernel.Error:
		Printf("[%s] unrecoverable error: %s\n", t.Module, t.Message)
	case string:
		Printf("unrecoverable error: %s\n", t)
	}

	for loc := file; len(loc) > 0; {
		chunk := loc
		if len(chunk) > sourceLineWidth {
			chunk = chunk[:sourceLineWidth]
		}
		Printf("%s\n", chunk)
		loc = loc[len(chunk):]
	}
	Printf("line %d\n", line)

	cpuHaltFn()
}
