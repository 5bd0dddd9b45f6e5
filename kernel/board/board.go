// Package board holds the resolved build-time board configuration consumed
// by kernel bring-up. The values here are normally overwritten by a file
// generated by cmd/mkconfig from config.toml (see that tool's doc comment);
// the literal below is the default used when no generated file has been
// dropped in, matching the single board this tree is tested against.
package board

import "nucleus/kernel"

// Config describes the subset of config.toml that board bring-up needs at
// run time. It intentionally mirrors config.Config's shape but does not
// import that package (or, transitively, go-toml): this file is compiled
// into the freestanding kernel binary, which has no file system and no
// business linking a TOML decoder.
type Config struct {
	// MachineName selects the target board; it must be one of the names
	// in SupportedMachines.
	MachineName string
	// ACPI, when true, makes kmain call acpi.Probe during bring-up.
	ACPI bool
}

// SupportedMachines lists the machine_name values board bring-up knows how
// to initialize. cmd/mkconfig validates config.toml against the same list
// host-side, before generating the file that sets Active.
var SupportedMachines = []string{"qemu-pc", "qemu-q35"}

// Active is the board configuration used by kmain. It is a package
// variable, rather than a value threaded through Kmain's arguments, because
// the rt0 entry point's signature is fixed by the assembly stub that calls
// it (see kernel/kmain).
var Active = Config{MachineName: "qemu-pc", ACPI: true}

var errUnknownMachine = &kernel.Error{Module: "board", Message: "unrecognised machine_name in active configuration"}

// Validate checks that Active names a supported machine. kmain calls this
// before touching any hardware so a bad build-time config fails fast with a
// diagnosable panic instead of probing devices under the wrong assumptions.
func (c Config) Validate() *kernel.Error {
	for _, name := range SupportedMachines {
		if c.MachineName == name {
			return nil
		}
	}
	return errUnknownMachine
}
