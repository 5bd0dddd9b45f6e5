// Package config parses and validates config.toml, the build-time
// description of which board nucleus is being built for. It runs entirely
// host-side, under cmd/mkconfig: the freestanding kernel binary never links
// this package (see kernel/board for the copy it actually consumes), so
// there is no concern about pulling a TOML decoder or the os package into a
// binary that has neither a file system nor, before bring-up, a heap.
package config

import (
	"os"

	"nucleus/kernel"

	"github.com/pelletier/go-toml/v2"
)

// Config mirrors the config.toml schema understood by nucleus. It exists
// separately from kernel/board.Config so the two sides of the build (host
// tool vs. freestanding binary) never share an import, only a generated
// literal.
type Config struct {
	MachineName string `toml:"machine_name"`
	ACPI        bool   `toml:"acpi"`
}

var errInvalid = &kernel.Error{Module: "config", Message: "invalid configuration"}

// knownMachines is kept in sync with kernel/board.SupportedMachines; it is
// duplicated rather than imported so that this package never depends on
// anything that ends up in the freestanding binary.
var knownMachines = map[string]bool{
	"qemu-pc":  true,
	"qemu-q35": true,
}

// Load reads and parses the config.toml at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the parsed config names a recognised machine and
// that the requested target architecture matches what nucleus currently
// supports (amd64 only). It returns kernel.ErrInvalidConfiguration's
// sibling errInvalid, keeping the same taxonomy cmd/mkconfig reports
// failures with as the one the freestanding side uses for the equivalent
// check in kernel/board.
func (c *Config) Validate(targetArch string) *kernel.Error {
	if targetArch != "amd64" {
		return errInvalid
	}
	if !knownMachines[c.MachineName] {
		return errInvalid
	}
	return nil
}
