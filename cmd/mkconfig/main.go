// Command mkconfig reads config.toml and emits the kernel/board source file
// that sets board.Active, so the freestanding kernel binary can consume the
// resolved board configuration without linking a TOML decoder itself.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"go/parser"
	"go/printer"
	"go/token"
	"os"

	"nucleus/config"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[mkconfig] error: %s\n", err.Error())
	os.Exit(1)
}

func genConfigFile(cfg *config.Config) string {
	return fmt.Sprintf(`
package board

var Active = Config{
	MachineName: %q,
	ACPI:        %t,
}
`, cfg.MachineName, cfg.ACPI)
}

func runTool() error {
	arch := flag.String("arch", "amd64", "the target architecture nucleus is being built for")
	input := flag.String("in", "config.toml", "path to the board config.toml to parse")
	output := flag.String("out", "-", "a file to write the generated board package source or - for STDOUT")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "mkconfig: validate config.toml and generate kernel/board's Active config\n\n")
		fmt.Fprint(os.Stderr, "Usage: mkconfig [options]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 0 {
		exit(errors.New("unexpected positional arguments"))
	}

	cfg, err := config.Load(*input)
	if err != nil {
		return err
	}

	if verr := cfg.Validate(*arch); verr != nil {
		return verr
	}

	generated := genConfigFile(cfg)

	fSet := token.NewFileSet()
	astFile, err := parser.ParseFile(fSet, "", generated, parser.ParseComments)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := printer.Fprint(&buf, fSet, astFile); err != nil {
		return err
	}

	switch *output {
	case "-":
		_, err = os.Stdout.Write(buf.Bytes())
	default:
		err = os.WriteFile(*output, buf.Bytes(), 0o644)
	}
	return err
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
