package cmd

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/kbase/kbsolrutil/internal/version"
)

// Main runs the CLI with the given arguments and returns the exit code.
//
// Until a command loads its config file, logging goes to stderr at the
// level named by KBSOLRUTIL_LOG_LEVEL (info when unset).
func Main(args []string) int {
	name := filepath.Base(args[0])

	log := hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  hclog.LevelFromString(os.Getenv("KBSOLRUTIL_LOG_LEVEL")),
		Output: os.Stderr,
	})

	rest := args[1:]
	if len(rest) == 1 && (rest[0] == "-version" || rest[0] == "-v") {
		rest = []string{"version"}
	}

	ui := &cli.BasicUi{
		Reader:      bufio.NewReader(os.Stdin),
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	c := &cli.CLI{
		Name:     name,
		Args:     rest,
		Version:  version.String(),
		Commands: Commands(log, ui),
	}

	code, err := c.Run()
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	return code
}
