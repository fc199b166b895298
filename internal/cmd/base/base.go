// Package base holds what every subcommand shares: the logger, the UI, flag
// help rendering, and loading the configured components.
package base

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/kbase/kbsolrutil/internal/config"
	"github.com/kbase/kbsolrutil/internal/server"
)

// Command is embedded by every subcommand.
type Command struct {
	Log hclog.Logger
	UI  cli.Ui

	// Stdin is read when a params file is "-".
	Stdin io.Reader
}

// NewCommand creates a base command.
func NewCommand(log hclog.Logger, ui cli.Ui) *Command {
	return &Command{Log: log, UI: ui, Stdin: os.Stdin}
}

// FlagSet wraps flag.FlagSet with help rendering.
type FlagSet struct {
	*flag.FlagSet
}

// NewFlagSet wraps f.
func NewFlagSet(f *flag.FlagSet) *FlagSet {
	return &FlagSet{FlagSet: f}
}

// Help renders the flags for a command's help text.
func (f *FlagSet) Help() string {
	var b strings.Builder
	b.WriteString("\n\nOptions:\n")
	f.VisitAll(func(fl *flag.Flag) {
		fmt.Fprintf(&b, "\n  -%s", fl.Name)
		if fl.DefValue != "" && fl.DefValue != "false" {
			fmt.Fprintf(&b, "=%s", fl.DefValue)
		}
		fmt.Fprintf(&b, "\n      %s\n", fl.Usage)
	})
	return b.String()
}

// LoadServer reads the config file and builds the components. The logger
// follows the file's logging block.
func (c *Command) LoadServer(ctx context.Context, path string) (*server.Server, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	c.Log = cfg.Logger(c.Log.Name())
	return server.New(ctx, cfg, c.Log)
}

// ReadParams decodes a JSON params file, or stdin when path is "-".
func (c *Command) ReadParams(path string, out any) error {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(c.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("error reading params: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("error decoding params: %w", err)
	}
	return nil
}

// Output prints v as indented JSON.
func (c *Command) Output(v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	c.UI.Output(strings.TrimRight(buf.String(), "\n"))
	return nil
}
