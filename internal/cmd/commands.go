package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/kbase/kbsolrutil/internal/cmd/base"
	"github.com/kbase/kbsolrutil/internal/cmd/commands/index"
	"github.com/kbase/kbsolrutil/internal/cmd/commands/list"
	"github.com/kbase/kbsolrutil/internal/cmd/commands/version"
)

// Commands returns the command factories keyed by name.
func Commands(log hclog.Logger, ui cli.Ui) map[string]cli.CommandFactory {
	b := base.NewCommand(log, ui)

	return map[string]cli.CommandFactory{
		"index-genomes": func() (cli.Command, error) {
			return &index.Command{Command: b, Target: index.Genomes}, nil
		},
		"index-taxa": func() (cli.Command, error) {
			return &index.Command{Command: b, Target: index.Taxa}, nil
		},
		"index-docs": func() (cli.Command, error) {
			return &index.Command{Command: b, Target: index.Documents}, nil
		},
		"list-genomes": func() (cli.Command, error) {
			return &list.Command{Command: b, Target: list.Genomes}, nil
		},
		"list-taxa": func() (cli.Command, error) {
			return &list.Command{Command: b, Target: list.Taxa}, nil
		},
		"list-loaded-taxa": func() (cli.Command, error) {
			return &list.Command{Command: b, Target: list.LoadedTaxa}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
	}
}
