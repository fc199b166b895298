package version

import (
	"github.com/kbase/kbsolrutil/internal/cmd/base"
	"github.com/kbase/kbsolrutil/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the version"
}

func (c *Command) Help() string {
	return `Usage: kbsolrutil version

  Prints the version and build commit.`
}

func (c *Command) Run(args []string) int {
	c.UI.Output(version.String())
	return 0
}
