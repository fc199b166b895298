// Package list implements the list-genomes, list-taxa and list-loaded-taxa
// commands.
package list

import (
	"context"
	"flag"
	"fmt"

	"github.com/kbase/kbsolrutil/internal/cmd/base"
	"github.com/kbase/kbsolrutil/pkg/kbsolrutil"
)

// Target selects what a Command lists.
type Target string

const (
	Genomes    Target = "genomes"
	Taxa       Target = "taxa"
	LoadedTaxa Target = "loaded-taxa"
)

type Command struct {
	*base.Command

	Target Target

	flagConfig string
	flagParams string
}

func (c *Command) Synopsis() string {
	switch c.Target {
	case Genomes:
		return "List a page of a genome feature core"
	case Taxa:
		return "List a page of a taxon core"
	}
	return "List taxa loaded from an object, with their references"
}

func (c *Command) Help() string {
	return fmt.Sprintf(`Usage: kbsolrutil list-%s -config=config.hcl -params=params.json

  Reads ListSolrDocsParams and prints one page as JSON:

    {"solr_core": "taxonomy_prod", "row_start": 0, "row_count": 50, "create_report": 0}

  row_start defaults to 0 and row_count to the configured page size. Pages
  are ordered by the core's key field.`, c.Target) +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("list-"+string(c.Target), flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "config.hcl", "Path to the configuration file",
	)
	f.StringVar(
		&c.flagParams, "params", "-", "Path to the JSON params file, or - for stdin",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	var params kbsolrutil.ListSolrDocsParams
	if err := c.ReadParams(c.flagParams, &params); err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	ctx := context.Background()
	srv, err := c.LoadServer(ctx, c.flagConfig)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error initializing: %v", err))
		return 1
	}
	defer func() {
		if err := srv.Close(); err != nil {
			c.Log.Warn("error closing components", "error", err)
		}
	}()

	var res any
	switch c.Target {
	case Genomes:
		res, err = srv.Service.ListSolrGenomes(ctx, params)
	case Taxa:
		res, err = srv.Service.ListSolrTaxa(ctx, params)
	default:
		res, err = srv.Service.ListLoadedTaxa(ctx, params)
	}
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	if err := c.Output(res); err != nil {
		c.UI.Error(fmt.Sprintf("error writing result: %v", err))
		return 1
	}
	return 0
}
