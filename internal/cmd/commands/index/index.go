// Package index implements the index-genomes, index-taxa and index-docs
// commands.
package index

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kbase/kbsolrutil/internal/cmd/base"
	"github.com/kbase/kbsolrutil/pkg/kbsolrutil"
)

// Target selects what a Command indexes.
type Target string

const (
	Genomes   Target = "genomes"
	Taxa      Target = "taxa"
	Documents Target = "docs"
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
		return "Index the features of reference genomes"
	case Taxa:
		return "Index taxonomy objects"
	}
	return "Submit prepared documents to a core"
}

func (c *Command) Help() string {
	var body string
	switch c.Target {
	case Genomes:
		body = `  Reads IndexGenomesInSolrParams:

    {"solr_core": "GenomeFeatures_prod", "genomes": [{"ref": "15792/1/3"}], "create_report": 1}`
	case Taxa:
		body = `  Reads IndexTaxaInSolrParams:

    {"solr_core": "taxonomy_prod", "taxa": [{"ws_ref": "1779/562_taxon/1"}], "create_report": 0}`
	default:
		body = `  Reads IndexInSolrParams. Documents are submitted as given, except that
  documents identical to the stored ones are skipped:

    {"search_core": "raw_prod", "doc_data": [{"id": "1", "name": "x"}]}`
	}
	return fmt.Sprintf(`Usage: kbsolrutil index-%s -config=config.hcl -params=params.json

%s

  The run summary is printed as JSON. Per-reference and per-document
  failures are part of the summary and do not change the exit code.`, c.Target, body) +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("index-"+string(c.Target), flag.ContinueOnError))

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	res, err := c.run(ctx, srv.Service)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	if err := c.Output(res); err != nil {
		c.UI.Error(fmt.Sprintf("error writing result: %v", err))
		return 1
	}
	if ctx.Err() != nil {
		return 130
	}
	return 0
}

func (c *Command) run(ctx context.Context, svc *kbsolrutil.Service) (*kbsolrutil.IndexResult, error) {
	switch c.Target {
	case Genomes:
		var params kbsolrutil.IndexGenomesInSolrParams
		if err := c.ReadParams(c.flagParams, &params); err != nil {
			return nil, err
		}
		return svc.IndexGenomesInSolr(ctx, params)
	case Taxa:
		var params kbsolrutil.IndexTaxaInSolrParams
		if err := c.ReadParams(c.flagParams, &params); err != nil {
			return nil, err
		}
		return svc.IndexTaxaInSolr(ctx, params)
	case Documents:
		var params kbsolrutil.IndexInSolrParams
		if err := c.ReadParams(c.flagParams, &params); err != nil {
			return nil, err
		}
		return svc.IndexInSolr(ctx, params)
	}
	return nil, fmt.Errorf("unknown index target %q", c.Target)
}
