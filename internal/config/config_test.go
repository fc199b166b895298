package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/kbsolrutil/pkg/search"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
search {
  provider = "solr"
  solr {
    url          = "http://localhost:8983/solr"
    timeout      = "10s"
    update_chain = "tolerant-chain"
  }
}

core "GenomeFeatures_prod" {
  kind = "genome"
}

core "taxonomy_prod" {
  kind      = "taxon"
  key_field = "taxonomy_id"
}

object_store {
  provider = "s3"
  s3 {
    bucket = "kbase-reference"
    prefix = "objects"
  }
}

indexer {
  max_parallel_fetches = 4
  batch_size           = 200
  call_timeout         = "15s"
  requests_per_second  = 20
}

retry {
  initial_interval = "100ms"
  max_attempts     = 3
}

listing {
  max_rows = 500
}

report {
  retention = "720h"
  database {
    driver = "sqlite"
    dsn    = ":memory:"
  }
  kafka {
    brokers = ["localhost:9092"]
  }
}

logging {
  level = "debug"
  json  = true
}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "solr", cfg.Search.Provider)
	assert.Equal(t, "http://localhost:8983/solr", cfg.Search.Solr.URL)
	assert.Equal(t, "tolerant-chain", cfg.Search.Solr.UpdateChain)
	assert.Equal(t, []search.Core{
		{Name: "GenomeFeatures_prod", Kind: search.KindGenomeFeature},
		{Name: "taxonomy_prod", Kind: search.KindTaxon, KeyField: "taxonomy_id"},
	}, cfg.RegisteredCores())

	assert.Equal(t, "objects/", cfg.ObjectStore.S3.Prefix)
	assert.Equal(t, "us-east-1", cfg.ObjectStore.S3.Region)
	assert.Equal(t, time.Minute, cfg.FetchTimeout())
	assert.Equal(t, 30*time.Second, cfg.ReportTimeout())

	sub, err := cfg.SubmitConfig()
	require.NoError(t, err)
	assert.Equal(t, 200, sub.BatchSize)
	assert.Equal(t, 15*time.Second, sub.CallTimeout)
	assert.Equal(t, 20.0, sub.RequestsPerSecond)
	assert.Equal(t, 100*time.Millisecond, sub.Retry.InitialInterval)
	assert.Equal(t, 3, sub.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Second, sub.Retry.MaxInterval)

	dd, err := cfg.DedupConfig()
	require.NoError(t, err)
	assert.Equal(t, sub.Retry, dd.Retry)

	assert.Equal(t, 500, cfg.Listing.MaxRows)
	assert.Equal(t, "sqlite", cfg.Report.Database.Driver)
	assert.Equal(t, 30*24*time.Hour, cfg.ReportRetention())
	assert.Equal(t, []string{"localhost:9092"}, cfg.Report.Kafka.Brokers)
	assert.True(t, cfg.Logging.JSON)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
core "taxonomy_ci" {
  kind = "taxon"
}

object_store {
  provider = "local"
  local {
    root = "/data/objects"
  }
}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bleve", cfg.Search.Provider)
	assert.True(t, cfg.Search.Bleve.InMemory)
	assert.Equal(t, 8, cfg.Indexer.MaxParallelFetches)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Nil(t, cfg.Report.Database)
	assert.Zero(t, cfg.ReportRetention())
	assert.Nil(t, cfg.Cache)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr []string
	}{
		{
			name: "missing cores and store",
			body: `search { provider = "bleve" }`,
			wantErr: []string{
				"at least one core block is required",
				"object_store block is required",
			},
		},
		{
			name: "bad values",
			body: `
search { provider = "elastic" }
core "c" { kind = "protein" }
core "c" { kind = "taxon" }
object_store { provider = "s3" }
indexer { fetch_timeout = "soon" }
report { retention = "-1h" }
retry {
  initial_interval = "5s"
  max_interval     = "1s"
}
logging { level = "loud" }
`,
			wantErr: []string{
				`unknown provider "elastic"`,
				`invalid core kind "protein"`,
				`core "c" declared twice`,
				"s3 block is required",
				`indexer.fetch_timeout: invalid duration "soon"`,
				"report.retention: duration must not be negative",
				"max_interval must not be less than initial_interval",
				`unknown level "loud"`,
			},
		},
		{
			name: "solr without block",
			body: `
search { provider = "solr" }
core "c" { kind = "raw" }
object_store {
  provider = "local"
  local { root = "/tmp" }
}
`,
			wantErr: []string{"solr block is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.hcl"))
	assert.Error(t, err)
}
