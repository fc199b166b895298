//go:build integration

package solr

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kbase/kbsolrutil/pkg/document"
	"github.com/kbase/kbsolrutil/pkg/search"
)

// TestAdapter_Solr runs the adapter against a real Solr instance.
func TestAdapter_Solr(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	core := search.Core{Name: "taxonomy_it", Kind: search.KindTaxon, KeyField: "taxonomy_id"}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "solr:9",
			ExposedPorts: []string{"8983/tcp"},
			Cmd:          []string{"solr-precreate", core.Name},
			WaitingFor: wait.ForHTTP("/solr/" + core.Name + "/admin/ping").
				WithPort("8983/tcp").
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer func() {
		_ = container.Terminate(ctx)
	}()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "8983/tcp")
	require.NoError(t, err)

	a, err := NewAdapter(&Config{URL: fmt.Sprintf("http://%s:%s/solr", host, port.Port())}, hclog.NewNullLogger())
	require.NoError(t, err)

	ok, err := a.HasCore(ctx, core.Name)
	require.NoError(t, err)
	assert.True(t, ok)

	var docs []document.Document
	for i := 1; i <= 15; i++ {
		docs = append(docs, document.Document{
			"taxonomy_id":     int64(i),
			"scientific_name": fmt.Sprintf("taxon %d", i),
		})
	}
	_, err = a.BulkUpsert(ctx, core, docs)
	require.NoError(t, err)

	got, err := a.FetchByKeys(ctx, core, []string{"3", "7", "99"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	page, err := a.Query(ctx, core, search.Query{Offset: 10, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 15, page.Total)
	assert.Len(t, page.Docs, 5)
}
