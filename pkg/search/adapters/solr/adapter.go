// Package solr implements search.Engine against a Solr server over its JSON
// HTTP API.
package solr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/kbase/kbsolrutil/pkg/document"
	"github.com/kbase/kbsolrutil/pkg/search"
)

var _ search.Engine = (*Adapter)(nil)

// versionField is Solr's optimistic concurrency field. It is never part of a
// mapped document.
const versionField = "_version_"

// Config contains Solr configuration.
type Config struct {
	URL      string `hcl:"url"`               // Base URL including /solr (e.g., "http://localhost:8983/solr")
	Username string `hcl:"username,optional"` // Basic auth user
	Password string `hcl:"password,optional"` // Basic auth password
	Timeout  string `hcl:"timeout,optional"`  // HTTP client timeout (default: 30s)

	// Commit makes every update visible immediately. Disable when the core
	// uses autoSoftCommit.
	Commit *bool `hcl:"commit,optional"`

	// UpdateChain names an update processor chain that includes
	// TolerantUpdateProcessorFactory. Rejected documents are then reported
	// in the update response instead of failing the request.
	UpdateChain string `hcl:"update_chain,optional"`
}

// Adapter implements search.Engine for Solr.
type Adapter struct {
	baseURL     string
	username    string
	password    string
	commit      bool
	updateChain string
	httpClient  *http.Client
	logger      hclog.Logger
}

// NewAdapter creates a Solr adapter.
func NewAdapter(cfg *Config, logger hclog.Logger) (*Adapter, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("solr url required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid solr url: %w", err)
	}

	timeout := 30 * time.Second
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid solr timeout: %w", err)
		}
		timeout = d
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	commit := true
	if cfg.Commit != nil {
		commit = *cfg.Commit
	}

	return &Adapter{
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		username:    cfg.Username,
		password:    cfg.Password,
		commit:      commit,
		updateChain: cfg.UpdateChain,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger.Named("solr"),
	}, nil
}

// Name returns the engine name.
func (a *Adapter) Name() string {
	return "solr"
}

// HasCore asks the core admin API whether the core is loaded.
func (a *Adapter) HasCore(ctx context.Context, core string) (bool, error) {
	params := url.Values{
		"action": {"STATUS"},
		"core":   {core},
		"wt":     {"json"},
	}

	var resp struct {
		Status map[string]map[string]any `json:"status"`
	}
	if err := a.do(ctx, "HasCore", http.MethodGet, "/admin/cores?"+params.Encode(), nil, "", &resp); err != nil {
		return false, err
	}
	return len(resp.Status[core]) > 0, nil
}

// BulkUpsert posts documents to the core's update handler. Documents without
// a key are reported individually and not sent. Documents the core refuses
// get their own rejected outcome; the rest of the batch is still written.
func (a *Adapter) BulkUpsert(ctx context.Context, core search.Core, docs []document.Document) ([]search.Outcome, error) {
	outcomes := make([]search.Outcome, len(docs))
	pending := make([]int, 0, len(docs))
	for i, doc := range docs {
		key, ok := doc.Key(core.KeyField)
		if !ok {
			outcomes[i] = search.Outcome{Err: search.ErrMissingKey}
			continue
		}
		outcomes[i].Key = key
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return outcomes, nil
	}

	if err := a.post(ctx, core, docs, pending, outcomes); err != nil {
		return nil, err
	}

	a.logger.Trace("upserted batch", "core", core.Name, "documents", len(pending))
	return outcomes, nil
}

type updateResponse struct {
	ResponseHeader struct {
		// Errors is filled by a TolerantUpdateProcessor chain.
		Errors []struct {
			Type    string `json:"type"`
			ID      any    `json:"id"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"responseHeader"`
}

// post sends docs[idx] in one update request. When the core answers 400 for
// the whole request it is split in halves until the refused documents are
// isolated.
func (a *Adapter) post(ctx context.Context, core search.Core, docs []document.Document, idx []int, outcomes []search.Outcome) error {
	send := make([]document.Document, len(idx))
	for j, i := range idx {
		send[j] = docs[i].Without(versionField)
	}
	body, err := json.Marshal(send)
	if err != nil {
		return &search.Error{Op: "BulkUpsert", Err: search.ErrRejected, Msg: err.Error()}
	}

	params := url.Values{"wt": {"json"}}
	if a.commit {
		params.Set("commit", "true")
	}
	if a.updateChain != "" {
		params.Set("update.chain", a.updateChain)
		params.Set("maxErrors", "-1")
	}
	path := "/" + url.PathEscape(core.Name) + "/update?" + params.Encode()

	var resp updateResponse
	err = a.do(ctx, "BulkUpsert", http.MethodPost, path, bytes.NewReader(body), "application/json", &resp)
	if err != nil {
		var se *statusError
		if !errors.As(err, &se) || se.code != http.StatusBadRequest {
			return err
		}
		if len(idx) == 1 {
			outcomes[idx[0]].Err = err
			return nil
		}
		a.logger.Debug("update rejected, splitting", "core", core.Name, "documents", len(idx))
		mid := len(idx) / 2
		if err := a.post(ctx, core, docs, idx[:mid], outcomes); err != nil {
			return err
		}
		return a.post(ctx, core, docs, idx[mid:], outcomes)
	}

	if len(resp.ResponseHeader.Errors) == 0 {
		return nil
	}
	byKey := make(map[string][]int, len(idx))
	for _, i := range idx {
		byKey[outcomes[i].Key] = append(byKey[outcomes[i].Key], i)
	}
	for _, e := range resp.ResponseHeader.Errors {
		key, ok := document.KeyString(e.ID)
		if !ok {
			continue
		}
		for _, i := range byKey[key] {
			outcomes[i].Err = &search.Error{Op: "BulkUpsert", Err: search.ErrRejected, Msg: e.Message}
		}
	}
	return nil
}

type selectResponse struct {
	Response struct {
		NumFound int                 `json:"numFound"`
		Docs     []document.Document `json:"docs"`
	} `json:"response"`
}

// FetchByKeys looks up documents with the terms query parser in one request.
func (a *Adapter) FetchByKeys(ctx context.Context, core search.Core, keys []string) (map[string]document.Document, error) {
	out := make(map[string]document.Document, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	form := url.Values{
		"q":    {fmt.Sprintf("{!terms f=%s separator='%s'}%s", core.KeyField, termsSeparator, strings.Join(keys, termsSeparator))},
		"rows": {strconv.Itoa(len(keys))},
		"wt":   {"json"},
	}

	var resp selectResponse
	path := "/" + url.PathEscape(core.Name) + "/select"
	if err := a.do(ctx, "FetchByKeys", http.MethodPost, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &resp); err != nil {
		return nil, err
	}

	for _, doc := range resp.Response.Docs {
		key, ok := doc.Key(core.KeyField)
		if !ok {
			continue
		}
		out[key] = doc.Without(versionField)
	}
	return out, nil
}

// termsSeparator splits keys in a terms query. Keys may contain commas.
const termsSeparator = "\u001f"

// Query returns a window of the core sorted by key ascending.
func (a *Adapter) Query(ctx context.Context, core search.Core, q search.Query) (*search.Page, error) {
	params := url.Values{
		"q":     {"*:*"},
		"sort":  {core.KeyField + " asc"},
		"start": {strconv.Itoa(q.Offset)},
		"rows":  {strconv.Itoa(q.Limit)},
		"wt":    {"json"},
	}
	if q.RequireField != "" {
		params.Set("fq", q.RequireField+":[* TO *]")
	}

	var resp selectResponse
	path := "/" + url.PathEscape(core.Name) + "/select?" + params.Encode()
	if err := a.do(ctx, "Query", http.MethodGet, path, nil, "", &resp); err != nil {
		return nil, err
	}

	page := &search.Page{
		Docs:  make([]document.Document, 0, len(resp.Response.Docs)),
		Total: resp.Response.NumFound,
	}
	for _, doc := range resp.Response.Docs {
		page.Docs = append(page.Docs, doc.Without(versionField))
	}
	return page, nil
}

// Close releases idle connections.
func (a *Adapter) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}

type solrError struct {
	Error struct {
		Msg  string `json:"msg"`
		Code int    `json:"code"`
	} `json:"error"`
}

// statusError is a non-2xx response. It matches search.ErrTransient for 5xx
// and 429 responses and search.ErrRejected otherwise.
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.msg)
}

func (e *statusError) Is(target error) bool {
	transient := e.code >= 500 || e.code == http.StatusTooManyRequests
	switch target {
	case search.ErrTransient:
		return transient
	case search.ErrRejected:
		return !transient
	}
	return false
}

// do sends a request and decodes a JSON response into out. Transport
// failures, 5xx and 429 responses wrap search.ErrTransient; other non-2xx
// responses wrap search.ErrRejected.
func (a *Adapter) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return &search.Error{Op: op, Err: err, Msg: "failed to build request"}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if a.username != "" {
		req.SetBasicAuth(a.username, a.password)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &search.Error{Op: op, Err: fmt.Errorf("%w: %w", search.ErrTransient, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &search.Error{Op: op, Err: fmt.Errorf("%w: %w", search.ErrTransient, err), Msg: "failed to read response"}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		var se solrError
		if json.Unmarshal(raw, &se) == nil && se.Error.Msg != "" {
			msg = se.Error.Msg
		}
		return &search.Error{Op: op, Err: &statusError{code: resp.StatusCode, msg: msg}}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &search.Error{Op: op, Err: err, Msg: "failed to decode response"}
	}
	return nil
}
