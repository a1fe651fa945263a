package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
	"github.com/elastic/go-elasticsearch/v9/esutil"
)

// maxErrorBody bounds how much of an error response is kept in a StatusError.
const maxErrorBody = 512

// Client wraps the Elasticsearch client with the handful of calls the harvester needs.
// It is safe for concurrent use.
type Client struct {
	es      *elasticsearch.Client
	address string
}

// NewClient creates an Elasticsearch client for a single node.
// Transport-level retries are disabled; the loader owns the retry policy.
func NewClient(address string) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{address},
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &Client{es: es, address: address}, nil
}

// WaitHealthy pings the cluster with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (c *Client) WaitHealthy(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		err := c.Health(ctx)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("%w at %s: %v", ErrEngineUnreachable, c.address, err)
	}
	return nil
}

// Health performs a single ping against the cluster.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	defer res.Body.Close()
	return checkStatus("ping", res)
}

// PutIndexTemplate declares a composable index template. The engine answers 200 on success;
// any other status is returned as a StatusError.
func (c *Client) PutIndexTemplate(ctx context.Context, name string, body []byte) error {
	res, err := c.es.Indices.PutIndexTemplate(name, bytes.NewReader(body),
		c.es.Indices.PutIndexTemplate.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("put index template %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return statusError("put index template "+name, res)
	}
	return nil
}

// CreateIndex creates index. An index that already exists is not an error.
func (c *Client) CreateIndex(ctx context.Context, index string) error {
	res, err := c.es.Indices.Create(index, c.es.Indices.Create.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusBadRequest {
		serr := statusError("create index "+index, res)
		if strings.Contains(serr.Body, "resource_already_exists_exception") {
			return nil
		}
		return serr
	}
	return checkStatus("create index "+index, res)
}

// Count returns the number of documents in index matching query. A nil query counts
// everything. A missing index counts as zero.
func (c *Client) Count(ctx context.Context, index string, query any) (int64, error) {
	opts := []func(*esapi.CountRequest){
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(index),
	}
	if query != nil {
		opts = append(opts, c.es.Count.WithBody(esutil.NewJSONReader(map[string]any{"query": query})))
	}

	res, err := c.es.Count(opts...)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if err := checkStatus("count "+index, res); err != nil {
		return 0, err
	}

	var out struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return out.Count, nil
}

// Bulk submits docs as index operations against index.
func (c *Client) Bulk(ctx context.Context, index string, docs []Document, refresh Refresh) (*BulkResponse, error) {
	body, err := EncodeBulk(docs)
	if err != nil {
		return nil, err
	}

	res, err := c.es.Bulk(bytes.NewReader(body),
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithIndex(index),
		c.es.Bulk.WithRefresh(string(refresh)),
	)
	if err != nil {
		return nil, fmt.Errorf("bulk %s: %w", index, err)
	}
	defer res.Body.Close()

	if err := checkStatus("bulk "+index, res); err != nil {
		return nil, err
	}

	var out BulkResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}
	return &out, nil
}

// EncodeBulk renders docs as newline-delimited action/source pairs. Each line is produced
// by esutil.JSONReader, which terminates every value with a newline.
func EncodeBulk(docs []Document) ([]byte, error) {
	var buf bytes.Buffer
	for _, doc := range docs {
		action := map[string]any{"index": map[string]string{"_id": doc.ID}}
		if _, err := buf.ReadFrom(esutil.NewJSONReader(action)); err != nil {
			return nil, fmt.Errorf("encode bulk action %s: %w", doc.ID, err)
		}
		if _, err := buf.ReadFrom(esutil.NewJSONReader(doc.Source)); err != nil {
			return nil, fmt.Errorf("encode bulk source %s: %w", doc.ID, err)
		}
	}
	return buf.Bytes(), nil
}

func checkStatus(op string, res *esapi.Response) error {
	if res.IsError() {
		return statusError(op, res)
	}
	return nil
}

func statusError(op string, res *esapi.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	return &StatusError{
		Op:         op,
		StatusCode: res.StatusCode,
		Body:       strings.TrimSpace(string(raw)),
	}
}
