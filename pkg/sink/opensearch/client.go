package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/rs/zerolog/log"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
	"github.com/mosajjal/ocsf-composer/pkg/sink"
)

// Config holds OpenSearch connection settings
type Config struct {
	Addresses     []string
	Username      string
	Password      string
	TLSSkipVerify bool
	Proxy         string
	// ResponseTimeout bounds the wait for response headers
	ResponseTimeout time.Duration
	Shards          int
	Replicas        int
	// RolloverAlias marks each aliased index as the rollover target of its
	// alias for the index state management plugin
	RolloverAlias bool
}

// Client is a sink.Destination backed by the OpenSearch bulk and indices APIs
type Client struct {
	config    Config
	client    *opensearch.Client
	transport *http.Transport
}

var (
	_ sink.Destination = (*Client)(nil)
	_ sink.AliasAdmin  = (*Client)(nil)
)

// NewClient creates a new OpenSearch destination
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("no OpenSearch addresses configured")
	}

	rt := &http.Transport{
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.TLSSkipVerify},
		ResponseHeaderTimeout: cfg.ResponseTimeout,
	}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		rt.Proxy = http.ProxyURL(proxyURL)
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: rt,
		// the uploader owns retries
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenSearch client: %w", err)
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 1
	}
	if cfg.Replicas < 0 {
		cfg.Replicas = 0
	}
	return &Client{config: cfg, client: client, transport: rt}, nil
}

type bulkAction struct {
	Index struct {
		Index string `json:"_index"`
	} `json:"index"`
}

type bulkResult struct {
	Errors bool                     `json:"errors"`
	Items  []map[string]bulkItemRaw `json:"items"`
}

type bulkItemRaw struct {
	Status int `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// EncodeBulk renders events as an NDJSON bulk body targeting index
func EncodeBulk(index string, events []ocsf.Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	var action bulkAction
	action.Index.Index = index
	for i, ev := range events {
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("failed to encode bulk action: %w", err)
		}
		if err := enc.Encode(ev); err != nil {
			return nil, fmt.Errorf("failed to encode event %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// ParseBulkResponse interprets a bulk response body. Anything that does not
// carry exactly one result per document is reported as malformed.
func ParseBulkResponse(status int, body []byte, expected int) (*sink.BulkResponse, error) {
	var res bulkResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, sink.Malformed("bulk", status, body, err)
	}
	if len(res.Items) != expected {
		return nil, sink.Malformed("bulk", status, body,
			fmt.Errorf("got %d item results for %d documents", len(res.Items), expected))
	}

	out := &sink.BulkResponse{Items: make([]sink.ItemResult, len(res.Items))}
	for i, item := range res.Items {
		if len(item) != 1 {
			return nil, sink.Malformed("bulk", status, body, fmt.Errorf("item %d has %d actions", i, len(item)))
		}
		for _, raw := range item {
			if raw.Status == 0 {
				return nil, sink.Malformed("bulk", status, body, fmt.Errorf("item %d has no status", i))
			}
			result := sink.ItemResult{Status: raw.Status}
			if raw.Error != nil {
				result.ErrorType = raw.Error.Type
				result.Reason = raw.Error.Reason
				if result.ErrorType == "" {
					result.ErrorType = "unknown"
				}
			}
			out.Items[i] = result
		}
	}
	return out, nil
}

// Bulk writes events to index in a single bulk request
func (c *Client) Bulk(ctx context.Context, index string, events []ocsf.Event) (*sink.BulkResponse, error) {
	body, err := EncodeBulk(index, events)
	if err != nil {
		return nil, err
	}

	req := opensearchapi.BulkRequest{
		Index: index,
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, sink.NetworkError("bulk", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, sink.NetworkError("bulk", fmt.Errorf("failed to read response: %w", err))
	}
	if res.IsError() {
		return nil, sink.StatusError("bulk", res.StatusCode, string(raw))
	}

	out, err := ParseBulkResponse(res.StatusCode, raw, len(events))
	if err != nil {
		return nil, err
	}
	log.Debug().Str("index", index).Int("documents", len(events)).Msg("bulk request completed")
	return out, nil
}

// IndexExists checks whether index exists
func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{Index: []string{index}}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return false, sink.NetworkError("index exists", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	raw, _ := io.ReadAll(res.Body)
	return false, sink.StatusError("index exists", res.StatusCode, string(raw))
}

// CreateIndex creates index with mapping. A concurrent creation surfaces as sink.ErrIndexExists.
func (c *Client) CreateIndex(ctx context.Context, index string, mapping ocsf.Mapping) error {
	body, err := json.Marshal(map[string]any{
		"settings": map[string]any{
			"number_of_shards":   c.config.Shards,
			"number_of_replicas": c.config.Replicas,
		},
		"mappings": map[string]any{
			"properties": mapping.Properties(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode index body: %w", err)
	}

	req := opensearchapi.IndicesCreateRequest{
		Index: index,
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return sink.NetworkError("create index", err)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)
	if !res.IsError() {
		return nil
	}
	if res.StatusCode == http.StatusBadRequest && strings.Contains(string(raw), "resource_already_exists_exception") {
		return sink.ErrIndexExists
	}
	return sink.StatusError("create index", res.StatusCode, string(raw))
}

// GetMapping reads back the flattened mapping of index
func (c *Client) GetMapping(ctx context.Context, index string) (ocsf.Mapping, error) {
	req := opensearchapi.IndicesGetMappingRequest{Index: []string{index}}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, sink.NetworkError("get mapping", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, sink.NetworkError("get mapping", fmt.Errorf("failed to read response: %w", err))
	}
	if res.IsError() {
		return nil, sink.StatusError("get mapping", res.StatusCode, string(raw))
	}
	return ParseMappingResponse(index, res.StatusCode, raw)
}

// ParseMappingResponse extracts the properties of index from a get-mapping body
func ParseMappingResponse(index string, status int, body []byte) (ocsf.Mapping, error) {
	var byIndex map[string]struct {
		Mappings struct {
			Properties map[string]any `json:"properties"`
		} `json:"mappings"`
	}
	if err := json.Unmarshal(body, &byIndex); err != nil {
		return nil, sink.Malformed("get mapping", status, body, err)
	}
	entry, ok := byIndex[index]
	if !ok {
		// an alias resolves to its single backing index
		if len(byIndex) != 1 {
			return nil, sink.Malformed("get mapping", status, body, errors.New("index missing from response"))
		}
		for _, only := range byIndex {
			entry = only
		}
	}
	return ocsf.ParseProperties(entry.Mappings.Properties), nil
}

// PutMapping adds fields to the mapping of index
func (c *Client) PutMapping(ctx context.Context, index string, mapping ocsf.Mapping) error {
	body, err := json.Marshal(map[string]any{"properties": mapping.Properties()})
	if err != nil {
		return fmt.Errorf("failed to encode mapping: %w", err)
	}
	req := opensearchapi.IndicesPutMappingRequest{
		Index: []string{index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return sink.NetworkError("put mapping", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return sink.StatusError("put mapping", res.StatusCode, string(raw))
	}
	return nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
