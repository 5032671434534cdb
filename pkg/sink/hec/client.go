// Package hec delivers events to a Splunk HTTP Event Collector. HEC has no
// index mappings and answers a batch as a whole, so every document of a
// successful request is reported accepted.
package hec

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/mosajjal/Go-Splunk-HTTP/splunk/v2"
	"github.com/rs/zerolog/log"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
	"github.com/mosajjal/ocsf-composer/pkg/sink"
)

// Config holds HEC client configuration
type Config struct {
	Endpoints     []string
	TLSSkipVerify bool
	Proxy         string
	Token         string
	ChannelID     string
	// Index overrides the per-class index name when set
	Index           string
	Source          string
	SourceType      string
	Host            string
	Timeout         time.Duration
	BalanceStrategy string // first_available, sticky, random, roundrobin
	HealthInterval  time.Duration
}

const (
	FirstAvailable = 1
	Sticky         = 2
	Random         = 3
	RoundRobin     = 4
)

// Client is a sink.Destination spreading batches over HEC endpoints
type Client struct {
	config          Config
	connections     []*connection
	balanceStrategy uint8

	mu     sync.Mutex
	count  int
	rnd    *rand.Rand
	stop   chan struct{}
	closer sync.Once
}

var _ sink.Destination = (*Client)(nil)

type connection struct {
	endpoint  string
	client    *splunk.Client
	transport *http.Transport
	healthy   atomic.Bool
}

// channelTransport stamps every request with the HEC data channel
type channelTransport struct {
	channel string
	next    http.RoundTripper
}

func (t *channelTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("X-Splunk-Request-Channel", t.channel)
	return t.next.RoundTrip(req)
}

// ParseStrategy maps a strategy name to its constant, defaulting to FirstAvailable
func ParseStrategy(name string) uint8 {
	switch name {
	case "first_available", "":
		return FirstAvailable
	case "sticky":
		return Sticky
	case "random":
		return Random
	case "roundrobin":
		return RoundRobin
	default:
		log.Warn().Str("strategy", name).Msg("unknown load balance strategy, using first_available")
		return FirstAvailable
	}
}

// NewClient creates a new HEC destination
func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("HEC token is required")
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 10 * time.Second
	}
	client := &Client{
		config:          cfg,
		connections:     make([]*connection, 0, len(cfg.Endpoints)),
		balanceStrategy: ParseStrategy(cfg.BalanceStrategy),
		rnd:             rand.New(rand.NewSource(time.Now().UnixNano())),
		stop:            make(chan struct{}),
	}

	for _, endpoint := range cfg.Endpoints {
		conn, err := newConnection(endpoint, cfg)
		if err != nil {
			log.Error().Err(err).Str("endpoint", endpoint).Msg("failed to create HEC connection")
			continue
		}
		client.connections = append(client.connections, conn)
		go conn.healthCheck(cfg.HealthInterval, client.stop)
	}

	if len(client.connections) == 0 {
		return nil, fmt.Errorf("no valid HEC endpoints configured")
	}
	return client, nil
}

func newConnection(endpoint string, cfg Config) (*connection, error) {
	rt := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.TLSSkipVerify},
	}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		rt.Proxy = http.ProxyURL(proxyURL)
	}

	endpoint = strings.TrimSuffix(endpoint, "/")
	if !strings.HasSuffix(endpoint, "/services/collector") {
		endpoint = fmt.Sprintf("%s/services/collector", endpoint)
	}

	channelID := cfg.ChannelID
	if _, err := uuid.Parse(channelID); err != nil {
		channelID = uuid.New().String()
	}

	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &channelTransport{channel: channelID, next: rt},
	}
	splunkClient := &splunk.Client{
		HTTPClient: httpClient,
		URL:        endpoint,
		Hostname:   cfg.Host,
		Token:      cfg.Token,
		Source:     cfg.Source,
		SourceType: cfg.SourceType,
		Index:      cfg.Index,
	}

	conn := &connection{
		endpoint:  endpoint,
		client:    splunkClient,
		transport: rt,
	}
	conn.updateHealth()
	return conn, nil
}

func (c *connection) updateHealth() {
	err := c.client.CheckHealth()
	if err != nil {
		log.Debug().Err(err).Str("endpoint", c.endpoint).Msg("HEC endpoint unhealthy")
	}
	c.healthy.Store(err == nil)
}

func (c *connection) healthCheck(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.updateHealth()
		}
	}
}

func (c *Client) indexFor(index string) string {
	if c.config.Index != "" {
		return c.config.Index
	}
	return index
}

// Bulk sends events as one HEC request
func (c *Client) Bulk(ctx context.Context, index string, events []ocsf.Event) (*sink.BulkResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, sink.NetworkError("bulk", err)
	}

	splunkEvents := make([]*splunk.Event, len(events))
	for i, ev := range events {
		splunkEvents[i] = &splunk.Event{
			Time:       splunk.EventTime{Time: eventTime(ev)},
			Host:       c.config.Host,
			Source:     c.config.Source,
			SourceType: c.config.SourceType,
			Index:      c.indexFor(index),
			Event:      map[string]any(ev),
		}
	}

	conn := c.getConnection()
	if conn == nil {
		return nil, sink.NetworkError("bulk", fmt.Errorf("no healthy HEC connection available"))
	}
	if err := conn.client.LogEvents(splunkEvents); err != nil {
		return nil, classify("bulk", err)
	}

	log.Debug().Str("endpoint", conn.endpoint).Str("index", index).Int("documents", len(events)).Msg("HEC batch delivered")
	resp := &sink.BulkResponse{Items: make([]sink.ItemResult, len(events))}
	for i := range resp.Items {
		resp.Items[i] = sink.ItemResult{Status: http.StatusOK}
	}
	return resp, nil
}

func eventTime(ev ocsf.Event) time.Time {
	if v, ok := ev.Get("time"); ok {
		if ms, ok := ocsf.AsInt(v); ok {
			return time.UnixMilli(int64(ms))
		}
	}
	return time.Now()
}

// hecReply is the JSON body HEC sends with errors
type hecReply struct {
	Text string `json:"text"`
	Code *int   `json:"code"`
}

// classify turns a LogEvents failure into a TransportError. HEC codes for
// bad tokens, bad data and missing indices are not retryable; server busy,
// internal errors and anything unrecognised are.
func classify(op string, err error) *sink.TransportError {
	msg := err.Error()
	start := strings.Index(msg, "{")
	if start < 0 {
		return sink.NetworkError(op, err)
	}
	var reply hecReply
	if json.Unmarshal([]byte(msg[start:]), &reply) != nil || reply.Code == nil {
		return sink.NetworkError(op, err)
	}
	te := &sink.TransportError{Op: op, Retryable: true, Err: err}
	switch *reply.Code {
	case 8:
		te.StatusCode = http.StatusInternalServerError
	case 9:
		te.StatusCode = http.StatusServiceUnavailable
	default:
		te.StatusCode = http.StatusBadRequest
		te.Retryable = false
	}
	return te
}

func (c *Client) getConnection() *connection {
	switch c.balanceStrategy {
	case Sticky:
		return c.getSticky()
	case Random:
		return c.getRandom()
	case RoundRobin:
		return c.getRoundRobin()
	default:
		return c.getFirstAvailable()
	}
}

func (c *Client) getFirstAvailable() *connection {
	for _, conn := range c.connections {
		if conn.healthy.Load() {
			return conn
		}
	}
	return nil
}

// getSticky keeps using one endpoint and moves on only when it turns unhealthy
func (c *Client) getSticky() *connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	for range c.connections {
		conn := c.connections[c.count%len(c.connections)]
		if conn.healthy.Load() {
			return conn
		}
		c.count++
	}
	return nil
}

func (c *Client) getRandom() *connection {
	healthy := make([]*connection, 0, len(c.connections))
	for _, conn := range c.connections {
		if conn.healthy.Load() {
			healthy = append(healthy, conn)
		}
	}
	if len(healthy) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return healthy[c.rnd.Intn(len(healthy))]
}

func (c *Client) getRoundRobin() *connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	for range c.connections {
		conn := c.connections[c.count%len(c.connections)]
		c.count++
		if conn.healthy.Load() {
			return conn
		}
	}
	return nil
}

// IndexExists reports true while any endpoint is healthy. HEC creates
// nothing on demand; the target index is managed on the Splunk side.
func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	for _, conn := range c.connections {
		conn.updateHealth()
	}
	if c.getFirstAvailable() == nil {
		return false, sink.NetworkError("index exists", fmt.Errorf("no healthy HEC connection available"))
	}
	return true, nil
}

func (c *Client) CreateIndex(ctx context.Context, index string, mapping ocsf.Mapping) error {
	return nil
}

func (c *Client) GetMapping(ctx context.Context, index string) (ocsf.Mapping, error) {
	return nil, nil
}

func (c *Client) PutMapping(ctx context.Context, index string, mapping ocsf.Mapping) error {
	return nil
}

// Close stops health checks and drops idle connections
func (c *Client) Close() error {
	c.closer.Do(func() {
		close(c.stop)
		for _, conn := range c.connections {
			conn.transport.CloseIdleConnections()
		}
	})
	return nil
}
