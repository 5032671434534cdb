package hec

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
	"github.com/mosajjal/ocsf-composer/pkg/sink"
)

type collector struct {
	mu       sync.Mutex
	bodies   []string
	channels []string
	tokens   []string
}

func newCollector(t *testing.T) (*collector, *httptest.Server) {
	t.Helper()
	c := &collector{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			io.WriteString(w, `{"text":"HEC is healthy","code":17}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, string(body))
		c.channels = append(c.channels, r.Header.Get("X-Splunk-Request-Channel"))
		c.tokens = append(c.tokens, r.Header.Get("Authorization"))
		c.mu.Unlock()
		io.WriteString(w, `{"text":"Success","code":0}`)
	}))
	t.Cleanup(srv.Close)
	return c, srv
}

func TestNewClient_InvalidEndpoints(t *testing.T) {
	client, err := NewClient(Config{Endpoints: []string{}, Token: "test-token"})
	assert.Error(t, err)
	assert.Nil(t, client)

	client, err = NewClient(Config{Endpoints: []string{"https://localhost:8088"}})
	assert.Error(t, err, "a token is required")
	assert.Nil(t, client)
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		strategy string
		expected uint8
	}{
		{"first_available", FirstAvailable},
		{"sticky", Sticky},
		{"random", Random},
		{"roundrobin", RoundRobin},
		{"", FirstAvailable},
		{"unknown", FirstAvailable},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseStrategy(tt.strategy))
		})
	}
}

func TestBulkDeliversWholeBatch(t *testing.T) {
	col, srv := newCollector(t)
	client, err := NewClient(Config{
		Endpoints:  []string{srv.URL},
		Token:      "test-token",
		ChannelID:  "not-a-uuid",
		Source:     "ocsf-composer",
		SourceType: "ocsf",
		Host:       "test-host",
	})
	require.NoError(t, err)
	defer client.Close()

	events := []ocsf.Event{
		{"class_uid": 4002, "time": int64(1718000000000)},
		{"class_uid": 4002, "time": int64(1718000001000)},
	}
	res, err := client.Bulk(context.Background(), "ocsf-1.1.0-4002-http_activity-2024.06.10-000000", events)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	for _, item := range res.Items {
		assert.True(t, item.Accepted())
	}

	col.mu.Lock()
	defer col.mu.Unlock()
	require.Len(t, col.bodies, 1)
	assert.Contains(t, col.bodies[0], "ocsf-1.1.0-4002-http_activity-2024.06.10-000000")
	assert.Equal(t, 2, strings.Count(col.bodies[0], `"class_uid":4002`))
	assert.Len(t, col.channels[0], 36, "an invalid channel id is replaced with a fresh uuid")
	assert.Contains(t, col.tokens[0], "test-token")
}

func TestIndexOverride(t *testing.T) {
	col, srv := newCollector(t)
	client, err := NewClient(Config{Endpoints: []string{srv.URL}, Token: "t", Index: "security"})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Bulk(context.Background(), "ocsf-1.1.0-4003-dns_activity-2024.06.10-000000", []ocsf.Event{{"class_uid": 4003}})
	require.NoError(t, err)

	col.mu.Lock()
	defer col.mu.Unlock()
	assert.Contains(t, col.bodies[0], `"security"`)
	assert.NotContains(t, col.bodies[0], "dns_activity-2024")
}

func TestSchemalessAdmin(t *testing.T) {
	_, srv := newCollector(t)
	client, err := NewClient(Config{Endpoints: []string{srv.URL}, Token: "t"})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	ok, err := client.IndexExists(ctx, "any")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, client.CreateIndex(ctx, "any", ocsf.BaseMapping()))
	m, err := client.GetMapping(ctx, "any")
	assert.NoError(t, err)
	assert.Nil(t, m)
}

func TestNoHealthyConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"text":"Server is busy","code":9}`)
	}))
	defer srv.Close()

	client, err := NewClient(Config{Endpoints: []string{srv.URL}, Token: "t", BalanceStrategy: "roundrobin"})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Bulk(context.Background(), "idx", []ocsf.Event{{"class_uid": 4002}})
	var te *sink.TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Retryable)

	_, err = client.IndexExists(context.Background(), "idx")
	assert.True(t, sink.IsRetryable(err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		status    int
	}{
		{"invalid token", errors.New(`{"text":"Invalid token","code":4}`), false, http.StatusBadRequest},
		{"incorrect index", errors.New(`HEC error: {"text":"Incorrect index","code":7,"invalid-event-number":0}`), false, http.StatusBadRequest},
		{"server busy", errors.New(`{"text":"Server is busy","code":9}`), true, http.StatusServiceUnavailable},
		{"internal", errors.New(`{"text":"Internal server error","code":8}`), true, http.StatusInternalServerError},
		{"network", errors.New("dial tcp: connection refused"), true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := classify("bulk", tt.err)
			assert.Equal(t, tt.retryable, te.Retryable)
			assert.Equal(t, tt.status, te.StatusCode)
			assert.ErrorIs(t, te, tt.err)
		})
	}
}

func TestRoundRobinSkipsUnhealthy(t *testing.T) {
	client := &Client{balanceStrategy: RoundRobin}
	for i := 0; i < 3; i++ {
		client.connections = append(client.connections, &connection{endpoint: string(rune('a' + i))})
	}
	client.connections[0].healthy.Store(true)
	client.connections[2].healthy.Store(true)

	var got []string
	for i := 0; i < 4; i++ {
		got = append(got, client.getConnection().endpoint)
	}
	assert.Equal(t, []string{"a", "c", "a", "c"}, got)

	client.balanceStrategy = Sticky
	client.count = 1
	assert.Equal(t, "c", client.getConnection().endpoint)
	assert.Equal(t, "c", client.getConnection().endpoint)
}
