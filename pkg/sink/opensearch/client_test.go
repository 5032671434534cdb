package opensearch

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
	"github.com/mosajjal/ocsf-composer/pkg/sink"
)

type fakeCluster struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	requests []string
}

func newFakeCluster(t *testing.T) (*fakeCluster, *Client) {
	t.Helper()
	fc := &fakeCluster{handlers: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		fc.mu.Lock()
		fc.requests = append(fc.requests, key)
		h, ok := fc.handlers[key]
		fc.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{Addresses: []string{srv.URL}, Username: "tester", Password: "secret"})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return fc, client
}

func (fc *fakeCluster) handle(key string, h http.HandlerFunc) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.handlers[key] = h
}

func (fc *fakeCluster) seen() []string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]string(nil), fc.requests...)
}

func events(n int) []ocsf.Event {
	out := make([]ocsf.Event, n)
	for i := range out {
		out[i] = ocsf.Event{"class_uid": 4002, "seq": i}
	}
	return out
}

func TestBulkPerItemResults(t *testing.T) {
	fc, client := newFakeCluster(t)
	fc.handle("POST /idx/_bulk", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "tester", user)
		assert.Equal(t, "secret", pass)

		lines := 0
		sc := bufio.NewScanner(r.Body)
		for sc.Scan() {
			if lines%2 == 0 {
				assert.JSONEq(t, `{"index":{"_index":"idx"}}`, sc.Text())
			}
			lines++
		}
		assert.Equal(t, 6, lines)

		io.WriteString(w, `{"took":3,"errors":true,"items":[
			{"index":{"_index":"idx","status":201}},
			{"index":{"_index":"idx","status":400,"error":{"type":"mapper_parsing_exception","reason":"failed to parse field [time]"}}},
			{"index":{"_index":"idx","status":201}}]}`)
	})

	res, err := client.Bulk(context.Background(), "idx", events(3))
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.True(t, res.Items[0].Accepted())
	assert.False(t, res.Items[1].Accepted())
	assert.Equal(t, "mapper_parsing_exception", res.Items[1].ErrorType)
	assert.Equal(t, "failed to parse field [time]", res.Items[1].Reason)
	assert.True(t, res.Items[2].Accepted())
}

func TestBulkStatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"unavailable", http.StatusServiceUnavailable, true},
		{"throttled", http.StatusTooManyRequests, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc, client := newFakeCluster(t)
			fc.handle("POST /idx/_bulk", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, `{"error":"nope"}`)
			})

			_, err := client.Bulk(context.Background(), "idx", events(2))
			var te *sink.TransportError
			require.True(t, errors.As(err, &te), "got %v", err)
			assert.Equal(t, tt.status, te.StatusCode)
			assert.Equal(t, tt.retryable, te.Retryable)
		})
	}
}

func TestBulkMalformedResponses(t *testing.T) {
	bodies := map[string]string{
		"not json":       `<html>gateway</html>`,
		"missing items":  `{"took":1,"errors":false}`,
		"short items":    `{"errors":false,"items":[{"index":{"status":201}}]}`,
		"item no status": `{"errors":false,"items":[{"index":{"status":201}},{"index":{}}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			fc, client := newFakeCluster(t)
			fc.handle("POST /idx/_bulk", func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, body)
			})

			_, err := client.Bulk(context.Background(), "idx", events(2))
			var malformed *sink.MalformedResponseError
			require.True(t, errors.As(err, &malformed), "got %v", err)
			assert.True(t, sink.IsRetryable(err))
		})
	}
}

func TestBulkUnreachable(t *testing.T) {
	client, err := NewClient(Config{Addresses: []string{"http://127.0.0.1:1"}})
	require.NoError(t, err)

	_, err = client.Bulk(context.Background(), "idx", events(1))
	var te *sink.TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Retryable)
	assert.Zero(t, te.StatusCode)
}

func TestIndexAdmin(t *testing.T) {
	fc, client := newFakeCluster(t)
	fc.handle("HEAD /present", func(w http.ResponseWriter, r *http.Request) {})
	fc.handle("HEAD /absent", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) })
	fc.handle("PUT /absent", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		props := body["mappings"].(map[string]any)["properties"].(map[string]any)
		assert.Equal(t, map[string]any{"type": "integer"}, props["class_uid"])
		io.WriteString(w, `{"acknowledged":true}`)
	})
	fc.handle("PUT /present", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"type":"resource_already_exists_exception","reason":"index [present] already exists"},"status":400}`)
	})
	fc.handle("GET /present/_mapping", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"present":{"mappings":{"properties":{"class_uid":{"type":"integer"},"http_request":{"properties":{"http_method":{"type":"keyword"}}}}}}}`)
	})
	fc.handle("PUT /present/_mapping", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "properties")
		io.WriteString(w, `{"acknowledged":true}`)
	})

	ctx := context.Background()
	ok, err := client.IndexExists(ctx, "present")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = client.IndexExists(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	mapping := ocsf.Mapping{"class_uid": ocsf.Integer}
	require.NoError(t, client.CreateIndex(ctx, "absent", mapping))
	assert.ErrorIs(t, client.CreateIndex(ctx, "present", mapping), sink.ErrIndexExists)

	got, err := client.GetMapping(ctx, "present")
	require.NoError(t, err)
	assert.Equal(t, ocsf.Integer, got["class_uid"])
	assert.Equal(t, ocsf.Keyword, got["http_request.http_method"])
	assert.Equal(t, ocsf.Object, got["http_request"])

	require.NoError(t, client.PutMapping(ctx, "present", ocsf.Mapping{"status": ocsf.Keyword}))
}

func TestParseMappingResponseAlias(t *testing.T) {
	body := []byte(`{"ocsf-000001":{"mappings":{"properties":{"time":{"type":"date"}}}}}`)
	got, err := ParseMappingResponse("ocsf-alias", 200, body)
	require.NoError(t, err)
	assert.Equal(t, ocsf.Date, got["time"])

	_, err = ParseMappingResponse("x", 200, []byte(`{"a":{},"b":{}}`))
	assert.True(t, sink.IsRetryable(err))
}

func TestEncodeBulk(t *testing.T) {
	body, err := EncodeBulk("idx", events(2))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"class_uid":4002,"seq":1}`, lines[3])
}

func TestPutAliasWithRollover(t *testing.T) {
	fc, client := newFakeCluster(t)
	client.config.RolloverAlias = true
	fc.handle("PUT /ocsf-x-2024.06.10-000000/_alias/ocsf-x", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"acknowledged":true}`)
	})
	fc.handle("PUT /ocsf-x-2024.06.10-000000/_settings", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		ism := body["index"].(map[string]any)["plugins"].(map[string]any)["index_state_management"].(map[string]any)
		assert.Equal(t, "ocsf-x", ism["rollover_alias"])
		io.WriteString(w, `{"acknowledged":true}`)
	})

	require.NoError(t, client.PutAlias(context.Background(), "ocsf-x-2024.06.10-000000", "ocsf-x"))
	assert.Equal(t, []string{
		"PUT /ocsf-x-2024.06.10-000000/_alias/ocsf-x",
		"PUT /ocsf-x-2024.06.10-000000/_settings",
	}, fc.seen())
}

func TestPutAliasWithoutRollover(t *testing.T) {
	fc, client := newFakeCluster(t)
	fc.handle("PUT /idx/_alias/fam", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"acknowledged":true}`)
	})
	require.NoError(t, client.PutAlias(context.Background(), "idx", "fam"))
	assert.Equal(t, []string{"PUT /idx/_alias/fam"}, fc.seen())

	fc.handle("PUT /gone/_alias/fam", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"type":"index_not_found_exception"},"status":404}`)
	})
	err := client.PutAlias(context.Background(), "gone", "fam")
	var te *sink.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
}

func TestPutRolloverPolicy(t *testing.T) {
	fc, client := newFakeCluster(t)
	policy := RolloverPolicy{ID: "rollover-expiration-policy", Pattern: "ocsf-*", MinSize: "40gb", MinAge: "1d", Retention: "15d"}

	calls := 0
	fc.handle("PUT /_plugins/_ism/policies/rollover-expiration-policy", func(w http.ResponseWriter, r *http.Request) {
		calls++
		var body struct {
			Policy struct {
				DefaultState string `json:"default_state"`
				States       []struct {
					Name        string           `json:"name"`
					Actions     []map[string]any `json:"actions"`
					Transitions []map[string]any `json:"transitions"`
				} `json:"states"`
				ISMTemplate []struct {
					IndexPatterns []string `json:"index_patterns"`
				} `json:"ism_template"`
			} `json:"policy"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rollover", body.Policy.DefaultState)
		require.Len(t, body.Policy.States, 3)
		rollover := body.Policy.States[0].Actions[0]["rollover"].(map[string]any)
		assert.Equal(t, "40gb", rollover["min_size"])
		assert.Equal(t, "15d", body.Policy.States[1].Transitions[0]["conditions"].(map[string]any)["min_index_age"])
		assert.Equal(t, []string{"ocsf-*"}, body.Policy.ISMTemplate[0].IndexPatterns)

		if calls > 1 {
			w.WriteHeader(http.StatusConflict)
			io.WriteString(w, `{"error":{"type":"version_conflict_engine_exception"},"status":409}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"_id":"rollover-expiration-policy"}`)
	})

	ctx := context.Background()
	require.NoError(t, client.PutRolloverPolicy(ctx, policy))
	require.NoError(t, client.PutRolloverPolicy(ctx, policy))
	assert.Equal(t, 2, calls)

	assert.Error(t, client.PutRolloverPolicy(ctx, RolloverPolicy{ID: "x"}))
}

func TestPutRolloverPolicyRejected(t *testing.T) {
	fc, client := newFakeCluster(t)
	fc.handle("PUT /_plugins/_ism/policies/p", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":{"type":"security_exception"},"status":403}`)
	})
	err := client.PutRolloverPolicy(context.Background(), RolloverPolicy{ID: "p", Pattern: "ocsf-*"})
	assert.Error(t, err)
	assert.False(t, sink.IsRetryable(err))
}
