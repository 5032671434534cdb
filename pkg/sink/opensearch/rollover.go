package opensearch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/rs/zerolog/log"

	"github.com/mosajjal/ocsf-composer/pkg/sink"
)

// RolloverPolicy is an index state management policy that rolls dated
// indices over by size or age and deletes them after a retention period
type RolloverPolicy struct {
	ID string
	// Pattern selects the indices the policy attaches to, e.g. "ocsf-*"
	Pattern   string
	MinSize   string
	MinAge    string
	Retention string
}

// PutAlias adds index to alias. With RolloverAlias set the index is also
// told which alias to roll over.
func (c *Client) PutAlias(ctx context.Context, index, alias string) error {
	req := opensearchapi.IndicesPutAliasRequest{
		Index: []string{index},
		Name:  alias,
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return sink.NetworkError("put alias", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return sink.StatusError("put alias", res.StatusCode, string(raw))
	}

	if !c.config.RolloverAlias {
		return nil
	}
	body, err := json.Marshal(map[string]any{
		"index": map[string]any{
			"plugins": map[string]any{
				"index_state_management": map[string]any{"rollover_alias": alias},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	settings := opensearchapi.IndicesPutSettingsRequest{
		Index: []string{index},
		Body:  bytes.NewReader(body),
	}
	sres, err := settings.Do(ctx, c.client)
	if err != nil {
		return sink.NetworkError("put settings", err)
	}
	defer sres.Body.Close()
	if sres.IsError() {
		raw, _ := io.ReadAll(sres.Body)
		return sink.StatusError("put settings", sres.StatusCode, string(raw))
	}
	return nil
}

func (p RolloverPolicy) body() map[string]any {
	retry := map[string]any{"count": 3, "backoff": "exponential", "delay": "1h"}
	return map[string]any{
		"policy": map[string]any{
			"description":   "Roll over dated indices and delete them after retention",
			"default_state": "rollover",
			"states": []any{
				map[string]any{
					"name": "rollover",
					"actions": []any{map[string]any{
						"retry": retry,
						"rollover": map[string]any{
							"min_size":      p.MinSize,
							"min_index_age": p.MinAge,
							"copy_alias":    false,
						},
					}},
					"transitions": []any{map[string]any{"state_name": "hot"}},
				},
				map[string]any{
					"name":    "hot",
					"actions": []any{},
					"transitions": []any{map[string]any{
						"state_name": "delete",
						"conditions": map[string]any{"min_index_age": p.Retention},
					}},
				},
				map[string]any{
					"name": "delete",
					"actions": []any{map[string]any{
						"timeout": "5h",
						"retry":   retry,
						"delete":  map[string]any{},
					}},
					"transitions": []any{},
				},
			},
			"ism_template": []any{map[string]any{
				"index_patterns": []string{p.Pattern},
				"priority":       9,
			}},
		},
	}
}

// PutRolloverPolicy installs p. A policy that already exists is left as is.
func (c *Client) PutRolloverPolicy(ctx context.Context, p RolloverPolicy) error {
	if p.ID == "" || p.Pattern == "" {
		return fmt.Errorf("rollover policy needs an id and an index pattern")
	}
	body, err := json.Marshal(p.body())
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, "/_plugins/_ism/policies/"+url.PathEscape(p.ID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Perform(req)
	if err != nil {
		return sink.NetworkError("put policy", err)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)
	switch {
	case res.StatusCode == http.StatusConflict:
		log.Debug().Str("policy", p.ID).Msg("rollover policy already installed")
		return nil
	case res.StatusCode >= 300:
		return sink.StatusError("put policy", res.StatusCode, string(raw))
	}
	log.Info().Str("policy", p.ID).Str("pattern", p.Pattern).Msg("installed rollover policy")
	return nil
}
